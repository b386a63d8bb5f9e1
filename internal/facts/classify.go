// Package facts computes the deterministic figures every answer is built
// from and audited against.
package facts

import "ledgerqa/internal/core"

// ExpenseClass says where an expense line is booked.
type ExpenseClass string

const (
	ClassOperational   ExpenseClass = "operational"
	ClassOwnerDraw     ExpenseClass = "owner_draw"
	ClassOffsetNetting ExpenseClass = "offset_netting"
)

// Classifier routes ledger lines using two vocabularies supplied as data.
type Classifier struct {
	nonOperational core.Vocabulary
	netting        core.Vocabulary
}

// NewClassifier builds a classifier from raw vocabulary words.
func NewClassifier(nonOperational, netting []string) Classifier {
	return Classifier{
		nonOperational: core.NewVocabulary(nonOperational...),
		netting:        core.NewVocabulary(netting...),
	}
}

// DefaultClassifier uses the built-in vocabularies.
func DefaultClassifier() Classifier {
	return NewClassifier(core.NonOperationalWords, core.NettingSignalWords)
}

// ClassifyExpense routes an expense line. A link to an income entry or a
// netting category wins over a non-operational category.
func (c Classifier) ClassifyExpense(e core.Entry) ExpenseClass {
	token := core.Normalize(e.CatName)
	switch {
	case e.LinkedIncomeID() != "" || c.netting.Matches(token):
		return ClassOffsetNetting
	case c.nonOperational.Matches(token):
		return ClassOwnerDraw
	default:
		return ClassOperational
	}
}

// IsNonOperational reports whether a category names a personal or
// non-operational movement.
func (c Classifier) IsNonOperational(category string) bool {
	return c.nonOperational.MatchesText(category)
}
