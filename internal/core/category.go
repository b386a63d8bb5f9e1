package core

import (
	"strings"
	"unicode"
)

// Normalize folds a category or question fragment into a canonical token:
// lowercase, ё folded to е, everything but letters and digits dropped, runs
// of the same letter collapsed ("Взаимозачёт" -> "взаимозачет",
// "Netting" -> "neting").
func Normalize(s string) string {
	var b strings.Builder
	var prev rune
	for _, r := range strings.ToLower(s) {
		if r == 'ё' {
			r = 'е'
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		if r == prev && unicode.IsLetter(r) {
			continue
		}
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}

// Vocabulary is a set of pre-normalized tokens matched by substring.
type Vocabulary struct {
	tokens []string
}

// NewVocabulary normalizes words once so matching never re-derives them.
func NewVocabulary(words ...string) Vocabulary {
	v := Vocabulary{tokens: make([]string, 0, len(words))}
	for _, w := range words {
		if t := Normalize(w); t != "" {
			v.tokens = append(v.tokens, t)
		}
	}
	return v
}

// Matches reports whether the normalized token contains any vocabulary token.
func (v Vocabulary) Matches(token string) bool {
	if token == "" {
		return false
	}
	for _, t := range v.tokens {
		if strings.Contains(token, t) {
			return true
		}
	}
	return false
}

// MatchesText normalizes s before matching.
func (v Vocabulary) MatchesText(s string) bool {
	return v.Matches(Normalize(s))
}

// Len returns the number of tokens.
func (v Vocabulary) Len() int {
	return len(v.tokens)
}

// Default vocabularies used by the aggregator.
var (
	NonOperationalWords = []string{"Вывод средств", "Перевод", "Снятие наличных", "Личные расходы", "Owner draw", "Withdrawal"}
	NettingSignalWords  = []string{"Взаимозачет", "Netting", "Offset"}
)

// FuzzyCategoryMatch compares a requested category against a ledger
// category. Either token may contain the other; when that fails a single
// trailing Russian case ending is dropped from the request ("аренде" ->
// "аренд").
func FuzzyCategoryMatch(requested, category string) bool {
	req, cat := Normalize(requested), Normalize(category)
	if req == "" || cat == "" {
		return false
	}
	if strings.Contains(cat, req) || strings.Contains(req, cat) {
		return true
	}
	stem := stemRu(req)
	return stem != req && len([]rune(stem)) >= 3 && strings.Contains(cat, stem)
}

func stemRu(token string) string {
	runes := []rune(token)
	if len(runes) <= 4 {
		return token
	}
	if strings.ContainsRune("аеиоуыэюяь", runes[len(runes)-1]) {
		return string(runes[:len(runes)-1])
	}
	return token
}
