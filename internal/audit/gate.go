package audit

import (
	"math"
	"sort"
	"strconv"

	"ledgerqa/internal/facts"
)

// Error and warning codes.
const (
	codeUnexpectedValue = "number_mismatch:unexpected_money_value:"
	codeRequiredMissing = "required_number_missing:"
	WarnNoMoneyNumbers  = "no_money_numbers"
)

const (
	// DefaultTolerance absorbs sub-unit rounding in composed prose.
	DefaultTolerance = 1.0
	// DefaultComboTop limits combination sums to the largest categories.
	DefaultComboTop = 5
)

type Observed struct {
	MoneyNumbers []MoneyNumber `json:"moneyNumbers"`
}

type Result struct {
	OK       bool        `json:"ok"`
	Errors   []string    `json:"errors"`
	Warnings []string    `json:"warnings"`
	Expected Expectation `json:"expected"`
	Observed Observed    `json:"observed"`
}

// Gate holds audit tuning only; every call is independent.
type Gate struct {
	tolerance float64
	comboTop  int
}

type Option func(*Gate)

func WithTolerance(t float64) Option {
	return func(g *Gate) { g.tolerance = t }
}

func WithComboTop(n int) Option {
	return func(g *Gate) { g.comboTop = n }
}

func NewGate(opts ...Option) *Gate {
	g := &Gate{tolerance: DefaultTolerance, comboTop: DefaultComboTop}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Audit checks answer against the figures derivable from b.
func (g *Gate) Audit(answer string, b *facts.Bundle, ctx SemanticContext) Result {
	exp := g.BuildExpectation(b, ctx)
	observed := ExtractMoney(answer)
	res := Result{
		Errors:   []string{},
		Warnings: []string{},
		Expected: exp,
		Observed: Observed{MoneyNumbers: observed},
	}

	reported := map[string]bool{}
	for _, n := range observed {
		if g.within(exp.AllowedNumbers, n.Value) {
			continue
		}
		code := codeUnexpectedValue + formatValue(n.Value)
		if !reported[code] {
			reported[code] = true
			res.Errors = append(res.Errors, code)
		}
	}

	for _, req := range exp.Required {
		if !g.satisfied(req, observed) {
			res.Errors = append(res.Errors, codeRequiredMissing+req.Name)
		}
	}

	if len(observed) == 0 && !exp.Advisory {
		res.Warnings = append(res.Warnings, WarnNoMoneyNumbers)
	}
	res.OK = len(res.Errors) == 0
	return res
}

func (g *Gate) satisfied(req Required, observed []MoneyNumber) bool {
	if req.AnyMoney {
		return len(observed) > 0
	}
	set := append([]float64(nil), req.AnyOf...)
	sort.Float64s(set)
	for _, n := range observed {
		if g.within(set, n.Value) {
			return true
		}
	}
	return false
}

// within reports whether sorted holds a value closer than the tolerance to
// v. The bound is strict: 4999 is not 5000.
func (g *Gate) within(sorted []float64, v float64) bool {
	for i := sort.SearchFloat64s(sorted, v-g.tolerance); i < len(sorted) && sorted[i] <= v+g.tolerance; i++ {
		if math.Abs(sorted[i]-v) < g.tolerance {
			return true
		}
	}
	return false
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
