package audit

import (
	"math"
	"sort"

	"ledgerqa/internal/core"
	"ledgerqa/internal/facts"
)

// Required item names.
const (
	RequiredAnyMoney       = "any_money_number"
	RequiredForecastAnchor = "forecast_balance_anchor"
	RequiredScenarioFree   = "scenario_free_capital"
)

// Required is a figure an answer must contain: any money figure at all, or
// one of AnyOf.
type Required struct {
	Name     string    `json:"name"`
	AnyMoney bool      `json:"anyMoney,omitempty"`
	AnyOf    []float64 `json:"anyOf,omitempty"`
}

// Expectation is computed fresh for every audit.
type Expectation struct {
	AllowedNumbers []float64  `json:"allowedNumbers"`
	Required       []Required `json:"required"`
	FactualIntent  bool       `json:"factualIntent"`
	Advisory       bool       `json:"advisory"`
}

// numberSet collects absolute values rounded to whole units.
type numberSet map[int64]struct{}

func (s numberSet) add(values ...float64) {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		s[core.RoundUnits(math.Abs(v))] = struct{}{}
	}
}

func (s numberSet) sorted() []float64 {
	out := make([]float64, 0, len(s))
	for v := range s {
		out = append(out, float64(v))
	}
	sort.Float64s(out)
	return out
}

// BuildExpectation flattens the bundle into the allowed set and derives the
// required items from ctx.
func (g *Gate) BuildExpectation(b *facts.Bundle, ctx SemanticContext) Expectation {
	set := numberSet{}
	set.add(0)

	f := b.Facts
	addFacts(set, f)
	if f.Fact != nil {
		addSlice(set, *f.Fact)
	}
	if f.Plan != nil {
		addSlice(set, *f.Plan)
	}

	top := f.TopExpenseCategories
	if len(top) > g.comboTop {
		top = top[:g.comboTop]
	}
	for _, sum := range combinationSums(top) {
		set.add(sum)
	}

	for i, a := range b.Comparison {
		addTotals(set, a.Totals)
		for _, c := range b.Comparison[i+1:] {
			set.add(
				a.Totals.Income-c.Totals.Income,
				a.Totals.Expense-c.Totals.Expense,
				a.Totals.Net-c.Totals.Net,
			)
		}
	}

	fc := b.Forecast
	if fc.Available {
		set.add(fc.OpenAfterNextObligation, fc.EndOfMonthOpen, fc.EndOfMonthTotal, fc.FreeCapital)
	}

	exp := Expectation{FactualIntent: ctx.Factual(), Advisory: ctx.Advisory()}
	if exp.FactualIntent {
		exp.Required = append(exp.Required, Required{Name: RequiredAnyMoney, AnyMoney: true})
	}
	if (ctx.ResponseIntent == IntentForecast || ctx.AsksFutureBalance) && fc.Available {
		anchors := numberSet{}
		anchors.add(fc.OpenAfterNextObligation, fc.EndOfMonthOpen, fc.EndOfMonthTotal)
		exp.Required = append(exp.Required, Required{Name: RequiredForecastAnchor, AnyOf: anchors.sorted()})
	}
	if ctx.ScenarioActive && ctx.AsksSingleAmount {
		free := fc.FreeCapital
		if ctx.ScenarioFreeCapital != 0 {
			free = ctx.ScenarioFreeCapital
		}
		set.add(free)
		exp.Required = append(exp.Required, Required{Name: RequiredScenarioFree, AnyOf: []float64{float64(core.RoundUnits(math.Abs(free)))}})
	}

	exp.AllowedNumbers = set.sorted()
	return exp
}

func addTotals(set numberSet, t facts.Totals) {
	set.add(t.Income, t.GrossIncome, t.Expense, t.Net)
}

func addBucket(set numberSet, b facts.Bucket) {
	set.add(b.Amount)
	for _, c := range b.ByCategory {
		set.add(c.Amount)
	}
}

func addCategories(set numberSet, items []core.CategoryAmount) {
	for _, c := range items {
		set.add(c.Amount)
	}
}

func addSlice(set numberSet, s facts.Slice) {
	addTotals(set, s.Totals)
	addBucket(set, s.OwnerDraw)
	addBucket(set, s.OffsetNetting)
}

func addFacts(set numberSet, f facts.Facts) {
	addTotals(set, f.Totals)
	addBucket(set, f.OwnerDraw)
	addBucket(set, f.OffsetNetting)
	set.add(f.EndBalances.Open, f.EndBalances.Hidden, f.EndBalances.Total)
	addCategories(set, f.TopExpenseCategories)
	addCategories(set, f.ExpenseByCategory)
	addCategories(set, f.IncomeByCategory)
	for _, a := range f.Anomalies {
		set.add(a.Income, a.Expense, a.Gap)
	}
	for _, op := range f.Operations {
		set.add(op.Amount)
	}
	for _, n := range f.OffsetIncomes {
		set.add(n.Nominal, n.OffsetAmount, n.NetAmount)
	}
}

// combinationSums returns the sums of every 2- and 3-item combination.
func combinationSums(items []core.CategoryAmount) []float64 {
	var out []float64
	for i := 0; i < len(items); i++ {
		for j := i + 1; j < len(items); j++ {
			out = append(out, items[i].Amount+items[j].Amount)
			for k := j + 1; k < len(items); k++ {
				out = append(out, items[i].Amount+items[j].Amount+items[k].Amount)
			}
		}
	}
	return out
}
