// Package intent renders deterministic answers for pre-classified intents.
//
// Each intent type has its own render function registered in renderers.
// Misses are returned as Result{OK: false} with a text naming the missing
// date key or range; they are never Go errors.
package intent

import (
	"fmt"
	"strings"

	"ledgerqa/internal/core"
	"ledgerqa/internal/facts"
	"ledgerqa/internal/period"
)

type Type string

const (
	BalanceOnDate          Type = "BALANCE_ON_DATE"
	OpenBalancesOnDate     Type = "OPEN_BALANCES_ON_DATE"
	UpcomingOps            Type = "UPCOMING_OPS"
	InvestCapacity         Type = "INVEST_CAPACITY"
	ExpenseFeasibility     Type = "EXPENSE_FEASIBILITY"
	ForecastEndOfMonth     Type = "FORECAST_END_OF_MONTH"
	ForecastOpenEndOfMonth Type = "FORECAST_OPEN_END_OF_MONTH"
	CategoryFactByCategory Type = "CATEGORY_FACT_BY_CATEGORY"
	Insights               Type = "INSIGHTS"
)

// Basis selects what INVEST_CAPACITY measures.
type Basis string

const (
	BasisBalance Basis = "balance"
	BasisInflows Basis = "inflows"
)

type (
	Month struct {
		Year  int `json:"year"`
		Month int `json:"month"`
	}

	// Intent carries only the parameters its type needs.
	Intent struct {
		Type            Type                `json:"type"`
		DateKey         string              `json:"dateKey,omitempty"`
		Scope           core.VisibilityMode `json:"scope,omitempty"`
		TargetMonth     *Month              `json:"targetMonth,omitempty"`
		CategoryRaw     string              `json:"categoryRaw,omitempty"`
		RequestedAmount float64             `json:"requestedAmount,omitempty"`
		Basis           Basis               `json:"basis,omitempty"`
		Question        string              `json:"question,omitempty"`
	}

	Result struct {
		OK      bool           `json:"ok"`
		Numeric bool           `json:"numeric"`
		Text    string         `json:"text"`
		Meta    map[string]any `json:"meta,omitempty"`
	}
)

// Known reports whether t names a registered intent.
func (t Type) Known() bool {
	_, ok := renderers[t]
	return ok
}

type renderFunc func(r *Renderer, in Intent, snap *core.Snapshot, asOfKey string) Result

// renderers maps intent types to their render functions; unknown types fall
// back to INSIGHTS.
var renderers = map[Type]renderFunc{
	BalanceOnDate:          (*Renderer).balanceOnDate,
	OpenBalancesOnDate:     (*Renderer).openBalancesOnDate,
	UpcomingOps:            (*Renderer).upcomingOps,
	InvestCapacity:         (*Renderer).investCapacity,
	ExpenseFeasibility:     (*Renderer).expenseFeasibility,
	ForecastEndOfMonth:     (*Renderer).forecastEndOfMonth,
	ForecastOpenEndOfMonth: (*Renderer).forecastOpenEndOfMonth,
	CategoryFactByCategory: (*Renderer).categoryFact,
	Insights:               (*Renderer).insights,
}

// Renderer formats deterministic answers from the same facts the audit
// gate uses.
type Renderer struct {
	builder *facts.Builder
}

func NewRenderer(b *facts.Builder) *Renderer {
	return &Renderer{builder: b}
}

// Render answers one intent. An invalid asOfKey falls back to the last day
// of the snapshot.
func (r *Renderer) Render(in Intent, snap *core.Snapshot, asOfKey string) Result {
	if snap == nil {
		return miss("Нет снимка данных для ответа.")
	}
	if !core.ValidDateKey(asOfKey) {
		asOfKey = snap.Range.EndDateKey
	}
	fn, ok := renderers[Type(strings.ToUpper(string(in.Type)))]
	if !ok {
		fn = (*Renderer).insights
	}
	res := fn(r, in, snap, asOfKey)
	if res.Meta == nil {
		res.Meta = map[string]any{}
	}
	res.Meta["asOfKey"] = asOfKey
	return res
}

func miss(format string, args ...any) Result {
	return Result{OK: false, Text: fmt.Sprintf(format, args...)}
}

// missingDay names the absent key and the month range that would contain it.
func missingDay(key string, snap *core.Snapshot) Result {
	need := key
	if t, err := core.ParseDateKey(key); err == nil {
		m := core.MonthRange(t.Year(), t.Month())
		need = m.StartDateKey + " — " + m.EndDateKey
	}
	return Result{
		OK: false,
		Text: fmt.Sprintf("Нет дня %s в снимке (доступно %s — %s); нужен диапазон %s.",
			key, snap.Range.StartDateKey, snap.Range.EndDateKey, need),
		Meta: map[string]any{"missingDateKey": key},
	}
}

func scopeOf(in Intent, fallback core.VisibilityMode) core.VisibilityMode {
	if in.Scope.Valid() {
		return in.Scope
	}
	return fallback
}

func scopeLabel(s core.VisibilityMode) string {
	switch s {
	case core.VisibilityOpen:
		return "открытые счета"
	case core.VisibilityHidden:
		return "скрытые счета"
	default:
		return "все счета"
	}
}

// targetDate returns the intent's date key or the as-of key.
func targetDate(in Intent, asOfKey string) string {
	if in.DateKey != "" {
		return in.DateKey
	}
	return asOfKey
}

// targetMonthRange returns the intent's month or the as-of month.
func targetMonthRange(in Intent, asOfKey string) core.Range {
	if in.TargetMonth != nil && in.TargetMonth.Month >= 1 && in.TargetMonth.Month <= 12 && in.TargetMonth.Year > 0 {
		return core.MonthRange(in.TargetMonth.Year, monthOf(in.TargetMonth.Month))
	}
	t, _ := core.ParseDateKey(asOfKey)
	return core.MonthRange(t.Year(), t.Month())
}

func (r *Renderer) aggregator() *facts.Aggregator { return r.builder.Aggregator() }

func (r *Renderer) resolver() *period.Resolver { return r.builder.Resolver() }
