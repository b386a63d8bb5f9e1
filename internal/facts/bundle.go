package facts

import (
	"time"

	"ledgerqa/internal/core"
	"ledgerqa/internal/period"
)

type (
	// PeriodTotals is one side of a month comparison.
	PeriodTotals struct {
		Resolution period.Resolution `json:"resolution"`
		Totals     Totals            `json:"totals"`
	}

	// Forecast holds balance anchors from the plan part of the snapshot.
	Forecast struct {
		Available bool `json:"available"`
		// NextObligationDateKey is the first day after as-of with an outflow.
		NextObligationDateKey   string  `json:"nextObligationDateKey,omitempty"`
		OpenAfterNextObligation float64 `json:"openAfterNextObligation"`
		EndOfMonthDateKey       string  `json:"endOfMonthDateKey,omitempty"`
		EndOfMonthOpen          float64 `json:"endOfMonthOpen"`
		EndOfMonthTotal         float64 `json:"endOfMonthTotal"`
		// FreeCapital is the lowest open balance from as-of to month end,
		// floored at zero: what can leave without an open account going
		// negative later in the month.
		FreeCapital float64 `json:"freeCapital"`
	}

	// Bundle is built once per question and handed unchanged to the
	// composer, the renderer and the audit gate.
	Bundle struct {
		Question      string            `json:"question"`
		AsOfKey       string            `json:"asOfKey"`
		SnapshotRange core.Range        `json:"snapshotRange"`
		Resolution    period.Resolution `json:"resolution"`
		Facts         Facts             `json:"facts"`
		Comparison    []PeriodTotals    `json:"comparison,omitempty"`
		Forecast      Forecast          `json:"forecast"`
	}
)

// Builder assembles bundles from a resolver and an aggregator.
type Builder struct {
	resolver   *period.Resolver
	aggregator *Aggregator
	opts       Options
}

func NewBuilder(r *period.Resolver, a *Aggregator, opts Options) *Builder {
	return &Builder{resolver: r, aggregator: a, opts: opts}
}

func (b *Builder) Resolver() *period.Resolver { return b.resolver }

func (b *Builder) Aggregator() *Aggregator { return b.aggregator }

// Build resolves the question's period, clamps it to the snapshot and
// aggregates it. Without a recognised period the whole snapshot is used.
func (b *Builder) Build(question, asOfKey string, snap *core.Snapshot) Bundle {
	if !core.ValidDateKey(asOfKey) {
		asOfKey = snap.Range.EndDateKey
	}
	bundle := Bundle{Question: question, AsOfKey: asOfKey, SnapshotRange: snap.Range}

	res, ok := b.resolver.ResolveInSnapshot(question, asOfKey, snap)
	if !ok {
		p := period.Period{
			StartDateKey: snap.Range.StartDateKey,
			EndDateKey:   snap.Range.EndDateKey,
			Source:       period.SourceDefaultWindow,
		}
		res = period.Clamp(p, snap.Range)
	}
	bundle.Resolution = res

	opts := b.opts
	opts.AsOfKey = asOfKey
	if !res.Empty {
		bundle.Facts = b.aggregator.Aggregate(snap.DaysBetween(res.Period.StartDateKey, res.Period.EndDateKey), opts)
	}

	if cmp, ok := b.resolver.ResolveComparison(question, asOfKey, snap); ok {
		for _, p := range cmp.Periods {
			r := period.Clamp(p, snap.Range)
			pt := PeriodTotals{Resolution: r}
			if !r.Empty {
				pt.Totals = b.aggregator.Totals(snap.DaysBetween(r.Period.StartDateKey, r.Period.EndDateKey))
			}
			bundle.Comparison = append(bundle.Comparison, pt)
		}
	}

	bundle.Forecast = BuildForecast(snap, asOfKey)
	return bundle
}

// BuildForecast reads balance anchors for the as-of month from the days
// after asOfKey.
func BuildForecast(snap *core.Snapshot, asOfKey string) Forecast {
	var fc Forecast
	asOf, err := core.ParseDateKey(asOfKey)
	if err != nil {
		return fc
	}
	monthEnd := core.DateKey(time.Date(asOf.Year(), asOf.Month()+1, 0, 0, 0, 0, 0, time.UTC))
	days := snap.DaysBetween(asOfKey, monthEnd)
	if len(days) == 0 {
		return fc
	}

	fc.Available = true
	last := days[len(days)-1]
	fc.EndOfMonthDateKey = last.DateKey
	fc.EndOfMonthOpen = last.ScopedBalance(core.VisibilityOpen)
	fc.EndOfMonthTotal = last.ScopedBalance(core.VisibilityAll)
	fc.OpenAfterNextObligation = fc.EndOfMonthOpen

	minOpen := days[0].ScopedBalance(core.VisibilityOpen)
	found := false
	for _, d := range days {
		open := d.ScopedBalance(core.VisibilityOpen)
		if open < minOpen {
			minOpen = open
		}
		if !found && d.DateKey > asOfKey && hasOutflow(d) {
			found = true
			fc.NextObligationDateKey = d.DateKey
			fc.OpenAfterNextObligation = open
		}
	}
	if minOpen > 0 {
		fc.FreeCapital = minOpen
	}
	return fc
}

func hasOutflow(d core.Day) bool {
	if len(d.Lists.Expense) > 0 || len(d.Lists.Withdrawal) > 0 {
		return true
	}
	for _, t := range d.Lists.Transfer {
		if t.IsOutOfSystemTransfer {
			return true
		}
	}
	return false
}
