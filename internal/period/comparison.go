package period

import (
	"regexp"
	"time"

	"ledgerqa/internal/core"
)

var comparisonRe = regexp.MustCompile(`сравн\p{L}*|по\s+сравнению|(?:^|[^\p{L}])(?:чем|против|vs|versus)(?:[^\p{L}]|$)|относительно|разниц\p{L}*|динамик\p{L}*|compar\p{L}*|difference`)

// Comparison holds two or more month periods in the order they were named.
type Comparison struct {
	Periods []Period `json:"periods"`
}

// ResolveComparison extracts month periods for comparison questions. One
// mention plus a comparison keyword pairs that month with the as-of month.
// It returns false when fewer than two distinct months result.
func (r *Resolver) ResolveComparison(question, asOfKey string, snap *core.Snapshot) (*Comparison, bool) {
	asOf, ok := asOfTime(asOfKey, snap)
	if !ok {
		return nil, false
	}
	q := NewQuery(question, asOf)
	mentions := FindMonthMentions(q.Text)

	type monthKey struct {
		year  int
		month time.Month
	}
	seen := make(map[monthKey]bool)
	var periods []Period
	add := func(year int, month time.Month, source string) {
		k := monthKey{year, month}
		if seen[k] {
			return
		}
		seen[k] = true
		start, end := monthSpan(year, month)
		periods = append(periods, Period{StartDateKey: core.DateKey(start), EndDateKey: core.DateKey(end), Source: source})
	}

	for _, m := range mentions {
		add(m.yearOf(asOf), m.Month, SourceComparisonMonth)
	}
	if len(mentions) == 1 && comparisonRe.MatchString(q.Text) {
		add(asOf.Year(), asOf.Month(), SourceComparisonAsOf)
	}
	if len(periods) < 2 {
		return nil, false
	}
	return &Comparison{Periods: periods}, true
}
