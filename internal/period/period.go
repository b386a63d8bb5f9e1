// Package period turns free-text questions into concrete date ranges.
//
// Resolution is an ordered cascade of rules; the first rule that matches
// wins and stamps its Source on the result so callers and tests can see
// which phrasing fired.
package period

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"ledgerqa/internal/core"
)

// Sources stamped on resolved periods.
const (
	SourceExplicitISORange = "explicit_iso_range"
	SourceExplicitDMRange  = "explicit_dm_range"
	SourceRelativeDay      = "relative_day"
	SourceLastMonth        = "last_month"
	SourceNamedMonth       = "named_month"
	SourceEndOfMonth       = "end_of_month"
	SourceWeekOfMonth      = "week_of_month"
	SourceCurrentMonth     = "current_month"
	SourceComparisonMonth  = "comparison_month"
	SourceComparisonAsOf   = "comparison_as_of_month"
	SourceDefaultWindow    = "default_window"
)

// NoDataOutOfRange marks a period that lies entirely outside the snapshot.
const NoDataOutOfRange = "out_of_snapshot_range"

// Period is an inclusive day range. StartDateKey <= EndDateKey always holds.
type Period struct {
	StartDateKey string `json:"startDateKey"`
	EndDateKey   string `json:"endDateKey"`
	Source       string `json:"source"`
}

// SingleDay reports whether the period covers exactly one day.
func (p Period) SingleDay() bool {
	return p.StartDateKey == p.EndDateKey
}

func (p Period) String() string {
	return fmt.Sprintf("%s..%s (%s)", p.StartDateKey, p.EndDateKey, p.Source)
}

// Query is the normalized input every rule sees.
type Query struct {
	Text string
	AsOf time.Time
}

var spaceRun = regexp.MustCompile(`\s+`)

// NewQuery lowercases the question, folds ё and collapses whitespace.
func NewQuery(question string, asOf time.Time) Query {
	t := strings.ToLower(question)
	t = strings.ReplaceAll(t, "ё", "е")
	t = spaceRun.ReplaceAllString(strings.TrimSpace(t), " ")
	return Query{Text: t, AsOf: asOf}
}

// Rule resolves one family of phrasings.
type Rule struct {
	Source  string
	Resolve func(q Query) (start, end time.Time, ok bool)
}

// Resolver applies its rules in order.
type Resolver struct {
	rules []Rule
}

// NewResolver builds a resolver; with no rules it uses DefaultRules.
func NewResolver(rules ...Rule) *Resolver {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Resolver{rules: rules}
}

// Sources lists the rule sources in evaluation order.
func (r *Resolver) Sources() []string {
	out := make([]string, 0, len(r.rules))
	for _, rule := range r.rules {
		out = append(out, rule.Source)
	}
	return out
}

// Resolve returns the period named by question, or false when no rule
// matches and the caller should fall back to its default window. An invalid
// asOfKey falls back to the snapshot's last day.
func (r *Resolver) Resolve(question, asOfKey string, snap *core.Snapshot) (Period, bool) {
	asOf, ok := asOfTime(asOfKey, snap)
	if !ok {
		return Period{}, false
	}
	q := NewQuery(question, asOf)
	for _, rule := range r.rules {
		start, end, ok := rule.Resolve(q)
		if !ok {
			continue
		}
		if end.Before(start) {
			start, end = end, start
		}
		return Period{StartDateKey: core.DateKey(start), EndDateKey: core.DateKey(end), Source: rule.Source}, true
	}
	return Period{}, false
}

// ResolveInSnapshot resolves and clamps to the snapshot range.
func (r *Resolver) ResolveInSnapshot(question, asOfKey string, snap *core.Snapshot) (Resolution, bool) {
	p, ok := r.Resolve(question, asOfKey, snap)
	if !ok || snap == nil {
		return Resolution{}, false
	}
	return Clamp(p, snap.Range), true
}

func asOfTime(asOfKey string, snap *core.Snapshot) (time.Time, bool) {
	if t, err := core.ParseDateKey(asOfKey); err == nil {
		return t, true
	}
	if snap != nil {
		if t, err := core.ParseDateKey(snap.Range.EndDateKey); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Resolution is a period after clamping to the snapshot range. Empty
// resolutions carry a NoDataReason and must not be reported as a quiet
// period.
type Resolution struct {
	Requested            Period     `json:"requested"`
	Period               Period     `json:"period"`
	SnapshotRange        core.Range `json:"snapshotRange"`
	WasClampedToSnapshot bool       `json:"wasClampedToSnapshot"`
	Empty                bool       `json:"empty"`
	NoDataReason         string     `json:"noDataReason,omitempty"`
}

// Clamp intersects p with rng.
func Clamp(p Period, rng core.Range) Resolution {
	res := Resolution{Requested: p, Period: p, SnapshotRange: rng}
	if p.EndDateKey < rng.StartDateKey || p.StartDateKey > rng.EndDateKey {
		res.Empty = true
		res.WasClampedToSnapshot = true
		res.NoDataReason = NoDataOutOfRange
		return res
	}
	res.Period.StartDateKey = core.MaxKey(p.StartDateKey, rng.StartDateKey)
	res.Period.EndDateKey = core.MinKey(p.EndDateKey, rng.EndDateKey)
	res.WasClampedToSnapshot = res.Period.StartDateKey != p.StartDateKey || res.Period.EndDateKey != p.EndDateKey
	return res
}

// Describe explains an empty or clamped resolution in user-facing Russian.
// It returns "" for a resolution that fit the snapshot unchanged.
func (r Resolution) Describe() string {
	switch {
	case r.Empty:
		return fmt.Sprintf("Период %s вне диапазона данных %s: данных нет, это не означает отсутствие операций.",
			core.FormatRangeRu(r.Requested.StartDateKey, r.Requested.EndDateKey),
			core.FormatRangeRu(r.SnapshotRange.StartDateKey, r.SnapshotRange.EndDateKey))
	case r.WasClampedToSnapshot:
		return fmt.Sprintf("Запрошен период %s, данные есть только за %s.",
			core.FormatRangeRu(r.Requested.StartDateKey, r.Requested.EndDateKey),
			core.FormatRangeRu(r.Period.StartDateKey, r.Period.EndDateKey))
	}
	return ""
}
