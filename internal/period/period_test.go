package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerqa/internal/core"
)

func TestResolveCascade(t *testing.T) {
	r := NewResolver()
	tests := []struct {
		name     string
		question string
		asOf     string
		want     Period
	}{
		{"iso range", "Расходы с 2026-02-01 по 2026-02-10", "2026-02-15",
			Period{"2026-02-01", "2026-02-10", SourceExplicitISORange}},
		{"iso range reversed", "from 2026-02-10 to 2026-02-01", "2026-02-15",
			Period{"2026-02-01", "2026-02-10", SourceExplicitISORange}},
		{"dm range", "что было с 01.02 по 10.02", "2026-02-15",
			Period{"2026-02-01", "2026-02-10", SourceExplicitDMRange}},
		{"dm range across new year", "с 25.12 по 05.01", "2026-01-15",
			Period{"2025-12-25", "2026-01-05", SourceExplicitDMRange}},
		{"dm range explicit years", "с 01.03.2025 по 31.03.25", "2026-01-15",
			Period{"2025-03-01", "2025-03-31", SourceExplicitDMRange}},
		{"yesterday", "сколько потратили вчера?", "2026-02-15",
			Period{"2026-02-14", "2026-02-14", SourceRelativeDay}},
		{"day before yesterday", "а позавчера?", "2026-02-15",
			Period{"2026-02-13", "2026-02-13", SourceRelativeDay}},
		{"tomorrow", "что будет послезавтра", "2026-02-15",
			Period{"2026-02-17", "2026-02-17", SourceRelativeDay}},
		{"last month", "итоги в прошлом месяце", "2026-01-15",
			Period{"2025-12-01", "2025-12-31", SourceLastMonth}},
		{"named month past", "Расходы за октябрь", "2026-01-15",
			Period{"2025-10-01", "2025-10-31", SourceNamedMonth}},
		{"named month upcoming", "что в марте", "2026-01-15",
			Period{"2026-03-01", "2026-03-31", SourceNamedMonth}},
		{"named month explicit year", "итог за март 2024", "2026-01-15",
			Period{"2024-03-01", "2024-03-31", SourceNamedMonth}},
		{"named month two digit year", "за май '25", "2026-01-15",
			Period{"2025-05-01", "2025-05-31", SourceNamedMonth}},
		{"end of month", "что будет к концу месяца", "2026-02-15",
			Period{"2026-02-01", "2026-02-28", SourceEndOfMonth}},
		{"end of named month", "баланс к концу марта", "2026-02-15",
			Period{"2026-03-01", "2026-03-31", SourceEndOfMonth}},
		{"week of month", "расходы на второй неделе марта", "2026-02-15",
			Period{"2026-03-09", "2026-03-15", SourceWeekOfMonth}},
		{"week clamped to month end", "пятая неделя марта", "2026-02-15",
			Period{"2026-03-30", "2026-03-31", SourceWeekOfMonth}},
		{"week of last month", "первая неделя прошлого месяца", "2026-02-15",
			Period{"2026-01-05", "2026-01-11", SourceWeekOfMonth}},
		{"week of month digit suffix", "2-я неделя марта", "2026-02-15",
			Period{"2026-03-09", "2026-03-15", SourceWeekOfMonth}},
		{"week of month bare digit with month", "расходы за 2 неделю марта", "2026-02-15",
			Period{"2026-03-09", "2026-03-15", SourceWeekOfMonth}},
		{"week count is not an ordinal", "сколько ушло в феврале за последние 2 недели", "2026-03-15",
			Period{"2026-02-01", "2026-02-28", SourceNamedMonth}},
		{"weeks ago is not an ordinal", "что было 2 недели назад в прошлом месяце", "2026-02-15",
			Period{"2026-01-01", "2026-01-31", SourceLastMonth}},
		{"english may as month", "expenses in may", "2026-02-15",
			Period{"2026-05-01", "2026-05-31", SourceNamedMonth}},
		{"current month", "как дела с расходами по аренде в этом месяце", "2026-02-15",
			Period{"2026-02-01", "2026-02-28", SourceCurrentMonth}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.Resolve(tt.question, tt.asOf, nil)
			require.True(t, ok, "no rule matched %q", tt.question)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, got.StartDateKey, got.EndDateKey)
		})
	}
}

func TestResolveNoMatch(t *testing.T) {
	r := NewResolver()
	for _, q := range []string{
		"какой у меня баланс?",
		"маяк",
		"с 31.02 по 05.03",
		"шестая неделя",
		"пятая неделя февраля",
		"сколько потратили за последние 2 недели",
		"что было 2 недели назад",
		"пять недель подряд",
		"how much may i spend in total",
	} {
		_, ok := r.Resolve(q, "2026-02-15", nil)
		assert.False(t, ok, "unexpected match for %q", q)
	}
}

func TestResolveFallsBackToSnapshotEnd(t *testing.T) {
	snap := &core.Snapshot{Range: core.Range{StartDateKey: "2026-02-01", EndDateKey: "2026-02-28"}}
	got, ok := NewResolver().Resolve("вчера", "", snap)
	require.True(t, ok)
	assert.Equal(t, "2026-02-27", got.StartDateKey)

	_, ok = NewResolver().Resolve("вчера", "bad", nil)
	assert.False(t, ok)
}

func TestInferYear(t *testing.T) {
	asOf := time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 2025, InferYear(time.October, asOf))
	assert.Equal(t, 2026, InferYear(time.March, asOf))
	assert.Equal(t, 2026, InferYear(time.January, asOf))
}

func TestResolveIsPure(t *testing.T) {
	r := NewResolver()
	snap := &core.Snapshot{Range: core.Range{StartDateKey: "2026-02-01", EndDateKey: "2026-02-28"}}
	for _, q := range []string{"за октябрь", "сравни январь и февраль", "вчера"} {
		a, okA := r.Resolve(q, "2026-02-15", snap)
		b, okB := r.Resolve(q, "2026-02-15", snap)
		assert.Equal(t, okA, okB)
		assert.Equal(t, a, b)

		c1, _ := r.ResolveComparison(q, "2026-02-15", snap)
		c2, _ := r.ResolveComparison(q, "2026-02-15", snap)
		assert.Equal(t, c1, c2)
	}
}

func TestFindMonthMentions(t *testing.T) {
	text := "сравни март 2025, апрель '25 и мая 26г против октября"
	got := FindMonthMentions(text)
	require.Len(t, got, 4)
	assert.Equal(t, time.March, got[0].Month)
	assert.Equal(t, 2025, got[0].Year)
	assert.Equal(t, time.April, got[1].Month)
	assert.Equal(t, 2025, got[1].Year)
	assert.Equal(t, time.May, got[2].Month)
	assert.Equal(t, 2026, got[2].Year)
	assert.Equal(t, time.October, got[3].Month)
	assert.Zero(t, got[3].Year)
	for i := 1; i < len(got); i++ {
		assert.Less(t, got[i-1].End, got[i].Start)
	}

	assert.Empty(t, FindMonthMentions("маяк и мартышка"))
	// A second call sees the same text from the start.
	assert.Equal(t, got, FindMonthMentions(text))
}

func TestFindMonthMentions_EnglishMay(t *testing.T) {
	assert.Empty(t, FindMonthMentions("how much may i spend in total"))
	assert.Empty(t, FindMonthMentions("may i see the totals"))

	for _, text := range []string{"expenses in may", "may 2025 totals", "by 5 may", "end of may"} {
		got := FindMonthMentions(text)
		require.Len(t, got, 1, text)
		assert.Equal(t, time.May, got[0].Month, text)
	}
}

func TestResolveComparison(t *testing.T) {
	r := NewResolver()

	c, ok := r.ResolveComparison("сравни январь и декабрь", "2026-02-15", nil)
	require.True(t, ok)
	require.Len(t, c.Periods, 2)
	assert.Equal(t, Period{"2026-01-01", "2026-01-31", SourceComparisonMonth}, c.Periods[0])
	assert.Equal(t, Period{"2025-12-01", "2025-12-31", SourceComparisonMonth}, c.Periods[1])

	c, ok = r.ResolveComparison("как январь по сравнению с текущим", "2026-02-15", nil)
	require.True(t, ok)
	assert.Equal(t, Period{"2026-02-01", "2026-02-28", SourceComparisonAsOf}, c.Periods[1])

	_, ok = r.ResolveComparison("январь и январь", "2026-02-15", nil)
	assert.False(t, ok, "duplicates collapse to one period")

	_, ok = r.ResolveComparison("расходы за январь", "2026-02-15", nil)
	assert.False(t, ok)

	_, ok = r.ResolveComparison("сравни февраль", "2026-02-15", nil)
	assert.False(t, ok, "as-of month equals the only mention")
}

func TestClamp(t *testing.T) {
	rng := core.Range{StartDateKey: "2026-02-01", EndDateKey: "2026-02-28"}

	inside := Clamp(Period{"2026-02-03", "2026-02-10", SourceNamedMonth}, rng)
	assert.False(t, inside.WasClampedToSnapshot)
	assert.False(t, inside.Empty)
	assert.Empty(t, inside.Describe())

	partial := Clamp(Period{"2026-01-20", "2026-02-10", SourceExplicitISORange}, rng)
	assert.True(t, partial.WasClampedToSnapshot)
	assert.False(t, partial.Empty)
	assert.Equal(t, "2026-02-01", partial.Period.StartDateKey)
	assert.Equal(t, "2026-01-20", partial.Requested.StartDateKey)
	assert.Contains(t, partial.Describe(), "01.02.2026 — 10.02.2026")

	outside := Clamp(Period{"2026-03-01", "2026-03-31", SourceNamedMonth}, rng)
	assert.True(t, outside.Empty)
	assert.True(t, outside.WasClampedToSnapshot)
	assert.Equal(t, NoDataOutOfRange, outside.NoDataReason)
	assert.Contains(t, outside.Describe(), "01.03.2026 — 31.03.2026")
}

func TestResolveInSnapshot(t *testing.T) {
	snap := &core.Snapshot{Range: core.Range{StartDateKey: "2026-02-01", EndDateKey: "2026-02-28"}}
	res, ok := NewResolver().ResolveInSnapshot("за октябрь", "2026-02-15", snap)
	require.True(t, ok)
	assert.True(t, res.Empty)
	assert.Equal(t, NoDataOutOfRange, res.NoDataReason)
}
