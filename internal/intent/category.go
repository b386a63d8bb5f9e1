package intent

import (
	"fmt"
	"sort"
	"strings"

	"ledgerqa/internal/core"
	"ledgerqa/internal/facts"
	"ledgerqa/internal/period"
)

type categoryLine struct {
	DateKey string
	Kind    string
	Entry   core.Entry
}

// categoryFact reports fact-only totals for a requested category from the
// start of the resolved period up to the as-of day.
func (r *Renderer) categoryFact(in Intent, snap *core.Snapshot, asOfKey string) Result {
	raw := strings.TrimSpace(in.CategoryRaw)
	if raw == "" {
		return miss("Не указана категория: уточните название категории.")
	}

	p, ok := r.resolver().Resolve(in.Question, asOfKey, snap)
	if !ok {
		t, _ := core.ParseDateKey(asOfKey)
		m := core.MonthRange(t.Year(), t.Month())
		p = period.Period{StartDateKey: m.StartDateKey, EndDateKey: m.EndDateKey, Source: period.SourceDefaultWindow}
	}
	res := period.Clamp(p, snap.Range)
	meta := map[string]any{"category": raw, "source": p.Source}
	if res.Empty {
		meta["noDataReason"] = res.NoDataReason
		return Result{OK: false, Text: res.Describe(), Meta: meta}
	}

	start := res.Period.StartDateKey
	end := core.MinKey(res.Period.EndDateKey, asOfKey)
	if end < start {
		return Result{
			OK: false,
			Text: fmt.Sprintf("Период %s начинается после %s: фактических операций еще нет.",
				core.FormatRangeRu(start, res.Period.EndDateKey), core.FormatDateRu(asOfKey)),
			Meta: meta,
		}
	}
	meta["startDateKey"], meta["endDateKey"] = start, end

	lines, matched := matchCategory(snap.DaysBetween(start, end), raw)
	span := core.FormatRangeRu(start, end)
	if len(lines) == 0 {
		if known := matchingCategories(snap.Days, raw); len(known) == 0 {
			return Result{
				OK:   false,
				Text: fmt.Sprintf("Категория «%s» не найдена в снимке. Есть категории: %s.", raw, strings.Join(allCategories(snap.Days, 10), ", ")),
				Meta: meta,
			}
		}
		meta["expense"], meta["income"] = 0.0, 0.0
		return Result{
			OK:      true,
			Numeric: true,
			Text:    fmt.Sprintf("По категории «%s» за %s (только факт) операций нет: 0 ₽.", raw, span),
			Meta:    meta,
		}
	}

	var expense, income, draw float64
	var nExpense, nIncome int
	for _, l := range lines {
		switch l.Kind {
		case facts.KindIncome:
			income += l.Entry.Abs()
			nIncome++
		case facts.KindWithdrawal:
			draw += l.Entry.Abs()
			nExpense++
		default:
			expense += l.Entry.Abs()
			nExpense++
		}
	}
	meta["expense"], meta["income"], meta["matched"] = expense+draw, income, matched

	var b strings.Builder
	fmt.Fprintf(&b, "Категория «%s» за %s (только факт, по %s):\n", strings.Join(matched, ", "), span, core.FormatDateRu(end))
	if nExpense > 0 {
		fmt.Fprintf(&b, "Расходы: %s (%d %s)\n", core.FormatMoney(expense+draw), nExpense, pluralOperations(nExpense))
	}
	if nIncome > 0 {
		fmt.Fprintf(&b, "Поступления: %s (%d %s)\n", core.FormatMoney(income), nIncome, pluralOperations(nIncome))
	}
	b.WriteString("Операции:\n")
	for _, l := range lines {
		fmt.Fprintf(&b, "  • %s %s %s\n", core.FormatDateRu(l.DateKey), kindLabels[l.Kind], core.FormatMoney(l.Entry.Abs()))
	}
	if res.Period.EndDateKey > end {
		fmt.Fprintf(&b, "Плановые операции после %s не учтены.", core.FormatDateRu(end))
	}
	return Result{OK: true, Numeric: true, Text: strings.TrimRight(b.String(), "\n"), Meta: meta}
}

func matchCategory(days []core.Day, requested string) ([]categoryLine, []string) {
	var lines []categoryLine
	seen := map[string]bool{}
	var matched []string
	add := func(key, kind string, entries []core.Entry) {
		for _, e := range entries {
			if !core.FuzzyCategoryMatch(requested, e.CatName) {
				continue
			}
			lines = append(lines, categoryLine{DateKey: key, Kind: kind, Entry: e})
			if !seen[e.CatName] {
				seen[e.CatName] = true
				matched = append(matched, e.CatName)
			}
		}
	}
	for _, d := range days {
		add(d.DateKey, facts.KindExpense, d.Lists.Expense)
		add(d.DateKey, facts.KindWithdrawal, d.Lists.Withdrawal)
		add(d.DateKey, facts.KindIncome, d.Lists.Income)
	}
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].DateKey < lines[j].DateKey })
	return lines, matched
}

func matchingCategories(days []core.Day, requested string) []string {
	_, matched := matchCategory(days, requested)
	return matched
}

func allCategories(days []core.Day, limit int) []string {
	seen := map[string]bool{}
	var out []string
	for _, d := range days {
		for _, list := range [][]core.Entry{d.Lists.Expense, d.Lists.Income, d.Lists.Withdrawal} {
			for _, e := range list {
				if e.CatName != "" && !seen[e.CatName] {
					seen[e.CatName] = true
					out = append(out, e.CatName)
				}
			}
		}
	}
	sort.Strings(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// pluralOperations picks the Russian plural form of "операция".
func pluralOperations(n int) string {
	switch {
	case n%10 == 1 && n%100 != 11:
		return "операция"
	case n%10 >= 2 && n%10 <= 4 && (n%100 < 12 || n%100 > 14):
		return "операции"
	default:
		return "операций"
	}
}
