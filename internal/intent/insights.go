package intent

import (
	"fmt"
	"math"
	"strings"

	"ledgerqa/internal/core"
	"ledgerqa/internal/facts"
)

// Recommendation sentences chosen by dayInsight.
const (
	recQuiet       = "Операций, влияющих на итог, нет."
	recPositive    = "День закрыт в плюс, свободный остаток можно направить на плановые платежи."
	recCovered     = "Итог дня отрицательный, но ликвидность покрывает разрыв."
	recNeedsCover  = "Итог дня отрицательный и ликвидности не хватает: нужно покрытие разрыва."
	recLowCoverage = "Поступления покрывают меньше половины расходов, стоит проверить крупные списания."
)

type dayInsight struct {
	Net            float64
	Coverage       float64
	HasCoverage    bool
	LargestIncome  *facts.Operation
	LargestExpense *facts.Operation
	Anomalies      []facts.Anomaly
	Recommendation string
}

func buildDayInsight(f facts.Facts, liquidity float64) dayInsight {
	in := dayInsight{Net: f.Totals.Net, Anomalies: f.Anomalies}
	if f.Totals.Expense > 0 {
		in.HasCoverage = true
		in.Coverage = f.Totals.Income / f.Totals.Expense
	}
	for i := range f.Operations {
		op := &f.Operations[i]
		switch {
		case op.Kind == facts.KindIncome && in.LargestIncome == nil:
			in.LargestIncome = op
		case op.Kind == facts.KindExpense && op.Class == facts.ClassOperational && in.LargestExpense == nil:
			in.LargestExpense = op
		}
	}

	switch {
	case f.Totals.Income == 0 && f.Totals.Expense == 0:
		in.Recommendation = recQuiet
	case in.Net >= 0 && in.HasCoverage && in.Coverage < 0.5:
		in.Recommendation = recLowCoverage
	case in.Net >= 0:
		in.Recommendation = recPositive
	case liquidity >= -in.Net:
		in.Recommendation = recCovered
	default:
		in.Recommendation = recNeedsCover
	}
	return in
}

// writeDayBlock appends the day's ledger lines and its insights section.
func (r *Renderer) writeDayBlock(b *strings.Builder, day core.Day, scope core.VisibilityMode) {
	if !day.HasActivity() {
		b.WriteString("Операций за день нет.\n")
		return
	}
	f := r.aggregator().Aggregate([]core.Day{day}, facts.Options{})

	writeEntries(b, "Поступления", day.Lists.Income)
	writeEntries(b, "Расходы", day.Lists.Expense)
	writeEntries(b, "Выводы", day.Lists.Withdrawal)
	if len(day.Lists.Transfer) > 0 {
		b.WriteString("Переводы:\n")
		for _, t := range day.Lists.Transfer {
			note := ""
			if t.IsOutOfSystemTransfer {
				note = " (вне системы)"
			}
			fmt.Fprintf(b, "  • %s → %s: %s%s\n", t.FromAccName, t.ToAccName, core.FormatMoney(t.Abs()), note)
		}
	}

	in := buildDayInsight(f, day.ScopedBalance(scope))
	b.WriteString("Выводы по дню:\n")
	fmt.Fprintf(b, "  • Итог дня: %s\n", core.FormatSignedMoney(in.Net))
	if in.HasCoverage {
		fmt.Fprintf(b, "  • Покрытие расходов поступлениями: %d%%\n", int(math.Round(in.Coverage*100)))
	}
	if in.LargestIncome != nil {
		fmt.Fprintf(b, "  • Крупнейшее поступление: %s\n", describeOperation(*in.LargestIncome))
	}
	if in.LargestExpense != nil {
		fmt.Fprintf(b, "  • Крупнейший расход: %s\n", describeOperation(*in.LargestExpense))
	}
	for _, a := range in.Anomalies {
		fmt.Fprintf(b, "  • Внимание: «%s» расходы превышают поступления на %s\n", a.Name, core.FormatMoney(a.Gap))
	}
	if f.OwnerDraw.Amount > 0 {
		fmt.Fprintf(b, "  • Вывод собственнику: %s\n", core.FormatMoney(f.OwnerDraw.Amount))
	}
	if f.OffsetNetting.Amount > 0 {
		fmt.Fprintf(b, "  • Взаимозачеты: %s\n", core.FormatMoney(f.OffsetNetting.Amount))
	}
	fmt.Fprintf(b, "Рекомендация: %s\n", in.Recommendation)
}

func writeEntries(b *strings.Builder, title string, entries []core.Entry) {
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", title)
	for _, e := range entries {
		parts := []string{core.FormatMoney(e.Abs())}
		if e.CatName != "" {
			parts = append(parts, e.CatName)
		}
		if e.ContName != "" {
			parts = append(parts, e.ContName)
		}
		fmt.Fprintf(b, "  • %s\n", strings.Join(parts, " · "))
	}
}

func (r *Renderer) insights(in Intent, snap *core.Snapshot, asOfKey string) Result {
	return RenderBundle(r.builder.Build(in.Question, asOfKey, snap))
}

// RenderBundle formats the generic facts block for an already built bundle.
// It is the fallback for unknown intents and for composed answers that did
// not pass the audit.
func RenderBundle(bundle facts.Bundle) Result {
	res := bundle.Resolution
	meta := map[string]any{
		"startDateKey":         res.Period.StartDateKey,
		"endDateKey":           res.Period.EndDateKey,
		"source":               res.Period.Source,
		"wasClampedToSnapshot": res.WasClampedToSnapshot,
	}
	if res.Empty {
		meta["noDataReason"] = res.NoDataReason
		return Result{OK: false, Text: res.Describe(), Meta: meta}
	}

	f := bundle.Facts
	var b strings.Builder
	fmt.Fprintf(&b, "Сводка за %s:\n", core.FormatRangeRu(res.Period.StartDateKey, res.Period.EndDateKey))
	if note := res.Describe(); note != "" {
		fmt.Fprintf(&b, "%s\n", note)
	}
	if f.Totals.GrossIncome != f.Totals.Income {
		fmt.Fprintf(&b, "Поступления: %s (до взаимозачетов %s)\n", core.FormatMoney(f.Totals.Income), core.FormatMoney(f.Totals.GrossIncome))
	} else {
		fmt.Fprintf(&b, "Поступления: %s\n", core.FormatMoney(f.Totals.Income))
	}
	fmt.Fprintf(&b, "Расходы: %s\n", core.FormatMoney(f.Totals.Expense))
	fmt.Fprintf(&b, "Итог: %s\n", core.FormatSignedMoney(f.Totals.Net))
	writeBucket(&b, "Вывод собственнику", f.OwnerDraw)
	writeBucket(&b, "Взаимозачеты", f.OffsetNetting)

	if len(f.TopExpenseCategories) > 0 {
		b.WriteString("Крупнейшие категории расходов:\n")
		for _, c := range f.TopExpenseCategories {
			fmt.Fprintf(&b, "  • %s: %s\n", c.Name, core.FormatMoney(c.Amount))
		}
	}
	if len(f.Anomalies) > 0 {
		b.WriteString("Категории в минусе:\n")
		for _, a := range f.Anomalies {
			fmt.Fprintf(&b, "  • %s: расходы %s при поступлениях %s, разрыв %s\n",
				a.Name, core.FormatMoney(a.Expense), core.FormatMoney(a.Income), core.FormatMoney(a.Gap))
		}
	}
	if f.EndBalances.DateKey != "" {
		fmt.Fprintf(&b, "Остатки на %s: открытые %s, скрытые %s, всего %s\n",
			core.FormatDateRu(f.EndBalances.DateKey), core.FormatMoney(f.EndBalances.Open),
			core.FormatMoney(f.EndBalances.Hidden), core.FormatMoney(f.EndBalances.Total))
	}
	if f.Fact != nil && f.Plan != nil && f.Plan.Days > 0 {
		fmt.Fprintf(&b, "Факт по %s: поступления %s, расходы %s. План после: поступления %s, расходы %s.\n",
			core.FormatDateRu(bundle.AsOfKey),
			core.FormatMoney(f.Fact.Totals.Income), core.FormatMoney(f.Fact.Totals.Expense),
			core.FormatMoney(f.Plan.Totals.Income), core.FormatMoney(f.Plan.Totals.Expense))
	}
	for _, pt := range bundle.Comparison {
		r := pt.Resolution
		if r.Empty {
			fmt.Fprintf(&b, "Сравнение: %s вне диапазона данных.\n", core.FormatRangeRu(r.Requested.StartDateKey, r.Requested.EndDateKey))
			continue
		}
		fmt.Fprintf(&b, "Сравнение %s: поступления %s, расходы %s, итог %s\n",
			core.FormatRangeRu(r.Period.StartDateKey, r.Period.EndDateKey),
			core.FormatMoney(pt.Totals.Income), core.FormatMoney(pt.Totals.Expense), core.FormatSignedMoney(pt.Totals.Net))
	}

	rec := "Период закрыт в плюс, операционный результат положительный."
	switch {
	case f.Totals.Income == 0 && f.Totals.Expense == 0:
		rec = recQuiet
	case f.Totals.Net < 0 && f.EndBalances.Open >= -f.Totals.Net:
		rec = "Период в минусе, но остатков на открытых счетах хватает, чтобы покрыть разрыв."
	case f.Totals.Net < 0:
		rec = "Период в минусе и остатков не хватает: нужно покрытие разрыва."
	}
	fmt.Fprintf(&b, "Рекомендация: %s", rec)

	return Result{OK: true, Numeric: true, Text: b.String(), Meta: meta}
}

func writeBucket(b *strings.Builder, title string, bucket facts.Bucket) {
	if bucket.Amount == 0 {
		return
	}
	names := make([]string, 0, len(bucket.ByCategory))
	for _, c := range bucket.ByCategory {
		names = append(names, fmt.Sprintf("%s %s", c.Name, core.FormatMoney(c.Amount)))
	}
	fmt.Fprintf(b, "%s: %s (%s)\n", title, core.FormatMoney(bucket.Amount), strings.Join(names, "; "))
}
