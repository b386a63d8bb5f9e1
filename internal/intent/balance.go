package intent

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"ledgerqa/internal/core"
	"ledgerqa/internal/facts"
)

func monthOf(m int) time.Month { return time.Month(m) }

func (r *Renderer) balanceOnDate(in Intent, snap *core.Snapshot, asOfKey string) Result {
	key := targetDate(in, asOfKey)
	day, ok := snap.Day(key)
	if !ok {
		return missingDay(key, snap)
	}
	scope := scopeOf(in, snap.VisibilityMode)
	balance := day.ScopedBalance(scope)

	var b strings.Builder
	fmt.Fprintf(&b, "Баланс на %s (%s): %s\n", core.FormatDateRu(key), scopeLabel(scope), core.FormatMoney(balance))
	if scope != core.VisibilityHidden {
		writeAccounts(&b, "Открытые счета", day, true)
	}
	if scope != core.VisibilityOpen {
		writeAccounts(&b, "Скрытые счета", day, false)
	}
	r.writeDayBlock(&b, day, scope)

	return Result{
		OK:      true,
		Numeric: true,
		Text:    strings.TrimRight(b.String(), "\n"),
		Meta:    map[string]any{"dateKey": key, "scope": string(scope), "balance": balance},
	}
}

func (r *Renderer) openBalancesOnDate(in Intent, snap *core.Snapshot, asOfKey string) Result {
	key := targetDate(in, asOfKey)
	day, ok := snap.Day(key)
	if !ok {
		return missingDay(key, snap)
	}
	open := day.ScopedBalance(core.VisibilityOpen)

	var b strings.Builder
	fmt.Fprintf(&b, "Остатки на открытых счетах на %s: %s\n", core.FormatDateRu(key), core.FormatMoney(open))
	n := writeAccountLines(&b, day, true)
	if n == 0 {
		b.WriteString("Открытых счетов в снимке нет.\n")
	}
	return Result{
		OK:      true,
		Numeric: true,
		Text:    strings.TrimRight(b.String(), "\n"),
		Meta:    map[string]any{"dateKey": key, "scope": string(core.VisibilityOpen), "balance": open, "accounts": n},
	}
}

// upcomingOps lists operations after as-of up to the intent date or the end
// of the as-of month.
func (r *Renderer) upcomingOps(in Intent, snap *core.Snapshot, asOfKey string) Result {
	start, err := core.ShiftDateKey(asOfKey, 1)
	if err != nil {
		return miss("Некорректная дата %s.", asOfKey)
	}
	end := in.DateKey
	if end == "" || end < start {
		end = targetMonthRange(in, asOfKey).EndDateKey
	}
	if start > snap.Range.EndDateKey {
		t, _ := core.ParseDateKey(start)
		m := core.MonthRange(t.Year(), t.Month())
		return Result{
			OK: false,
			Text: fmt.Sprintf("Нет дней после %s в снимке; нужен диапазон %s — %s.",
				snap.Range.EndDateKey, m.StartDateKey, m.EndDateKey),
			Meta: map[string]any{"missingDateKey": start},
		}
	}

	days := snap.DaysBetween(start, end)
	all := r.aggregator().Operations(days)
	ops := r.aggregator().TopOperations(days, facts.DefaultOperationLimit, false)
	sort.SliceStable(ops, func(i, j int) bool { return ops[i].DateKey < ops[j].DateKey })

	var b strings.Builder
	span := core.FormatRangeRu(start, core.MinKey(end, snap.Range.EndDateKey))
	if len(all) == 0 {
		fmt.Fprintf(&b, "Запланированных операций за %s нет.", span)
		return Result{OK: true, Numeric: false, Text: b.String(), Meta: map[string]any{"startDateKey": start, "endDateKey": end}}
	}

	fmt.Fprintf(&b, "Ближайшие операции за %s:\n", span)
	for _, op := range ops {
		fmt.Fprintf(&b, "• %s %s\n", core.FormatDateRu(op.DateKey), describeOperation(op))
	}
	// Totals cover every row, not only the listed ones.
	inflow, outflow := cashFlow(all)
	if hidden := len(all) - len(ops); hidden > 0 {
		listedIn, listedOut := cashFlow(ops)
		fmt.Fprintf(&b, "Еще %d %s не показаны (поступления %s, списания %s).\n",
			hidden, pluralOperations(hidden), core.FormatMoney(inflow-listedIn), core.FormatMoney(outflow-listedOut))
	}
	fmt.Fprintf(&b, "Итого поступлений: %s, списаний: %s.", core.FormatMoney(inflow), core.FormatMoney(outflow))
	return Result{
		OK:      true,
		Numeric: true,
		Text:    b.String(),
		Meta: map[string]any{
			"startDateKey": start, "endDateKey": end,
			"operations": len(all), "listed": len(ops),
			"inflow": inflow, "outflow": outflow,
		},
	}
}

// cashFlow sums incoming and outgoing rows; transfers inside the ledger move
// nothing.
func cashFlow(ops []facts.Operation) (inflow, outflow float64) {
	for _, op := range ops {
		switch {
		case op.Kind == facts.KindIncome:
			inflow += op.Amount
		case op.Kind == facts.KindTransfer && !op.OutOfSystem:
		default:
			outflow += op.Amount
		}
	}
	return inflow, outflow
}

func writeAccounts(b *strings.Builder, title string, day core.Day, open bool) {
	scope := core.VisibilityHidden
	if open {
		scope = core.VisibilityOpen
	}
	fmt.Fprintf(b, "%s: %s\n", title, core.FormatMoney(day.ScopedBalance(scope)))
	writeAccountLines(b, day, open)
}

func writeAccountLines(b *strings.Builder, day core.Day, open bool) int {
	n := 0
	for _, a := range day.AccountBalances {
		if a.IsOpen != open {
			continue
		}
		name := a.Name
		if name == "" {
			name = "Счет " + a.AccountID
		}
		fmt.Fprintf(b, "  • %s: %s\n", name, core.FormatMoney(a.Balance))
		n++
	}
	return n
}

var kindLabels = map[string]string{
	facts.KindIncome:     "поступление",
	facts.KindExpense:    "расход",
	facts.KindWithdrawal: "вывод",
	facts.KindTransfer:   "перевод",
}

func describeOperation(op facts.Operation) string {
	label := kindLabels[op.Kind]
	if op.Kind == facts.KindTransfer {
		if op.OutOfSystem {
			label = "вывод вне системы"
		}
		return fmt.Sprintf("%s %s: %s → %s", label, core.FormatMoney(op.Amount), op.Account, op.Counterparty)
	}
	parts := []string{fmt.Sprintf("%s %s", label, core.FormatMoney(op.Amount))}
	if op.Category != "" {
		parts = append(parts, op.Category)
	}
	if op.Counterparty != "" {
		parts = append(parts, op.Counterparty)
	}
	return strings.Join(parts, " · ")
}
