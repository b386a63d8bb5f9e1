package intent

import (
	"fmt"
	"strings"

	"ledgerqa/internal/core"
)

func (r *Renderer) forecastEndOfMonth(in Intent, snap *core.Snapshot, asOfKey string) Result {
	return r.forecast(in, snap, asOfKey, scopeOf(in, core.VisibilityAll))
}

func (r *Renderer) forecastOpenEndOfMonth(in Intent, snap *core.Snapshot, asOfKey string) Result {
	return r.forecast(in, snap, asOfKey, core.VisibilityOpen)
}

// forecast reads the scoped balance on the last day of the target month and
// the plan between as-of and that day.
func (r *Renderer) forecast(in Intent, snap *core.Snapshot, asOfKey string, scope core.VisibilityMode) Result {
	month := targetMonthRange(in, asOfKey)
	end, ok := snap.Day(month.EndDateKey)
	if !ok {
		return missingDay(month.EndDateKey, snap)
	}
	t, _ := core.ParseDateKey(month.EndDateKey)
	balance := end.ScopedBalance(scope)
	meta := map[string]any{"dateKey": month.EndDateKey, "scope": string(scope), "balance": balance}

	var b strings.Builder
	fmt.Fprintf(&b, "Прогноз на конец %s %d (%s, %s): %s\n",
		core.MonthGenitiveRu(t.Month()), t.Year(), core.FormatDateRu(month.EndDateKey), scopeLabel(scope), core.FormatMoney(balance))
	if scope == core.VisibilityAll {
		fmt.Fprintf(&b, "Открытые счета: %s, скрытые: %s\n",
			core.FormatMoney(end.ScopedBalance(core.VisibilityOpen)), core.FormatMoney(end.ScopedBalance(core.VisibilityHidden)))
	}

	if asOfKey < month.EndDateKey {
		if now, ok := snap.Day(asOfKey); ok {
			current := now.ScopedBalance(scope)
			meta["currentBalance"] = current
			fmt.Fprintf(&b, "Сейчас (%s): %s, изменение к концу месяца: %s\n",
				core.FormatDateRu(asOfKey), core.FormatMoney(current), core.FormatSignedMoney(balance-current))
		}
		from := core.MaxKey(month.StartDateKey, asOfKey)
		if from == asOfKey {
			from, _ = core.ShiftDateKey(asOfKey, 1)
		}
		plan := r.aggregator().Totals(snap.DaysBetween(from, month.EndDateKey))
		fmt.Fprintf(&b, "Запланировано с %s: поступления %s, расходы %s\n",
			core.FormatDateRu(from), core.FormatMoney(plan.Income), core.FormatMoney(plan.Expense))

		if low, ok := lowestBalanceFrom(snap, from, month.EndDateKey, scope); ok {
			meta["minBalance"] = low.Balance
			fmt.Fprintf(&b, "Минимальный остаток до конца месяца: %s (%s)\n", core.FormatMoney(low.Balance), core.FormatDateRu(low.DateKey))
			if low.Balance < 0 {
				b.WriteString("Внимание: остаток уходит в минус, нужен резерв или перенос платежей.\n")
			}
		}
	}
	return Result{OK: true, Numeric: true, Text: strings.TrimRight(b.String(), "\n"), Meta: meta}
}
