package intent

import (
	"fmt"
	"math"

	"ledgerqa/internal/core"
)

// lowPoint is the smallest scoped balance between two days.
type lowPoint struct {
	Balance float64
	DateKey string
	Horizon string
}

func lowestBalanceFrom(snap *core.Snapshot, key, endKey string, scope core.VisibilityMode) (lowPoint, bool) {
	days := snap.DaysBetween(key, endKey)
	if len(days) == 0 {
		return lowPoint{}, false
	}
	low := lowPoint{Balance: days[0].ScopedBalance(scope), DateKey: days[0].DateKey, Horizon: days[len(days)-1].DateKey}
	for _, d := range days[1:] {
		if b := d.ScopedBalance(scope); b < low.Balance {
			low.Balance, low.DateKey = b, d.DateKey
		}
	}
	return low, true
}

// investCapacity answers how much can leave the scoped accounts by the target
// date without any later balance going negative. With the inflows basis the
// answer is further capped by what arrives between as-of and the target.
func (r *Renderer) investCapacity(in Intent, snap *core.Snapshot, asOfKey string) Result {
	key := targetDate(in, asOfKey)
	if _, ok := snap.Day(key); !ok {
		return missingDay(key, snap)
	}
	scope := scopeOf(in, core.VisibilityOpen)
	low, _ := lowestBalanceFrom(snap, key, snap.Range.EndDateKey, scope)
	capacity := math.Max(0, low.Balance)

	basis := in.Basis
	if basis != BasisInflows {
		basis = BasisBalance
	}
	meta := map[string]any{
		"dateKey": key, "scope": string(scope), "basis": string(basis),
		"minBalance": low.Balance, "minDateKey": low.DateKey,
	}

	var inflowNote string
	if basis == BasisInflows {
		from := asOfKey
		if key > asOfKey {
			from, _ = core.ShiftDateKey(asOfKey, 1)
		}
		inflows := r.aggregator().Totals(snap.DaysBetween(from, key)).Income
		meta["inflows"] = inflows
		inflowNote = fmt.Sprintf(" Поступления за %s: %s.", core.FormatRangeRu(from, key), core.FormatMoney(inflows))
		capacity = math.Min(capacity, inflows)
	}
	meta["capacity"] = capacity

	var text string
	if capacity <= 0 {
		text = fmt.Sprintf("К %s вывести средства (%s) нельзя: остаток опускается до %s %s.%s",
			core.FormatDateRu(key), scopeLabel(scope), core.FormatMoney(low.Balance), core.FormatDateRu(low.DateKey), inflowNote)
	} else {
		text = fmt.Sprintf("К %s можно вывести до %s (%s), не уходя в минус до %s. Минимальный остаток %s ожидается %s.%s",
			core.FormatDateRu(key), core.FormatMoney(capacity), scopeLabel(scope), core.FormatDateRu(low.Horizon),
			core.FormatMoney(low.Balance), core.FormatDateRu(low.DateKey), inflowNote)
	}
	return Result{OK: true, Numeric: true, Text: text, Meta: meta}
}

// expenseFeasibility checks whether a one-off expense on the target date
// keeps every later scoped balance non-negative.
func (r *Renderer) expenseFeasibility(in Intent, snap *core.Snapshot, asOfKey string) Result {
	amount := math.Abs(in.RequestedAmount)
	if amount == 0 {
		return miss("Не указана сумма расхода: нужны сумма и дата.")
	}
	key := targetDate(in, asOfKey)
	if _, ok := snap.Day(key); !ok {
		return missingDay(key, snap)
	}
	scope := scopeOf(in, core.VisibilityOpen)
	low, _ := lowestBalanceFrom(snap, key, snap.Range.EndDateKey, scope)
	after := low.Balance - amount
	feasible := after >= 0

	meta := map[string]any{
		"dateKey": key, "scope": string(scope), "requestedAmount": amount,
		"minBalance": low.Balance, "minDateKey": low.DateKey, "feasible": feasible,
	}
	var text string
	if feasible {
		text = fmt.Sprintf("Расход %s на %s можно себе позволить (%s): минимальный остаток %s (%s), после расхода останется %s.",
			core.FormatMoney(amount), core.FormatDateRu(key), scopeLabel(scope),
			core.FormatMoney(low.Balance), core.FormatDateRu(low.DateKey), core.FormatMoney(after))
	} else {
		meta["shortfall"] = -after
		text = fmt.Sprintf("Расход %s на %s не покрывается (%s): минимальный остаток %s (%s), не хватает %s.",
			core.FormatMoney(amount), core.FormatDateRu(key), scopeLabel(scope),
			core.FormatMoney(low.Balance), core.FormatDateRu(low.DateKey), core.FormatMoney(-after))
	}
	return Result{OK: true, Numeric: true, Text: text, Meta: meta}
}
