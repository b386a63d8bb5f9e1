package core

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ParseSnapshot decodes snapshot JSON and validates it.
func ParseSnapshot(data []byte) (*Snapshot, error) {
	var raw RawSnapshot
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return ValidateSnapshot(raw)
}

// ValidateSnapshot rejects snapshots downstream arithmetic cannot trust and
// normalizes the rest: numbers coerced, stale totals recomputed, labels and
// balances filled in, days sorted by key.
func ValidateSnapshot(raw RawSnapshot) (*Snapshot, error) {
	if !raw.SchemaVersion.Set || raw.SchemaVersion.Value != SchemaVersion {
		return nil, fmt.Errorf("schemaVersion %v: %w", raw.SchemaVersion.Value, ErrSchemaVersion)
	}
	if len(raw.Days) == 0 {
		return nil, ErrNoDays
	}

	mode := VisibilityMode(strings.ToLower(strings.TrimSpace(raw.VisibilityMode)))
	if mode == "" {
		mode = VisibilityAll
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%q: %w", raw.VisibilityMode, ErrVisibilityMode)
	}

	days := make([]Day, 0, len(raw.Days))
	for i, rd := range raw.Days {
		key := strings.TrimSpace(rd.DateKey)
		if !ValidDateKey(key) {
			return nil, fmt.Errorf("day %d: %q: %w", i, rd.DateKey, ErrInvalidDateKey)
		}
		days = append(days, normalizeDay(key, rd))
	}
	sort.SliceStable(days, func(i, j int) bool { return days[i].DateKey < days[j].DateKey })
	for i := 1; i < len(days); i++ {
		if days[i].DateKey == days[i-1].DateKey {
			return nil, fmt.Errorf("%s: %w", days[i].DateKey, ErrDuplicateDay)
		}
	}

	rng, err := normalizeRange(raw.Range, days)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		SchemaVersion:  SchemaVersion,
		Range:          rng,
		VisibilityMode: mode,
		Days:           days,
	}, nil
}

// normalizeRange fills missing bounds from the days and rejects a range that
// leaves any day outside it.
func normalizeRange(r *Range, days []Day) (Range, error) {
	out := Range{StartDateKey: days[0].DateKey, EndDateKey: days[len(days)-1].DateKey}
	if r == nil {
		return out, nil
	}
	if s := strings.TrimSpace(r.StartDateKey); s != "" {
		if !ValidDateKey(s) {
			return Range{}, fmt.Errorf("start %q: %w", s, ErrInvalidRange)
		}
		out.StartDateKey = s
	}
	if e := strings.TrimSpace(r.EndDateKey); e != "" {
		if !ValidDateKey(e) {
			return Range{}, fmt.Errorf("end %q: %w", e, ErrInvalidRange)
		}
		out.EndDateKey = e
	}
	if out.StartDateKey > out.EndDateKey {
		return Range{}, fmt.Errorf("%s > %s: %w", out.StartDateKey, out.EndDateKey, ErrInvalidRange)
	}
	if first, last := days[0].DateKey, days[len(days)-1].DateKey; first < out.StartDateKey || last > out.EndDateKey {
		return Range{}, fmt.Errorf("%s..%s does not cover days %s..%s: %w", out.StartDateKey, out.EndDateKey, first, last, ErrInvalidRange)
	}
	return out, nil
}

func normalizeDay(key string, rd RawDay) Day {
	d := Day{
		DateKey:   key,
		DateLabel: strings.TrimSpace(rd.DateLabel),
		Lists: Lists{
			Income:     normalizeEntries(rd.Lists.Income),
			Expense:    normalizeEntries(rd.Lists.Expense),
			Withdrawal: normalizeEntries(rd.Lists.Withdrawal),
			Transfer:   normalizeTransfers(rd.Lists.Transfer),
		},
	}
	if d.DateLabel == "" {
		d.DateLabel = FormatDateRu(key)
	}

	var accountSum float64
	for _, ra := range rd.AccountBalances {
		a := AccountBalance{
			AccountID: idString(ra.AccountID),
			Name:      strings.TrimSpace(ra.Name),
			Balance:   finite(ra.Balance.Value),
			IsOpen:    bool(ra.IsOpen),
		}
		accountSum += a.Balance
		d.AccountBalances = append(d.AccountBalances, a)
	}

	d.TotalBalance = finite(rd.TotalBalance.Value)
	if !rd.TotalBalance.Set || (d.TotalBalance == 0 && accountSum != 0) {
		d.TotalBalance = accountSum
	}

	d.Totals.Income = math.Abs(finite(rd.Totals.Income.Value))
	if d.Totals.Income == 0 && len(d.Lists.Income) > 0 {
		d.Totals.Income = sumEntries(d.Lists.Income)
	}
	d.Totals.Expense = math.Abs(finite(rd.Totals.Expense.Value))
	if d.Totals.Expense == 0 && len(d.Lists.Expense) > 0 {
		d.Totals.Expense = sumEntries(d.Lists.Expense)
	}
	return d
}

func normalizeEntries(in []RawEntry) []Entry {
	if len(in) == 0 {
		return nil
	}
	out := make([]Entry, 0, len(in))
	for _, re := range in {
		e := Entry{
			ID:             idString(re.ID),
			Amount:         finite(re.Amount.Value),
			CatName:        strings.TrimSpace(re.CatName),
			AccName:        strings.TrimSpace(re.AccName),
			ContName:       strings.TrimSpace(re.ContName),
			ProjName:       strings.TrimSpace(re.ProjName),
			LinkedParentID: idString(re.LinkedParentID),
			OffsetIncomeID: idString(re.OffsetIncomeID),
		}
		for _, ro := range re.Offsets {
			e.Offsets = append(e.Offsets, Offset{Amount: finite(ro.Amount.Value), Note: ro.Note})
		}
		out = append(out, e)
	}
	return out
}

func normalizeTransfers(in []RawTransfer) []Transfer {
	if len(in) == 0 {
		return nil
	}
	out := make([]Transfer, 0, len(in))
	for _, rt := range in {
		out = append(out, Transfer{
			ID:                    idString(rt.ID),
			Amount:                finite(rt.Amount.Value),
			FromAccName:           strings.TrimSpace(rt.FromAccName),
			ToAccName:             strings.TrimSpace(rt.ToAccName),
			IsOutOfSystemTransfer: bool(rt.IsOutOfSystemTransfer),
		})
	}
	return out
}

func sumEntries(entries []Entry) float64 {
	var sum float64
	for _, e := range entries {
		sum += e.Abs()
	}
	return sum
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
