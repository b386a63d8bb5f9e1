package core

import (
	"errors"
	"sort"
)

// SchemaVersion is the only snapshot schema this module understands.
const SchemaVersion = 1

const (
	VisibilityOpen   VisibilityMode = "open"
	VisibilityHidden VisibilityMode = "hidden"
	VisibilityAll    VisibilityMode = "all"
)

type (
	VisibilityMode string

	// Range bounds the days available in a snapshot, both keys inclusive.
	Range struct {
		StartDateKey string `json:"startDateKey"`
		EndDateKey   string `json:"endDateKey"`
	}

	// Snapshot is the validated, day-indexed ledger handed to every core
	// component. It is never mutated after ValidateSnapshot returns it.
	Snapshot struct {
		SchemaVersion  int            `json:"schemaVersion"`
		Range          Range          `json:"range"`
		VisibilityMode VisibilityMode `json:"visibilityMode"`
		Days           []Day          `json:"days"`
	}

	Day struct {
		DateKey         string           `json:"dateKey"`
		DateLabel       string           `json:"dateLabel"`
		TotalBalance    float64          `json:"totalBalance"`
		AccountBalances []AccountBalance `json:"accountBalances"`
		Totals          DayTotals        `json:"totals"`
		Lists           Lists            `json:"lists"`
	}

	DayTotals struct {
		Income  float64 `json:"income"`
		Expense float64 `json:"expense"`
	}

	AccountBalance struct {
		AccountID string  `json:"accountId"`
		Name      string  `json:"name"`
		Balance   float64 `json:"balance"`
		IsOpen    bool    `json:"isOpen"`
	}

	Lists struct {
		Income     []Entry    `json:"income"`
		Expense    []Entry    `json:"expense"`
		Withdrawal []Entry    `json:"withdrawal"`
		Transfer   []Transfer `json:"transfer"`
	}

	// Entry is an income, expense or withdrawal line. Amount is always
	// consumed through Abs.
	Entry struct {
		ID             string   `json:"id"`
		Amount         float64  `json:"amount"`
		CatName        string   `json:"catName"`
		AccName        string   `json:"accName"`
		ContName       string   `json:"contName"`
		ProjName       string   `json:"projName,omitempty"`
		Offsets        []Offset `json:"offsets,omitempty"`
		LinkedParentID string   `json:"linkedParentId,omitempty"`
		OffsetIncomeID string   `json:"offsetIncomeId,omitempty"`
	}

	Offset struct {
		Amount float64 `json:"amount"`
		Note   string  `json:"note,omitempty"`
	}

	Transfer struct {
		ID                    string  `json:"id,omitempty"`
		Amount                float64 `json:"amount"`
		FromAccName           string  `json:"fromAccName"`
		ToAccName             string  `json:"toAccName"`
		IsOutOfSystemTransfer bool    `json:"isOutOfSystemTransfer"`
	}
)

var (
	ErrSchemaVersion  = errors.New("unsupported schema version")
	ErrNoDays         = errors.New("snapshot has no days")
	ErrInvalidDateKey = errors.New("invalid date key")
	ErrDuplicateDay   = errors.New("duplicate day")
	ErrInvalidRange   = errors.New("invalid snapshot range")
	ErrVisibilityMode = errors.New("invalid visibility mode")
	ErrInvalidAmount  = errors.New("invalid amount")
)

// Valid reports whether m is one of the known visibility modes.
func (m VisibilityMode) Valid() bool {
	switch m {
	case VisibilityOpen, VisibilityHidden, VisibilityAll:
		return true
	}
	return false
}

// Abs returns the magnitude of the entry amount.
func (e Entry) Abs() float64 {
	if e.Amount < 0 {
		return -e.Amount
	}
	return e.Amount
}

// OffsetTotal sums the declared offsets of an income entry.
func (e Entry) OffsetTotal() float64 {
	var sum float64
	for _, o := range e.Offsets {
		sum += abs(o.Amount)
	}
	return sum
}

// LinkedIncomeID returns the income id an expense nets against, if any.
func (e Entry) LinkedIncomeID() string {
	if e.LinkedParentID != "" {
		return e.LinkedParentID
	}
	return e.OffsetIncomeID
}

func (t Transfer) Abs() float64 {
	return abs(t.Amount)
}

// HasActivity reports whether the day carries any ledger line.
func (d Day) HasActivity() bool {
	l := d.Lists
	return len(l.Income)+len(l.Expense)+len(l.Withdrawal)+len(l.Transfer) > 0
}

// ScopedBalance returns the balance of the accounts visible under scope.
// VisibilityAll returns the day total.
func (d Day) ScopedBalance(scope VisibilityMode) float64 {
	switch scope {
	case VisibilityOpen:
		return d.sumAccounts(true)
	case VisibilityHidden:
		return d.sumAccounts(false)
	default:
		return d.TotalBalance
	}
}

func (d Day) sumAccounts(open bool) float64 {
	var sum float64
	for _, a := range d.AccountBalances {
		if a.IsOpen == open {
			sum += a.Balance
		}
	}
	return sum
}

// Day returns the day stored under key.
func (s *Snapshot) Day(key string) (Day, bool) {
	i := sort.Search(len(s.Days), func(i int) bool { return s.Days[i].DateKey >= key })
	if i < len(s.Days) && s.Days[i].DateKey == key {
		return s.Days[i], true
	}
	return Day{}, false
}

// DaysBetween returns the days with start <= key <= end. The returned slice
// shares storage with the snapshot and must not be modified.
func (s *Snapshot) DaysBetween(start, end string) []Day {
	if start > end {
		return nil
	}
	lo := sort.Search(len(s.Days), func(i int) bool { return s.Days[i].DateKey >= start })
	hi := sort.Search(len(s.Days), func(i int) bool { return s.Days[i].DateKey > end })
	if lo >= hi {
		return nil
	}
	return s.Days[lo:hi:hi]
}

// Contains reports whether key lies inside the range.
func (r Range) Contains(key string) bool {
	return key >= r.StartDateKey && key <= r.EndDateKey
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
