package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Raw types mirror the snapshot JSON as produced by the snapshot builder.
// Numeric and boolean fields are lenient; ValidateSnapshot turns them into
// the canonical types in domain.go.
type (
	RawSnapshot struct {
		SchemaVersion  Number   `json:"schemaVersion"`
		Range          *Range   `json:"range"`
		VisibilityMode string   `json:"visibilityMode"`
		Days           []RawDay `json:"days"`
	}

	RawDay struct {
		DateKey         string              `json:"dateKey"`
		DateLabel       string              `json:"dateLabel"`
		TotalBalance    Number              `json:"totalBalance"`
		AccountBalances []RawAccountBalance `json:"accountBalances"`
		Totals          RawTotals           `json:"totals"`
		Lists           RawLists            `json:"lists"`
	}

	RawTotals struct {
		Income  Number `json:"income"`
		Expense Number `json:"expense"`
	}

	RawAccountBalance struct {
		AccountID json.RawMessage `json:"accountId"`
		Name      string          `json:"name"`
		Balance   Number          `json:"balance"`
		IsOpen    Flag            `json:"isOpen"`
	}

	RawLists struct {
		Income     []RawEntry    `json:"income"`
		Expense    []RawEntry    `json:"expense"`
		Withdrawal []RawEntry    `json:"withdrawal"`
		Transfer   []RawTransfer `json:"transfer"`
	}

	RawEntry struct {
		ID             json.RawMessage `json:"id"`
		Amount         Number          `json:"amount"`
		CatName        string          `json:"catName"`
		AccName        string          `json:"accName"`
		ContName       string          `json:"contName"`
		ProjName       string          `json:"projName"`
		Offsets        []RawOffset     `json:"offsets"`
		LinkedParentID json.RawMessage `json:"linkedParentId"`
		OffsetIncomeID json.RawMessage `json:"offsetIncomeId"`
	}

	RawOffset struct {
		Amount Number `json:"amount"`
		Note   string `json:"note"`
	}

	RawTransfer struct {
		ID                    json.RawMessage `json:"id"`
		Amount                Number          `json:"amount"`
		FromAccName           string          `json:"fromAccName"`
		ToAccName             string          `json:"toAccName"`
		IsOutOfSystemTransfer Flag            `json:"isOutOfSystemTransfer"`
	}
)

// Number accepts a JSON number, a numeric string ("1 200,50") or null.
type Number struct {
	Value float64
	Set   bool
}

func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = Number{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*n = Number{}
			return nil
		}
		v, err := ParseAmount(s)
		if err != nil {
			return fmt.Errorf("number %q: %w", s, err)
		}
		*n = Number{Value: v, Set: true}
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("number %s: %w", data, ErrInvalidAmount)
	}
	*n = Number{Value: v, Set: true}
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Set {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// Flag accepts a JSON bool, a number or a string such as "true" or "1".
// A missing flag is false.
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	s := strings.ToLower(strings.Trim(string(bytes.TrimSpace(data)), `"`))
	switch s {
	case "true", "1", "yes", "y":
		*f = true
	default:
		*f = false
	}
	return nil
}

// idString renders an id that may arrive as a JSON string or number.
func idString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return strings.TrimSpace(s)
		}
	}
	return strings.TrimSpace(string(raw))
}
