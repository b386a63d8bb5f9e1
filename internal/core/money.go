// Package core holds the canonical snapshot model and the helpers every other
// package relies on: date keys, money formatting and category normalization.
//
// This file contains money parsing and formatting. Amounts in the snapshot
// are float64; rounding and parsing go through shopspring/decimal so that
// "1 200,50" and 1200.5 always land on the same value.
package core

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// CurrencyMarker is appended to every formatted amount.
const CurrencyMarker = "₽"

// RoundUnits rounds v half away from zero to whole currency units.
func RoundUnits(v float64) int64 {
	return decimal.NewFromFloat(finite(v)).Round(0).IntPart()
}

// FormatNumber groups thousands with spaces: 1234567.4 -> "1 234 567".
func FormatNumber(v float64) string {
	n := RoundUnits(v)
	neg := n < 0
	if neg {
		n = -n
	}
	digits := strconv.FormatInt(n, 10)
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	lead := len(digits) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(digits[:lead])
	for i := lead; i < len(digits); i += 3 {
		b.WriteByte(' ')
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// FormatMoney renders v as "12 345 ₽".
func FormatMoney(v float64) string {
	return FormatNumber(v) + " " + CurrencyMarker
}

// FormatSignedMoney renders v with an explicit sign: "+12 345 ₽", "-500 ₽".
// Values that round to zero carry no sign.
func FormatSignedMoney(v float64) string {
	switch n := RoundUnits(v); {
	case n > 0:
		return "+" + FormatMoney(v)
	case n < 0:
		return FormatMoney(v)
	default:
		return FormatMoney(0)
	}
}

// ParseAmount converts a locale-formatted amount into a float.
//
// Spaces (including no-break spaces) are thousands separators. When both '.'
// and ',' occur the last one is the decimal separator; a lone ',' is a
// decimal comma; several '.' are thousands separators.
//
// Examples:
//
//	ParseAmount("1 200,50") -> 1200.5
//	ParseAmount("1.200.000") -> 1200000
//	ParseAmount("-300") -> -300
func ParseAmount(s string) (float64, error) {
	clean := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r), r == '\'':
			return -1
		case r == '−':
			return '-'
		}
		return r
	}, strings.TrimSpace(s))
	clean = strings.TrimSuffix(clean, CurrencyMarker)
	if clean == "" {
		return 0, ErrInvalidAmount
	}

	dots, commas := strings.Count(clean, "."), strings.Count(clean, ",")
	switch {
	case dots > 0 && commas > 0:
		if strings.LastIndex(clean, ",") > strings.LastIndex(clean, ".") {
			clean = strings.ReplaceAll(clean, ".", "")
			clean = strings.Replace(clean, ",", ".", 1)
		} else {
			clean = strings.ReplaceAll(clean, ",", "")
		}
	case commas == 1:
		clean = strings.Replace(clean, ",", ".", 1)
	case commas > 1:
		clean = strings.ReplaceAll(clean, ",", "")
	case dots > 1:
		clean = strings.ReplaceAll(clean, ".", "")
	}

	d, err := decimal.NewFromString(clean)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	v, _ := d.Float64()
	return v, nil
}
