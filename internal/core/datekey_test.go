package core

import (
	"testing"
	"time"
)

func TestValidDateKey(t *testing.T) {
	cases := map[string]bool{
		"2026-02-28": true,
		"2024-02-29": true,
		"2026-02-29": false,
		"2026-2-28":  false,
		"28.02.2026": false,
		"":           false,
	}
	for key, want := range cases {
		if got := ValidDateKey(key); got != want {
			t.Errorf("ValidDateKey(%q) = %v, want %v", key, got, want)
		}
	}
}

func TestShiftDateKey(t *testing.T) {
	got, err := ShiftDateKey("2026-03-01", -1)
	if err != nil || got != "2026-02-28" {
		t.Fatalf("ShiftDateKey = %q, %v", got, err)
	}
	if _, err := ShiftDateKey("bad", 1); err == nil {
		t.Fatal("expected error for bad key")
	}
}

func TestMonthRange(t *testing.T) {
	r := MonthRange(2024, time.February)
	if r.StartDateKey != "2024-02-01" || r.EndDateKey != "2024-02-29" {
		t.Fatalf("MonthRange = %+v", r)
	}
	r = MonthRange(2025, time.December)
	if r.EndDateKey != "2025-12-31" {
		t.Fatalf("MonthRange = %+v", r)
	}
}

func TestFormatRangeRu(t *testing.T) {
	if got := FormatRangeRu("2026-02-01", "2026-02-15"); got != "01.02.2026 — 15.02.2026" {
		t.Fatalf("FormatRangeRu = %q", got)
	}
	if MonthGenitiveRu(time.March) != "марта" || MonthNameRu(time.May) != "май" {
		t.Fatal("month names")
	}
}
