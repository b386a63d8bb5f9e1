package core

import (
	"fmt"
	"regexp"
	"time"
)

// DateKeyLayout is the ISO layout of every day key in a snapshot.
const DateKeyLayout = "2006-01-02"

var dateKeyPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

var (
	monthNominativeRu = [...]string{"январь", "февраль", "март", "апрель", "май", "июнь",
		"июль", "август", "сентябрь", "октябрь", "ноябрь", "декабрь"}
	monthGenitiveRu = [...]string{"января", "февраля", "марта", "апреля", "мая", "июня",
		"июля", "августа", "сентября", "октября", "ноября", "декабря"}
)

// ValidDateKey reports whether key has the YYYY-MM-DD shape and names a
// real calendar day.
func ValidDateKey(key string) bool {
	_, err := ParseDateKey(key)
	return err == nil
}

// ParseDateKey parses a YYYY-MM-DD key into a UTC midnight time.
func ParseDateKey(key string) (time.Time, error) {
	if !dateKeyPattern.MatchString(key) {
		return time.Time{}, fmt.Errorf("%q: %w", key, ErrInvalidDateKey)
	}
	t, err := time.ParseInLocation(DateKeyLayout, key, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q: %w", key, ErrInvalidDateKey)
	}
	return t, nil
}

// DateKey formats t as a YYYY-MM-DD key.
func DateKey(t time.Time) string {
	return t.Format(DateKeyLayout)
}

// ShiftDateKey moves key by the given number of days.
func ShiftDateKey(key string, days int) (string, error) {
	t, err := ParseDateKey(key)
	if err != nil {
		return "", err
	}
	return DateKey(t.AddDate(0, 0, days)), nil
}

// MonthRange returns the first and last day keys of a calendar month.
func MonthRange(year int, month time.Month) Range {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	return Range{StartDateKey: DateKey(first), EndDateKey: DateKey(last)}
}

// FormatDateRu renders a key as DD.MM.YYYY; invalid keys are returned as is.
func FormatDateRu(key string) string {
	t, err := ParseDateKey(key)
	if err != nil {
		return key
	}
	return t.Format("02.01.2006")
}

// FormatRangeRu renders "DD.MM.YYYY — DD.MM.YYYY".
func FormatRangeRu(start, end string) string {
	return FormatDateRu(start) + " — " + FormatDateRu(end)
}

// MonthNameRu returns the nominative Russian month name.
func MonthNameRu(m time.Month) string {
	if m < time.January || m > time.December {
		return ""
	}
	return monthNominativeRu[m-1]
}

// MonthGenitiveRu returns the genitive form used in "на конец марта".
func MonthGenitiveRu(m time.Month) string {
	if m < time.January || m > time.December {
		return ""
	}
	return monthGenitiveRu[m-1]
}

// MinKey and MaxKey compare ISO keys lexicographically, which matches
// chronological order.
func MinKey(a, b string) string {
	if a < b {
		return a
	}
	return b
}

func MaxKey(a, b string) string {
	if a > b {
		return a
	}
	return b
}
