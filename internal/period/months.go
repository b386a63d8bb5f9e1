package period

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// monthStems maps a lowercase prefix to its month. Order matters only for
// prefixes that share a start; longer ones come first.
var monthStems = []struct {
	prefix string
	month  time.Month
}{
	{"январ", time.January},
	{"феврал", time.February},
	{"март", time.March},
	{"апрел", time.April},
	{"ма", time.May},
	{"июн", time.June},
	{"июл", time.July},
	{"август", time.August},
	{"сентябр", time.September},
	{"октябр", time.October},
	{"ноябр", time.November},
	{"декабр", time.December},
	{"january", time.January},
	{"february", time.February},
	{"march", time.March},
	{"april", time.April},
	{"may", time.May},
	{"june", time.June},
	{"july", time.July},
	{"august", time.August},
	{"september", time.September},
	{"october", time.October},
	{"november", time.November},
	{"december", time.December},
}

// Case endings are listed longest first; a match followed by another letter
// is discarded, so "мартышка" is not March.
const monthWord = `январ(?:ем|ь|я|е|ю)|феврал(?:ем|ь|я|е|ю)|март(?:ом|а|е|у)?|апрел(?:ем|ь|я|е|ю)|ма(?:ем|й|я|е|ю)|` +
	`июн(?:ем|ь|я|е|ю)|июл(?:ем|ь|я|е|ю)|август(?:ом|а|е|у)?|сентябр(?:ем|ь|я|е|ю)|октябр(?:ем|ь|я|е|ю)|` +
	`ноябр(?:ем|ь|я|е|ю)|декабр(?:ем|ь|я|е|ю)|` +
	`january|february|march|april|may|june|july|august|september|october|november|december`

// Groups: 1 month word, 2 four-digit year, 3 apostrophe year, 4 two-digit year with г.
var monthMentionRe = regexp.MustCompile(`(?:^|[^\p{L}\d])(` + monthWord + `)(?:\s+(?:(\d{4})|'(\d{2})|(\d{2})\s*г))?`)

// MonthMention is one month name found in a question. Year is zero when the
// text carries none.
type MonthMention struct {
	Month time.Month
	Year  int
	Start int
	End   int
}

// FindMonthMentions returns every month mention in text, in text order. It
// holds no state between calls.
func FindMonthMentions(text string) []MonthMention {
	var out []MonthMention
	for _, m := range monthMentionRe.FindAllStringSubmatchIndex(text, -1) {
		word := text[m[2]:m[3]]
		if followedByLetter(text, m[3]) {
			continue
		}
		month, ok := monthFromWord(word)
		if !ok {
			continue
		}
		mention := MonthMention{Month: month, Start: m[2], End: m[1]}
		switch {
		case m[4] >= 0 && !followedByDigit(text, m[5]):
			y, _ := strconv.Atoi(text[m[4]:m[5]])
			if y >= 1990 && y <= 2100 {
				mention.Year = y
			} else {
				mention.End = m[3]
			}
		case m[6] >= 0 && !followedByDigit(text, m[7]):
			y, _ := strconv.Atoi(text[m[6]:m[7]])
			mention.Year = 2000 + y
		case m[8] >= 0:
			y, _ := strconv.Atoi(text[m[8]:m[9]])
			mention.Year = 2000 + y
		default:
			mention.End = m[3]
		}
		if word == "may" && mention.Year == 0 && !mayLeadRe.MatchString(text[:m[2]]) {
			continue
		}
		out = append(out, mention)
	}
	return out
}

// "may" is also a verb; without a year it counts as May only after a scope
// word or a day number.
var mayLeadRe = regexp.MustCompile(`(?:^|[^\p{L}])(?:in|of|for|during|since|until|till|by|from|through|to|end|early|late|mid|last|next|this)\s+$|\d\s*(?:st|nd|rd|th)?\s+$`)

func monthFromWord(word string) (time.Month, bool) {
	for _, s := range monthStems {
		if strings.HasPrefix(word, s.prefix) {
			return s.month, true
		}
	}
	return 0, false
}

func followedByLetter(text string, i int) bool {
	if i >= len(text) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return unicode.IsLetter(r)
}

func followedByDigit(text string, i int) bool {
	return i < len(text) && text[i] >= '0' && text[i] <= '9'
}

// forwardHorizon is how many months past the as-of month still count as
// the current year; "март" asked in January is upcoming, "октябрь" is past.
const forwardHorizon = 3

// InferYear picks the year of a month named without one: a month later in
// the calendar than the as-of month, beyond the forward horizon, belongs to
// the previous year.
func InferYear(month time.Month, asOf time.Time) int {
	if int(month)-int(asOf.Month()) > forwardHorizon {
		return asOf.Year() - 1
	}
	return asOf.Year()
}

// yearOf returns the mention's explicit year or the inferred one.
func (m MonthMention) yearOf(asOf time.Time) int {
	if m.Year != 0 {
		return m.Year
	}
	return InferYear(m.Month, asOf)
}

func monthSpan(year int, month time.Month) (time.Time, time.Time) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return first, first.AddDate(0, 1, -1)
}
