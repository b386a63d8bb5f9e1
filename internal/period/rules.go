package period

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultRules returns the resolution cascade in priority order.
func DefaultRules() []Rule {
	return []Rule{
		{Source: SourceExplicitISORange, Resolve: explicitISORange},
		{Source: SourceExplicitDMRange, Resolve: explicitDMRange},
		{Source: SourceRelativeDay, Resolve: relativeDay},
		{Source: SourceLastMonth, Resolve: lastMonth},
		{Source: SourceNamedMonth, Resolve: namedMonth},
		{Source: SourceEndOfMonth, Resolve: endOfMonth},
		{Source: SourceWeekOfMonth, Resolve: weekOfMonth},
		{Source: SourceCurrentMonth, Resolve: currentMonth},
	}
}

const rangeSep = `\s*(?:по|до|to|until|-|—|–|\.\.)\s*`

var (
	isoRangeRe = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})` + rangeSep + `(\d{4}-\d{2}-\d{2})`)
	dmRangeRe  = regexp.MustCompile(`(?:^|[^\p{L}])(?:с|со|from|между|between)\s+(\d{1,2})[./](\d{1,2})(?:[./](\d{4}|\d{2}))?` +
		`\s*(?:по|до|и|and|to|until|-|—|–)\s*(\d{1,2})[./](\d{1,2})(?:[./](\d{4}|\d{2}))?`)

	lastMonthRe    = regexp.MustCompile(`(?:прошл\p{L}*|предыдущ\p{L}*|минувш\p{L}*)\s+месяц|(?:last|previous|prior)\s+month`)
	currentMonthRe = regexp.MustCompile(`(?:^|[^\p{L}])(?:этот|этом|этого|этому|текущ\p{L}*|нынешн\p{L}*|сей)\s+месяц|(?:this|current)\s+month|месяц\s+целиком`)
	scopeWordRe    = regexp.MustCompile(`(?:^|[^\p{L}])(?:за|в|во|итог\p{L}*|весь|всего|целый|целиком|сумм\p{L}*|in|for|during|over|total)(?:[^\p{L}]|$)`)
	endOfMonthRe   = regexp.MustCompile(`(?:конц\p{L}*|конец)\s+(?:(?:этого|текущего)\s+)?месяц|(?:конц\p{L}*|конец)\s+(` + monthWord + `)|end\s+of\s+(?:the\s+)?(?:(?:this|current)\s+)?month|end\s+of\s+(` + monthWord + `)`)

	// Groups: 1 digit, 2 its ordinal suffix, 3 ordinal word, 4 "week N", 5 "Nth week".
	weekOrdinalRe = regexp.MustCompile(`(?:^|[^\p{L}\d])(?:(\d)(\s*-?\s*(?:я|ю|ая|ую|й|st|nd|rd|th))?|(перв\p{L}*|втор\p{L}*|трет\p{L}*|четверт\p{L}*|пят(?:ая|ую|ой|ом)|first|second|third|fourth|fifth))\s+недел\p{L}*|week\s+(\d)|` +
		`(first|second|third|fourth|fifth)\s+week`)

	// A count of weeks, not an ordinal: "последние 2 недели", "2 недели назад".
	weekCountLeadRe = regexp.MustCompile(`(?:последн|предыдущ|ближайш|следующ)\p{L}*\s*$|(?:last|past|next)\s*$`)
	weekCountTailRe = regexp.MustCompile(`^\s*(?:назад|тому|ago)(?:[^\p{L}]|$)`)
)

// relativeDays is checked in order; each word carries its own boundary so
// "позавчера" never matches as "вчера".
var relativeDays = []struct {
	re     *regexp.Regexp
	offset int
}{
	{regexp.MustCompile(`(?:^|[^\p{L}])позавчера(?:[^\p{L}]|$)|day\s+before\s+yesterday`), -2},
	{regexp.MustCompile(`(?:^|[^\p{L}])послезавтра(?:[^\p{L}]|$)|day\s+after\s+tomorrow`), 2},
	{regexp.MustCompile(`(?:^|[^\p{L}])вчера(?:[^\p{L}]|$)|yesterday`), -1},
	{regexp.MustCompile(`(?:^|[^\p{L}])завтра(?:[^\p{L}]|$)|tomorrow`), 1},
	{regexp.MustCompile(`(?:^|[^\p{L}])сегодня(?:[^\p{L}]|$)|today`), 0},
}

func explicitISORange(q Query) (time.Time, time.Time, bool) {
	m := isoRangeRe.FindStringSubmatch(q.Text)
	if m == nil {
		return time.Time{}, time.Time{}, false
	}
	start, err1 := time.Parse("2006-01-02", m[1])
	end, err2 := time.Parse("2006-01-02", m[2])
	if err1 != nil || err2 != nil {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func explicitDMRange(q Query) (time.Time, time.Time, bool) {
	m := dmRangeRe.FindStringSubmatch(q.Text)
	if m == nil {
		return time.Time{}, time.Time{}, false
	}
	d1, _ := strconv.Atoi(m[1])
	m1, _ := strconv.Atoi(m[2])
	d2, _ := strconv.Atoi(m[4])
	m2, _ := strconv.Atoi(m[5])
	if m1 < 1 || m1 > 12 || m2 < 1 || m2 > 12 {
		return time.Time{}, time.Time{}, false
	}

	y1 := parseYear(m[3])
	if y1 == 0 {
		y1 = InferYear(time.Month(m1), q.AsOf)
	}
	y2 := parseYear(m[6])
	explicitEnd := y2 != 0
	if !explicitEnd {
		y2 = y1
	}

	start, ok1 := calendarDate(y1, m1, d1)
	end, ok2 := calendarDate(y2, m2, d2)
	if !ok1 || !ok2 {
		return time.Time{}, time.Time{}, false
	}
	if end.Before(start) && !explicitEnd {
		end, ok2 = calendarDate(y2+1, m2, d2)
		if !ok2 {
			return time.Time{}, time.Time{}, false
		}
	}
	return start, end, true
}

func parseYear(s string) int {
	if s == "" {
		return 0
	}
	y, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	if len(s) == 2 {
		y += 2000
	}
	return y
}

// calendarDate rejects dates that time.Date would normalize, such as 31.02.
func calendarDate(y, m, d int) (time.Time, bool) {
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d || int(t.Month()) != m {
		return time.Time{}, false
	}
	return t, true
}

func relativeDay(q Query) (time.Time, time.Time, bool) {
	for _, rd := range relativeDays {
		if rd.re.MatchString(q.Text) {
			d := q.AsOf.AddDate(0, 0, rd.offset)
			return d, d, true
		}
	}
	return time.Time{}, time.Time{}, false
}

func lastMonth(q Query) (time.Time, time.Time, bool) {
	if !lastMonthRe.MatchString(q.Text) || hasWeekOrdinal(q.Text) {
		return time.Time{}, time.Time{}, false
	}
	prev := time.Date(q.AsOf.Year(), q.AsOf.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	start, end := monthSpan(prev.Year(), prev.Month())
	return start, end, true
}

func namedMonth(q Query) (time.Time, time.Time, bool) {
	if hasWeekOrdinal(q.Text) || !scopeWordRe.MatchString(q.Text) {
		return time.Time{}, time.Time{}, false
	}
	mentions := FindMonthMentions(q.Text)
	if len(mentions) == 0 {
		return time.Time{}, time.Time{}, false
	}
	m := mentions[0]
	start, end := monthSpan(m.yearOf(q.AsOf), m.Month)
	return start, end, true
}

func endOfMonth(q Query) (time.Time, time.Time, bool) {
	m := endOfMonthRe.FindStringSubmatch(q.Text)
	if m == nil {
		return time.Time{}, time.Time{}, false
	}
	word := m[1]
	if word == "" {
		word = m[2]
	}
	if word == "" {
		start, end := monthSpan(q.AsOf.Year(), q.AsOf.Month())
		return start, end, true
	}
	month, ok := monthFromWord(word)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	year := InferYear(month, q.AsOf)
	if mentions := FindMonthMentions(q.Text); len(mentions) > 0 && mentions[0].Month == month && mentions[0].Year != 0 {
		year = mentions[0].Year
	}
	start, end := monthSpan(year, month)
	return start, end, true
}

func weekOfMonth(q Query) (time.Time, time.Time, bool) {
	n, ok := weekOrdinal(q.Text)
	if !ok {
		return time.Time{}, time.Time{}, false
	}

	year, month := q.AsOf.Year(), q.AsOf.Month()
	switch mentions := FindMonthMentions(q.Text); {
	case len(mentions) > 0:
		month, year = mentions[0].Month, mentions[0].yearOf(q.AsOf)
	case lastMonthRe.MatchString(q.Text):
		prev := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
		year, month = prev.Year(), prev.Month()
	}

	first, last := monthSpan(year, month)
	toMonday := (int(time.Monday) - int(first.Weekday()) + 7) % 7
	start := first.AddDate(0, 0, toMonday+7*(n-1))
	if start.After(last) {
		return time.Time{}, time.Time{}, false
	}
	end := start.AddDate(0, 0, 6)
	if end.After(last) {
		end = last
	}
	return start, end, true
}

func currentMonth(q Query) (time.Time, time.Time, bool) {
	if !currentMonthRe.MatchString(q.Text) {
		return time.Time{}, time.Time{}, false
	}
	start, end := monthSpan(q.AsOf.Year(), q.AsOf.Month())
	return start, end, true
}

func hasWeekOrdinal(text string) bool {
	_, ok := weekOrdinal(text)
	return ok
}

var ordinalWords = []struct {
	prefix string
	n      int
}{
	{"перв", 1}, {"втор", 2}, {"трет", 3}, {"четверт", 4}, {"пят", 5},
	{"first", 1}, {"second", 2}, {"third", 3}, {"fourth", 4}, {"fifth", 5},
}

func weekOrdinal(text string) (int, bool) {
	for _, m := range weekOrdinalRe.FindAllStringSubmatchIndex(text, -1) {
		if weekCountLeadRe.MatchString(text[:m[0]]) || weekCountTailRe.MatchString(text[m[1]:]) {
			continue
		}
		g := func(n int) string {
			if m[2*n] < 0 {
				return ""
			}
			return text[m[2*n]:m[2*n+1]]
		}
		if d := g(1); d != "" {
			// A bare digit is an ordinal only when a month names the scope.
			if g(2) == "" && len(FindMonthMentions(text)) == 0 && !lastMonthRe.MatchString(text) && !currentMonthRe.MatchString(text) {
				continue
			}
			n, _ := strconv.Atoi(d)
			return n, n >= 1 && n <= 5
		}
		if d := g(4); d != "" {
			n, _ := strconv.Atoi(d)
			return n, n >= 1 && n <= 5
		}
		for _, w := range ordinalWords {
			if word := g(3) + g(5); strings.HasPrefix(word, w.prefix) {
				return w.n, true
			}
		}
	}
	return 0, false
}
