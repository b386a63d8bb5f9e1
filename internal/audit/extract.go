package audit

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"ledgerqa/internal/core"
	"ledgerqa/internal/period"
)

// MoneyNumber is one money figure found in an answer. Value is absolute.
type MoneyNumber struct {
	Raw   string  `json:"raw"`
	Value float64 `json:"value"`
}

const (
	groupedNumber = `\d{1,3}(?:[ \x{00A0}\x{202F}.]\d{3})+(?:,\d{1,2})?`
	plainNumber   = `\d+(?:[.,]\d{1,2})?`
	multiplier    = `тыс\.?|тысяч\p{L}*|млн\.?|миллион\p{L}*|k|к`
	currency      = `₽|руб\p{L}*\.?|р\.|rub|rur|\$|€|£|₸|usd|eur|gbp|kzt|uah|byn|cny|долл\p{L}*|евро|тенге|тг\.?|грн\.?|гривн\p{L}*|юан\p{L}*|фунт\p{L}*`
)

// Groups 1 and 2 hold the number and multiplier of a trailing currency
// marker, groups 3 and 4 those of a leading one.
var moneyRe = regexp.MustCompile(`(?i)(?:^|[^\d\p{L}.,])(?:(` + groupedNumber + `|` + plainNumber + `)\s*(` + multiplier + `)?\s*(?:` + currency + `)` +
	`|(?:[$€£]|₽|₸)\s?(` + groupedNumber + `|` + plainNumber + `)\s*(` + multiplier + `)?)`)

// unmarkedRe finds figures without a known currency marker: thousands-grouped
// numbers and bare numbers of four or more digits. Group 1 is the number.
var unmarkedRe = regexp.MustCompile(`(?:^|[^\d\p{L}.,:/*№#])(` + groupedNumber + `|\d{4,}(?:,\d{1,2})?)`)

var dotGrouped = regexp.MustCompile(`^\d{1,3}(?:\.\d{3})+(?:,\d+)?$`)

var (
	thousand = decimal.NewFromInt(1000)
	million  = decimal.NewFromInt(1000000)
)

// ExtractMoney returns every money figure in text, in order. Figures with a
// currency marker always count. Grouped or four-plus digit figures count
// without one unless they are part of a date, a percentage or a year.
func ExtractMoney(text string) []MoneyNumber {
	type found struct {
		start int
		n     MoneyNumber
	}
	var out []found
	var spans [][2]int
	for _, m := range moneyRe.FindAllStringSubmatchIndex(text, -1) {
		spans = append(spans, [2]int{m[0], m[1]})
		num, mult := group(text, m, 1), group(text, m, 2)
		if num == "" {
			num, mult = group(text, m, 3), group(text, m, 4)
		}
		v, ok := parseMoney(num, mult)
		if !ok {
			continue
		}
		raw := strings.TrimLeftFunc(text[m[0]:m[1]], func(r rune) bool {
			return !unicode.IsDigit(r) && !strings.ContainsRune("$€£₽₸", r)
		})
		out = append(out, found{m[0], MoneyNumber{Raw: strings.TrimSpace(raw), Value: v}})
	}

	var years []period.MonthMention
	lower := strings.ToLower(text)
	if len(lower) == len(text) {
		years = period.FindMonthMentions(lower)
	}
	for _, m := range unmarkedRe.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[2], m[3]
		if overlaps(spans, start, end) || !unmarkedMoney(text, start, end, years) {
			continue
		}
		num := strings.TrimSpace(text[start:end])
		v, ok := parseMoney(num, "")
		if !ok {
			continue
		}
		out = append(out, found{start, MoneyNumber{Raw: num, Value: v}})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].start < out[j].start })
	var numbers []MoneyNumber
	for _, f := range out {
		numbers = append(numbers, f.n)
	}
	return numbers
}

func overlaps(spans [][2]int, start, end int) bool {
	for _, s := range spans {
		if start < s[1] && s[0] < end {
			return true
		}
	}
	return false
}

var (
	isoDateTail = regexp.MustCompile(`^-\d{2}(?:-\d{2})?(?:$|[^\d])`)
	yearWord    = regexp.MustCompile(`^(?:год\p{L}*|г\.|г(?:$|[^\p{L}])|year)`)
	yearLead    = regexp.MustCompile(`(?:^|[^\p{L}])(?:в|году|in|year)$`)
)

// unmarkedMoney rejects the figure at text[start:end] when it continues a
// date or time, is a percentage, or reads as a year.
func unmarkedMoney(text string, start, end int, months []period.MonthMention) bool {
	rest := text[end:]
	if rest != "" {
		if c := rest[0]; c >= '0' && c <= '9' {
			return false
		}
		if len(rest) >= 2 && strings.ContainsRune(".,:/", rune(rest[0])) && rest[1] >= '0' && rest[1] <= '9' {
			return false
		}
		if isoDateTail.MatchString(rest) {
			return false
		}
	}
	next := strings.ToLower(strings.TrimLeft(rest, " \u00a0"))
	if strings.HasPrefix(next, "%") || strings.HasPrefix(next, "процент") {
		return false
	}

	num := text[start:end]
	if len(num) != 4 || num < "1900" || num > "2100" {
		return true
	}
	for _, m := range months {
		if m.Year != 0 && start >= m.Start && end <= m.End {
			return false
		}
	}
	if yearWord.MatchString(next) {
		return false
	}
	prev := strings.ToLower(strings.TrimRight(text[:start], " \u00a0"))
	return !yearLead.MatchString(prev)
}

func group(text string, m []int, n int) string {
	if m[2*n] < 0 {
		return ""
	}
	return text[m[2*n]:m[2*n+1]]
}

func parseMoney(num, mult string) (float64, bool) {
	if dotGrouped.MatchString(num) {
		num = strings.ReplaceAll(num, ".", "")
	}
	v, err := core.ParseAmount(num)
	if err != nil {
		return 0, false
	}
	d := decimal.NewFromFloat(v).Abs()
	switch m := strings.ToLower(mult); {
	case m == "":
	case strings.HasPrefix(m, "млн"), strings.HasPrefix(m, "миллион"):
		d = d.Mul(million)
	default:
		d = d.Mul(thousand)
	}
	f, _ := d.Float64()
	return f, true
}
