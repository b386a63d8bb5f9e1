// Package audit checks that every money figure in a composed answer is
// derivable from the deterministic facts it was composed from.
package audit

import (
	"regexp"
	"strings"
)

// Response intents.
const (
	IntentFact       = "fact"
	IntentForecast   = "forecast"
	IntentComparison = "comparison"
	IntentScenario   = "scenario"
	IntentAdvice     = "advice"
)

// Response styles.
const (
	StyleNumeric  = "numeric"
	StyleMixed    = "mixed"
	StyleAdvisory = "advisory"
)

// SemanticContext describes what the question asks for. It decides which
// numbers an answer is required to contain.
type SemanticContext struct {
	ResponseIntent    string `json:"responseIntent"`
	ResponseStyle     string `json:"responseStyle"`
	AsksFutureBalance bool   `json:"asksFutureBalance"`
	ScenarioActive    bool   `json:"scenarioActive"`
	AsksSingleAmount  bool   `json:"asksSingleAmount"`
	// ScenarioFreeCapital overrides the free capital from the facts when set.
	ScenarioFreeCapital float64 `json:"scenarioFreeCapital,omitempty"`
}

// Factual reports whether the intent expects a figure in the answer.
func (c SemanticContext) Factual() bool {
	switch c.ResponseIntent {
	case IntentFact, IntentForecast, IntentComparison, IntentScenario:
		return true
	}
	return false
}

func (c SemanticContext) Advisory() bool {
	return c.ResponseStyle == StyleAdvisory
}

var (
	futureRe     = regexp.MustCompile(`будет|прогноз|к\s+концу|на\s+конец|останет\p{L}*|хватит|хватает|forecast|will\s+be|end\s+of`)
	comparisonRe = regexp.MustCompile(`сравн\p{L}*|по\s+сравнению|разниц\p{L}*|compare|versus|\bvs\b`)
	scenarioRe   = regexp.MustCompile(`(?:^|[^\p{L}])(?:если|допустим|предположим|сценари\p{L}*)(?:[^\p{L}]|$)|what\s+if|\bif\b`)
	singleRe     = regexp.MustCompile(`сколько|какую\s+сумму|какая\s+сумма|how\s+much`)
	adviceRe     = regexp.MustCompile(`посовету\p{L}*|совет\p{L}*|стоит\s+ли|как\s+лучше|что\s+делать|should\s+i|advice`)
)

// InferContext derives a context from the question text for callers that
// did not classify it.
func InferContext(question string) SemanticContext {
	q := strings.ToLower(strings.ReplaceAll(question, "ё", "е"))
	ctx := SemanticContext{ResponseIntent: IntentFact, ResponseStyle: StyleNumeric}

	ctx.AsksFutureBalance = futureRe.MatchString(q)
	ctx.ScenarioActive = scenarioRe.MatchString(q)
	ctx.AsksSingleAmount = singleRe.MatchString(q)

	switch {
	case ctx.ScenarioActive:
		ctx.ResponseIntent = IntentScenario
	case comparisonRe.MatchString(q):
		ctx.ResponseIntent = IntentComparison
	case ctx.AsksFutureBalance:
		ctx.ResponseIntent = IntentForecast
	}
	if adviceRe.MatchString(q) {
		ctx.ResponseStyle = StyleMixed
		if !ctx.AsksSingleAmount {
			ctx.ResponseIntent = IntentAdvice
			ctx.ResponseStyle = StyleAdvisory
		}
	}
	return ctx
}
