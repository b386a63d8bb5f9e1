package assistant

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerqa/internal/amqp"
	"ledgerqa/internal/audit"
	"ledgerqa/internal/cache"
	"ledgerqa/internal/core"
	"ledgerqa/internal/facts"
	"ledgerqa/internal/intent"
	"ledgerqa/internal/llm"
	"ledgerqa/internal/period"
)

const (
	asOf     = "2026-02-15"
	question = "Сколько потратили в этом месяце?"
)

func mkDay(key string, open float64, lists core.Lists) core.Day {
	return core.Day{
		DateKey:      key,
		TotalBalance: open + 10000,
		AccountBalances: []core.AccountBalance{
			{AccountID: "1", Name: "Расчетный", Balance: open, IsOpen: true},
			{AccountID: "2", Name: "Сейф", Balance: 10000},
		},
		Lists: lists,
	}
}

func exp(id string, amount float64, cat string) core.Entry {
	return core.Entry{ID: id, Amount: amount, CatName: cat}
}

func testSnapshot() *core.Snapshot {
	return &core.Snapshot{
		SchemaVersion:  1,
		Range:          core.Range{StartDateKey: "2026-02-01", EndDateKey: "2026-02-28"},
		VisibilityMode: core.VisibilityAll,
		Days: []core.Day{
			mkDay("2026-02-01", 50000, core.Lists{Income: []core.Entry{exp("i1", 20000, "Продажи")}}),
			mkDay("2026-02-03", 48000, core.Lists{Expense: []core.Entry{exp("e1", 2000, "Аренда")}}),
			mkDay("2026-02-05", 47300, core.Lists{Expense: []core.Entry{exp("e2", 700, "Маркетинг")}}),
			mkDay("2026-02-10", 46800, core.Lists{Expense: []core.Entry{exp("e3", 500, "Аренда офиса")}}),
			mkDay("2026-02-15", 45800, core.Lists{
				Income:  []core.Entry{exp("i2", 1000, "Консалтинг")},
				Expense: []core.Entry{exp("e4", 3000, "Налоги")},
			}),
			mkDay("2026-02-20", 42800, core.Lists{Expense: []core.Entry{exp("e5", 3000, "Аренда")}}),
			mkDay("2026-02-28", 42800, core.Lists{}),
		},
	}
}

// scriptedComposer returns its answers in order; an error entry is returned
// as the composer error.
type scriptedComposer struct {
	mu       sync.Mutex
	answers  []any
	requests []llm.ComposeRequest
	block    chan struct{}
}

func (c *scriptedComposer) Compose(ctx context.Context, req llm.ComposeRequest) (string, error) {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if len(c.answers) == 0 {
		return "", errors.New("script exhausted")
	}
	next := c.answers[0]
	c.answers = c.answers[1:]
	if err, ok := next.(error); ok {
		return "", err
	}
	return next.(string), nil
}

func (c *scriptedComposer) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*amqp.AuditEvent
	err    error
}

func (p *recordingPublisher) PublishAuditEvent(_ context.Context, evt *amqp.AuditEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return p.err
}

func newService(opts ...Option) *Service {
	builder := facts.NewBuilder(period.NewResolver(), facts.NewAggregator(facts.DefaultClassifier()), facts.Options{})
	return NewService(builder, audit.NewGate(), opts...)
}

func TestAnswer_NoSnapshot(t *testing.T) {
	_, err := newService().Answer(context.Background(), Request{Question: question})
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestAnswer_IntentIsDeterministic(t *testing.T) {
	composer := &scriptedComposer{}
	svc := newService(WithComposer(composer))

	ans, err := svc.Answer(context.Background(), Request{
		Question: "Какой баланс?",
		AsOfKey:  asOf,
		Snapshot: testSnapshot(),
		Intent:   &intent.Intent{Type: intent.BalanceOnDate},
	})
	require.NoError(t, err)
	assert.Equal(t, SourceDeterministic, ans.Source)
	assert.True(t, ans.OK)
	assert.Contains(t, ans.Text, "55 800 ₽")
	assert.Zero(t, composer.calls())
}

func TestAnswer_WithoutComposerUsesFactsBlock(t *testing.T) {
	ans, err := newService().Answer(context.Background(), Request{Question: question, AsOfKey: "bad", Snapshot: testSnapshot()})
	require.NoError(t, err)
	assert.Equal(t, SourceDeterministic, ans.Source)
	assert.Equal(t, "2026-02-28", ans.AsOfKey)
	assert.Contains(t, ans.Text, "Расходы: 9 200 ₽")
	require.NotNil(t, ans.Bundle)
	assert.Equal(t, period.SourceCurrentMonth, ans.Bundle.Resolution.Period.Source)
}

func TestAnswer_ComposedAndAudited(t *testing.T) {
	composer := &scriptedComposer{answers: []any{"В феврале расходы составили 9 200 ₽, из них по факту 6 200 ₽."}}
	pub := &recordingPublisher{}
	svc := newService(WithComposer(composer), WithPublisher(pub))

	ans, err := svc.Answer(context.Background(), Request{RequestID: "req-1", Question: question, AsOfKey: asOf, Snapshot: testSnapshot()})
	require.NoError(t, err)
	assert.Equal(t, SourceLLM, ans.Source)
	assert.True(t, ans.OK)
	assert.Equal(t, 1, ans.Attempts)
	require.NotNil(t, ans.Audit)
	assert.True(t, ans.Audit.OK)

	require.Len(t, pub.events, 1)
	evt := pub.events[0]
	assert.True(t, evt.OK)
	assert.Equal(t, "req-1", evt.RequestID)
	assert.Equal(t, SourceLLM, evt.Source)
	assert.Equal(t, period.SourceCurrentMonth, evt.PeriodSource)
}

func TestAnswer_RepairedOnce(t *testing.T) {
	composer := &scriptedComposer{answers: []any{
		"Расходы за февраль: 9 199 ₽.",
		"Расходы за февраль: 9 200 ₽.",
	}}
	pub := &recordingPublisher{}
	svc := newService(WithComposer(composer), WithPublisher(pub))

	ans, err := svc.Answer(context.Background(), Request{Question: question, AsOfKey: asOf, Snapshot: testSnapshot()})
	require.NoError(t, err)
	assert.Equal(t, SourceLLM, ans.Source)
	assert.Equal(t, 2, ans.Attempts)
	assert.Equal(t, "Расходы за февраль: 9 200 ₽.", ans.Text)

	require.Len(t, composer.requests, 2)
	repair := composer.requests[1]
	assert.True(t, repair.Repair())
	assert.Equal(t, "Расходы за февраль: 9 199 ₽.", repair.PreviousAnswer)
	assert.Contains(t, repair.RepairInstruction, "number_mismatch:unexpected_money_value:9199")

	require.Len(t, pub.events, 1)
	assert.Equal(t, 2, pub.events[0].Attempts)
}

func TestAnswer_FallbackAfterFailedRepair(t *testing.T) {
	composer := &scriptedComposer{answers: []any{
		"Расходы за февраль: 1 234 567 ₽.",
		"Расходы за февраль: 7 777 ₽.",
		"never used",
	}}
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := newService(WithComposer(composer), WithPublisher(pub))

	ans, err := svc.Answer(context.Background(), Request{Question: question, AsOfKey: asOf, Snapshot: testSnapshot()})
	require.NoError(t, err, "publisher failures never fail the answer")
	assert.Equal(t, SourceFallback, ans.Source)
	assert.Equal(t, maxAttempts, ans.Attempts)
	assert.Contains(t, ans.Text, "Расходы: 9 200 ₽")
	assert.Contains(t, ans.Text, verificationNote)
	require.NotNil(t, ans.Audit)
	assert.Equal(t, []string{"number_mismatch:unexpected_money_value:7777"}, ans.Audit.Errors)
	assert.Equal(t, 2, composer.calls())

	require.Len(t, pub.events, 1)
	assert.False(t, pub.events[0].OK)
	assert.Equal(t, SourceFallback, pub.events[0].Source)
}

func TestAnswer_ComposerErrorFallsBack(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newService(WithComposer(&scriptedComposer{answers: []any{errors.New("timeout")}}), WithPublisher(pub))

	ans, err := svc.Answer(context.Background(), Request{Question: question, AsOfKey: asOf, Snapshot: testSnapshot()})
	require.NoError(t, err)
	assert.Equal(t, SourceFallback, ans.Source)
	assert.Nil(t, ans.Audit)
	assert.NotContains(t, ans.Text, verificationNote)
	assert.Empty(t, pub.events, "nothing was audited")
}

func TestAnswer_SemanticOverride(t *testing.T) {
	composer := &scriptedComposer{answers: []any{"Все в порядке.", "Все действительно в порядке."}}
	svc := newService(WithComposer(composer))
	sem := audit.SemanticContext{ResponseIntent: audit.IntentForecast, ResponseStyle: audit.StyleNumeric}

	ans, err := svc.Answer(context.Background(), Request{Question: question, AsOfKey: asOf, Snapshot: testSnapshot(), Semantic: &sem})
	require.NoError(t, err)
	assert.Equal(t, SourceFallback, ans.Source)
	assert.Contains(t, ans.Audit.Errors, "required_number_missing:forecast_balance_anchor")
	assert.Contains(t, composer.requests[1].RepairInstruction, "42 800 ₽")
}

func TestAnswer_CachedComposedAnswer(t *testing.T) {
	composer := &scriptedComposer{answers: []any{"Расходы за февраль: 9 200 ₽."}}
	svc := newService(WithComposer(composer), WithCache(cache.NewLRUCache[Answer](8, time.Minute)))
	req := Request{Question: question, AsOfKey: asOf, Snapshot: testSnapshot()}

	first, err := svc.Answer(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := svc.Answer(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, 1, composer.calls())

	req.AsOfKey = "2026-02-10"
	_, err = svc.Answer(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, composer.calls(), "a different as-of date is a different question")
}

func TestAnswer_ConcurrentRequestsShareComposition(t *testing.T) {
	composer := &scriptedComposer{
		answers: []any{"Расходы за февраль: 9 200 ₽."},
		block:   make(chan struct{}),
	}
	svc := newService(WithComposer(composer), WithCache(cache.NewLRUCache[Answer](8, time.Minute)))
	req := Request{Question: question, AsOfKey: asOf, Snapshot: testSnapshot()}

	var wg sync.WaitGroup
	answers := make([]Answer, 2)
	for i := range answers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			answers[i], _ = svc.Answer(context.Background(), req)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(composer.block)
	wg.Wait()

	assert.Equal(t, 1, composer.calls())
	assert.Equal(t, answers[0].Text, answers[1].Text)
	assert.Equal(t, SourceLLM, answers[1].Source)
}
