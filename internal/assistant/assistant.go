// Package assistant answers questions over a snapshot. Pre-classified
// intents are rendered deterministically; free questions are composed by an
// LLM, audited against the facts bundle, repaired once, and replaced by the
// deterministic facts block when the repair also fails.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/sync/singleflight"

	"ledgerqa/internal/amqp"
	"ledgerqa/internal/audit"
	"ledgerqa/internal/cache"
	"ledgerqa/internal/core"
	"ledgerqa/internal/facts"
	"ledgerqa/internal/intent"
	"ledgerqa/internal/llm"
	applog "ledgerqa/internal/log"
)

// Answer sources.
const (
	SourceDeterministic = "deterministic"
	SourceLLM           = "llm"
	SourceFallback      = "fallback"
)

// maxAttempts is the first composition plus one repair.
const maxAttempts = 2

// verificationNote is appended to a fallback answer.
const verificationNote = "\n\nОтвет сформирован напрямую по данным снимка: сгенерированный текст не прошел проверку чисел."

var ErrNoSnapshot = errors.New("no snapshot")

// Publisher receives one event per audited answer.
type Publisher interface {
	PublishAuditEvent(ctx context.Context, evt *amqp.AuditEvent) error
}

type Request struct {
	RequestID string
	Question  string
	AsOfKey   string
	Snapshot  *core.Snapshot
	// Intent, when set, bypasses composition.
	Intent *intent.Intent
	// Semantic overrides the context inferred from the question.
	Semantic *audit.SemanticContext
}

type Answer struct {
	Text     string                 `json:"text"`
	OK       bool                   `json:"ok"`
	Source   string                 `json:"source"`
	AsOfKey  string                 `json:"asOfKey"`
	Attempts int                    `json:"attempts"`
	Cached   bool                   `json:"cached"`
	Audit    *audit.Result          `json:"audit,omitempty"`
	Semantic *audit.SemanticContext `json:"semantic,omitempty"`
	Bundle   *facts.Bundle          `json:"bundle,omitempty"`
	Result   *intent.Result         `json:"result,omitempty"`
}

type Service struct {
	builder   *facts.Builder
	renderer  *intent.Renderer
	gate      *audit.Gate
	composer  llm.Composer
	publisher Publisher
	cache     cache.Cache[Answer]
	group     singleflight.Group
	logger    *applog.Logger
	events    *applog.StructuredLogger
}

type Option func(*Service)

// WithComposer enables the LLM path. Without it every free question gets the
// deterministic facts block.
func WithComposer(c llm.Composer) Option {
	return func(s *Service) { s.composer = c }
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithCache(c cache.Cache[Answer]) Option {
	return func(s *Service) { s.cache = c }
}

func WithLogger(l *applog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(builder *facts.Builder, gate *audit.Gate, opts ...Option) *Service {
	s := &Service{
		builder:  builder,
		renderer: intent.NewRenderer(builder),
		gate:     gate,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = applog.Discard()
	}
	s.logger = s.logger.WithComponent(applog.ComponentAssistant)
	s.events = applog.NewStructuredLogger(s.logger)
	return s
}

func (s *Service) Renderer() *intent.Renderer { return s.renderer }

func (s *Service) Builder() *facts.Builder { return s.builder }

func (s *Service) Gate() *audit.Gate { return s.gate }

// Answer answers one question. Routine misses and failed audits are part of
// the returned Answer; an error means the request itself was unusable.
func (s *Service) Answer(ctx context.Context, req Request) (Answer, error) {
	snap := req.Snapshot
	if snap == nil {
		return Answer{}, ErrNoSnapshot
	}
	asOfKey := req.AsOfKey
	if !core.ValidDateKey(asOfKey) {
		asOfKey = snap.Range.EndDateKey
	}

	if req.Intent != nil {
		in := *req.Intent
		if in.Question == "" {
			in.Question = req.Question
		}
		res := s.renderer.Render(in, snap, asOfKey)
		return Answer{Text: res.Text, OK: res.OK, Source: SourceDeterministic, AsOfKey: asOfKey, Result: &res}, nil
	}

	bundle := s.builder.Build(req.Question, asOfKey, snap)
	semantic := audit.InferContext(req.Question)
	if req.Semantic != nil {
		semantic = *req.Semantic
	}

	if s.composer == nil {
		res := intent.RenderBundle(bundle)
		return Answer{
			Text:     res.Text,
			OK:       res.OK,
			Source:   SourceDeterministic,
			AsOfKey:  asOfKey,
			Semantic: &semantic,
			Bundle:   &bundle,
			Result:   &res,
		}, nil
	}

	key, err := cacheKey(req.Question, asOfKey, snap, semantic)
	if err != nil {
		return Answer{}, err
	}
	if s.cache != nil {
		if ans, ok := s.cache.Get(key); ok {
			ans.Cached = true
			s.logger.DebugContext(ctx, "Answer served from cache", applog.FieldRequestID, req.RequestID, applog.FieldCacheHit, true)
			return ans, nil
		}
	}

	v, _, _ := s.group.Do(key, func() (any, error) {
		ans := s.compose(ctx, req.RequestID, &bundle, semantic)
		if s.cache != nil && ans.Source == SourceLLM {
			s.cache.Set(key, ans)
		}
		return ans, nil
	})
	return v.(Answer), nil
}

// compose runs the compose, audit and repair loop. It never fails: composer
// errors and a failed repair both end in the deterministic fallback.
func (s *Service) compose(ctx context.Context, requestID string, bundle *facts.Bundle, semantic audit.SemanticContext) Answer {
	creq := llm.ComposeRequest{Question: bundle.Question, Bundle: bundle}

	var verdict *audit.Result
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		text, err := s.composer.Compose(ctx, creq)
		if err != nil {
			op := applog.OpCompose
			if creq.Repair() {
				op = applog.OpRepair
			}
			s.events.LogError(ctx, "Composer failed", err, op, applog.NewFields().WithRequestID(requestID))
			return s.fallback(ctx, requestID, bundle, semantic, verdict, attempt)
		}

		res := s.gate.Audit(text, bundle, semantic)
		verdict = &res
		s.events.LogAuditVerdict(ctx, requestID, res.OK, res.Errors, attempt)
		if res.OK {
			ans := Answer{
				Text:     text,
				OK:       true,
				Source:   SourceLLM,
				AsOfKey:  bundle.AsOfKey,
				Attempts: attempt,
				Audit:    verdict,
				Semantic: &semantic,
				Bundle:   bundle,
			}
			s.publish(ctx, requestID, bundle, ans)
			return ans
		}

		creq.PreviousAnswer = text
		creq.RepairInstruction = audit.BuildRepairInstruction(res)
	}
	return s.fallback(ctx, requestID, bundle, semantic, verdict, maxAttempts)
}

func (s *Service) fallback(ctx context.Context, requestID string, bundle *facts.Bundle, semantic audit.SemanticContext, verdict *audit.Result, attempts int) Answer {
	res := intent.RenderBundle(*bundle)
	ans := Answer{
		Text:     res.Text,
		OK:       res.OK,
		Source:   SourceFallback,
		AsOfKey:  bundle.AsOfKey,
		Attempts: attempts,
		Audit:    verdict,
		Semantic: &semantic,
		Bundle:   bundle,
		Result:   &res,
	}
	if verdict != nil {
		ans.Text += verificationNote
		s.publish(ctx, requestID, bundle, ans)
	}
	return ans
}

func (s *Service) publish(ctx context.Context, requestID string, bundle *facts.Bundle, ans Answer) {
	if s.publisher == nil || ans.Audit == nil {
		return
	}
	evt := amqp.NewAuditEvent(requestID, bundle.Question, bundle.AsOfKey)
	evt.PeriodSource = bundle.Resolution.Period.Source
	evt.OK = ans.Audit.OK
	evt.Errors = append(evt.Errors, ans.Audit.Errors...)
	evt.Warnings = append(evt.Warnings, ans.Audit.Warnings...)
	evt.Attempts = ans.Attempts
	evt.Source = ans.Source

	if err := s.publisher.PublishAuditEvent(ctx, evt); err != nil {
		s.logger.WarnContext(ctx, "Audit event not published",
			applog.FieldRequestID, requestID,
			applog.FieldEventID, evt.ID,
			applog.FieldError, err.Error())
	}
}

func cacheKey(question, asOfKey string, snap *core.Snapshot, semantic audit.SemanticContext) (string, error) {
	snapJSON, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("cache key: marshal snapshot: %w", err)
	}
	semJSON, err := json.Marshal(semantic)
	if err != nil {
		return "", fmt.Errorf("cache key: marshal semantic context: %w", err)
	}
	return cache.Key([]byte(question), []byte(asOfKey), snapJSON, semJSON), nil
}
