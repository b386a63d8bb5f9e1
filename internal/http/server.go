package http

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"ledgerqa/internal/assistant"
	"ledgerqa/internal/cache"
	applog "ledgerqa/internal/log"
	"ledgerqa/internal/middleware/ratelimit"
	"ledgerqa/internal/middleware/security"
	"ledgerqa/internal/middleware/trace"
	"ledgerqa/internal/storage"
)

const (
	defaultMaxSnapshotBytes = 4 << 20
	// envelopeBytes leaves room for the question, answer and intent around
	// the snapshot.
	envelopeBytes = 64 << 10
)

// AuditStore serves the audit history endpoints.
type AuditStore interface {
	ListRecentAuditEvents(ctx context.Context, limit int) ([]storage.AuditRecord, error)
	AuditStats(ctx context.Context, since time.Time) (storage.AuditStats, error)
}

// pinger is implemented by stores that can report their own health.
type pinger interface {
	Ping(ctx context.Context) error
}

type schemaVersioner interface {
	SchemaVersion() uint
}

type Server struct {
	http.Server
	assistant *assistant.Service
	store     AuditStore
	logger    *applog.Logger
	events    *applog.StructuredLogger

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	headers  *security.HeadersMiddleware

	cacheStats       func() cache.Stats
	maxSnapshotBytes int64
	rateLimit        int
	appMetrics       *appMetrics
	shutdownOnce     sync.Once
}

// appMetrics counts answers by outcome for /metrics.
type appMetrics struct {
	uptime        time.Time
	deterministic int64
	llm           int64
	fallback      int64
	cached        int64
	auditFailures int64
}

func (m *appMetrics) recordAnswer(ans assistant.Answer) {
	switch ans.Source {
	case assistant.SourceLLM:
		atomic.AddInt64(&m.llm, 1)
	case assistant.SourceFallback:
		atomic.AddInt64(&m.fallback, 1)
	default:
		atomic.AddInt64(&m.deterministic, 1)
	}
	if ans.Cached {
		atomic.AddInt64(&m.cached, 1)
	}
	if ans.Audit != nil && !ans.Audit.OK {
		atomic.AddInt64(&m.auditFailures, 1)
	}
}

type Option func(*Server)

// WithAuditStore enables the audit history endpoints.
func WithAuditStore(store AuditStore) Option {
	return func(s *Server) { s.store = store }
}

func WithLogger(logger *applog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

func WithRateLimit(requestsPerMinute int) Option {
	return func(s *Server) { s.rateLimit = requestsPerMinute }
}

// WithMaxSnapshotBytes bounds the snapshot a request may carry.
func WithMaxSnapshotBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxSnapshotBytes = n
		}
	}
}

// WithCacheStats exposes answer cache counters on /metrics.
func WithCacheStats(stats func() cache.Stats) Option {
	return func(s *Server) { s.cacheStats = stats }
}

// WithWriteTimeout must exceed the composer timeout times the attempt count.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) { s.WriteTimeout = d }
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, svc *assistant.Service, opts ...Option) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      90 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		assistant:        svc,
		maxSnapshotBytes: defaultMaxSnapshotBytes,
		rateLimit:        ratelimit.DefaultConfig().RequestsPerMinute,
		appMetrics:       &appMetrics{uptime: time.Now()},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = applog.Discard()
	}
	s.logger = s.logger.WithComponent(applog.ComponentHTTP)
	s.events = applog.NewStructuredLogger(s.logger)

	s.limiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: s.rateLimit})
	s.detector = security.NewDetector(s.logger)
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP, s.logger)
	s.headers = security.NewHeadersMiddleware(security.DefaultHeadersConfig())

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/api/v1/answer", s.handleAnswer)
	mux.HandleFunc("/api/v1/render", s.handleRender)
	mux.HandleFunc("/api/v1/facts", s.handleFacts)
	mux.HandleFunc("/api/v1/resolve", s.handleResolve)
	mux.HandleFunc("/api/v1/audit", s.handleAudit)
	mux.HandleFunc("/api/v1/audits", s.handleListAudits)
	mux.HandleFunc("/api/v1/audits/stats", s.handleAuditStats)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusNotFound, "not_found", "no route for "+r.URL.Path).
			WithRequestID(trace.GetRequestID(r.Context())).
			Write(w)
	})

	s.Handler = s.tracer.Middleware(
		s.detector.Middleware(
			s.headers.Middleware(
				s.limitPOST(mux))))

	return s
}

// limitPOST rate-limits the computing endpoints; health checks and reads pass.
func (s *Server) limitPOST(next http.Handler) http.Handler {
	limited := s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		s.logger.WarnContext(r.Context(), "Rate limit exceeded",
			applog.FieldClientIP, s.detector.ExtractClientIP(r),
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path)
		RateLimitedError().WithRequestID(trace.GetRequestID(r.Context())).Write(w)
	})(next)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			limited.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bodyLimit is the largest request body accepted.
func (s *Server) bodyLimit() int64 {
	return s.maxSnapshotBytes + envelopeBytes
}

// Shutdown stops background goroutines and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
