package http

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).Round(time.Second).String(),
	}).Write(w)
}

// handleReady reports whether the assistant is wired and the audit store, when
// configured, answers a ping.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.assistant == nil {
		checks["assistant"] = "not_configured"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["assistant"] = "ok"
	}

	switch store := s.store.(type) {
	case nil:
		checks["audit_store"] = "not_configured"
	case pinger:
		if err := store.Ping(ctx); err != nil {
			checks["audit_store"] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["audit_store"] = "ok"
		}
	default:
		checks["audit_store"] = "ok"
	}
	if v, ok := s.store.(schemaVersioner); ok {
		checks["audit_schema_version"] = v.SchemaVersion()
	}

	checks["rate_limiter"] = map[string]any{
		"active_clients": s.limiter.ActiveClients(),
		"status":         "ok",
	}

	NewJSONResponse().Status(httpStatus).Body(map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	securityMetrics := s.detector.GetMetrics()
	rateLimitMetrics := s.limiter.GetMetrics()
	traceMetrics := s.tracer.GetMetrics()
	m := s.appMetrics

	counter := func(name, help string, value int64) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n\n", name, help, name, name, value)
	}
	gauge := func(name, help string, value float64) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %g\n\n", name, help, name, name, value)
	}

	counter("http_requests_total", "Total number of HTTP requests", traceMetrics.TotalRequests)

	fmt.Fprintf(w, "# HELP answers_total Answers by source\n# TYPE answers_total counter\n")
	fmt.Fprintf(w, "answers_total{source=\"deterministic\"} %d\n", atomic.LoadInt64(&m.deterministic))
	fmt.Fprintf(w, "answers_total{source=\"llm\"} %d\n", atomic.LoadInt64(&m.llm))
	fmt.Fprintf(w, "answers_total{source=\"fallback\"} %d\n\n", atomic.LoadInt64(&m.fallback))

	counter("answers_cached_total", "Answers served from the answer cache", atomic.LoadInt64(&m.cached))
	counter("audit_failures_total", "Answers whose final audit failed", atomic.LoadInt64(&m.auditFailures))

	if s.cacheStats != nil {
		cs := s.cacheStats()
		counter("cache_hits_total", "Total answer cache hits", cs.Hits)
		counter("cache_misses_total", "Total answer cache misses", cs.Misses)
		counter("cache_evictions_total", "Total answer cache evictions", cs.Evictions)
	}

	counter("rate_limit_hits_total", "Total rate limit hits", rateLimitMetrics.TotalHits)
	gauge("active_rate_limit_clients", "Currently tracked rate limit clients", float64(rateLimitMetrics.ClientCount))
	counter("suspicious_requests_total", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)
	counter("invalid_ip_attempts_total", "Forwarded addresses that failed to parse", securityMetrics.InvalidIPAttempts)
	gauge("uptime_seconds", "Application uptime in seconds", time.Since(m.uptime).Truncate(time.Second).Seconds())
}
