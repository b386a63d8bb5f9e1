package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"ledgerqa/internal/assistant"
	"ledgerqa/internal/audit"
	"ledgerqa/internal/core"
	"ledgerqa/internal/intent"
	applog "ledgerqa/internal/log"
	"ledgerqa/internal/middleware/trace"
	"ledgerqa/internal/period"
	"ledgerqa/internal/storage"
)

const defaultStatsWindow = 24 * time.Hour

type (
	answerRequest struct {
		Question string                 `json:"question"`
		AsOf     string                 `json:"asOf"`
		Snapshot json.RawMessage        `json:"snapshot"`
		Intent   *intent.Intent         `json:"intent,omitempty"`
		Semantic *audit.SemanticContext `json:"semantic,omitempty"`
	}

	renderRequest struct {
		Intent   *intent.Intent  `json:"intent"`
		AsOf     string          `json:"asOf"`
		Snapshot json.RawMessage `json:"snapshot"`
	}

	questionRequest struct {
		Question string          `json:"question"`
		AsOf     string          `json:"asOf"`
		Snapshot json.RawMessage `json:"snapshot"`
	}

	auditRequest struct {
		Answer   string                 `json:"answer"`
		Question string                 `json:"question"`
		AsOf     string                 `json:"asOf"`
		Snapshot json.RawMessage        `json:"snapshot"`
		Semantic *audit.SemanticContext `json:"semantic,omitempty"`
	}

	resolveResponse struct {
		AsOfKey    string             `json:"asOfKey"`
		Period     *period.Period     `json:"period,omitempty"`
		Resolution *period.Resolution `json:"resolution,omitempty"`
		Comparison *period.Comparison `json:"comparison,omitempty"`
		Sources    []string           `json:"sources"`
	}

	auditResponse struct {
		Result            audit.Result          `json:"result"`
		Semantic          audit.SemanticContext `json:"semantic"`
		RepairInstruction string                `json:"repairInstruction,omitempty"`
	}

	auditListResponse struct {
		Items []storage.AuditRecord `json:"items"`
		Count int                   `json:"count"`
	}
)

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()
	requestID := trace.GetRequestID(ctx)

	var req answerRequest
	if err := decodeJSON(w, r, s.bodyLimit(), &req); err != nil {
		s.fail(w, r, err, applog.OpAnswer)
		return
	}
	snap, err := parseSnapshot(req.Snapshot)
	if err != nil {
		s.fail(w, r, err, applog.OpValidate)
		return
	}
	asOf, err := parseAsOf(req.AsOf, snap)
	if err != nil {
		s.fail(w, r, err, applog.OpValidate)
		return
	}
	question, err := parseQuestion(req.Question, req.Intent == nil)
	if err != nil {
		s.fail(w, r, err, applog.OpValidate)
		return
	}
	if req.Intent != nil && req.Intent.Type == "" {
		s.fail(w, r, badRequest(CodeInvalidIntent, "intent.type is required"), applog.OpValidate)
		return
	}

	ans, err := s.assistant.Answer(ctx, assistant.Request{
		RequestID: requestID,
		Question:  question,
		AsOfKey:   asOf,
		Snapshot:  snap,
		Intent:    req.Intent,
		Semantic:  req.Semantic,
	})
	if err != nil {
		s.fail(w, r, err, applog.OpAnswer)
		return
	}
	s.appMetrics.recordAnswer(ans)

	fields := applog.NewFields().WithRequestID(requestID)
	if ans.Bundle != nil {
		p := ans.Bundle.Resolution.Period
		fields = fields.WithPeriod(p.Source, p.StartDateKey, p.EndDateKey)
	}
	fields[applog.FieldAnswerSource] = ans.Source
	fields[applog.FieldAttempt] = ans.Attempts
	fields[applog.FieldCacheHit] = ans.Cached
	s.logger.InfoContext(ctx, "Answer produced", fields.WithOperation(applog.OpAnswer).ToSlice()...)

	NewJSONResponse().Body(ans).Write(w)
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}

	var req renderRequest
	if err := decodeJSON(w, r, s.bodyLimit(), &req); err != nil {
		s.fail(w, r, err, applog.OpRender)
		return
	}
	if req.Intent == nil || req.Intent.Type == "" {
		s.fail(w, r, badRequest(CodeInvalidIntent, "intent.type is required"), applog.OpValidate)
		return
	}
	snap, err := parseSnapshot(req.Snapshot)
	if err != nil {
		s.fail(w, r, err, applog.OpValidate)
		return
	}
	asOf, err := parseAsOf(req.AsOf, snap)
	if err != nil {
		s.fail(w, r, err, applog.OpValidate)
		return
	}
	in := *req.Intent
	in.Question = sanitizeInput(in.Question)

	res := s.assistant.Renderer().Render(in, snap, asOf)
	applog.FromContext(r.Context()).DebugContext(r.Context(), "Intent rendered",
		applog.FieldIntent, string(in.Type),
		applog.FieldSuccess, res.OK)

	NewJSONResponse().Body(res).Write(w)
}

func (s *Server) handleFacts(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	question, asOf, snap, err := s.parseQuestionRequest(w, r)
	if err != nil {
		s.fail(w, r, err, applog.OpFacts)
		return
	}

	bundle := s.assistant.Builder().Build(question, asOf, snap)
	NewJSONResponse().Body(bundle).Write(w)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	question, asOf, snap, err := s.parseQuestionRequest(w, r)
	if err != nil {
		s.fail(w, r, err, applog.OpResolve)
		return
	}

	resolver := s.assistant.Builder().Resolver()
	out := resolveResponse{AsOfKey: asOf, Sources: resolver.Sources()}
	if p, ok := resolver.Resolve(question, asOf, snap); ok {
		out.Period = &p
	}
	if res, ok := resolver.ResolveInSnapshot(question, asOf, snap); ok {
		out.Resolution = &res
	}
	if cmp, ok := resolver.ResolveComparison(question, asOf, snap); ok {
		out.Comparison = cmp
	}
	NewJSONResponse().Body(out).Write(w)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}

	var req auditRequest
	if err := decodeJSON(w, r, s.bodyLimit(), &req); err != nil {
		s.fail(w, r, err, applog.OpAudit)
		return
	}
	snap, err := parseSnapshot(req.Snapshot)
	if err != nil {
		s.fail(w, r, err, applog.OpValidate)
		return
	}
	asOf, err := parseAsOf(req.AsOf, snap)
	if err != nil {
		s.fail(w, r, err, applog.OpValidate)
		return
	}
	question, err := parseQuestion(req.Question, false)
	if err != nil {
		s.fail(w, r, err, applog.OpValidate)
		return
	}
	if n := utf8.RuneCountInString(req.Answer); n > maxAnswerRunes {
		s.fail(w, r, badRequest(CodeBadRequest, "answer has %d characters, at most %d allowed", n, maxAnswerRunes), applog.OpValidate)
		return
	}

	semantic := audit.InferContext(question)
	if req.Semantic != nil {
		semantic = *req.Semantic
	}
	bundle := s.assistant.Builder().Build(question, asOf, snap)
	res := s.assistant.Gate().Audit(req.Answer, &bundle, semantic)
	s.events.LogAuditVerdict(r.Context(), trace.GetRequestID(r.Context()), res.OK, res.Errors, 1)

	NewJSONResponse().Body(auditResponse{
		Result:            res,
		Semantic:          semantic,
		RepairInstruction: audit.BuildRepairInstruction(res),
	}).Write(w)
}

func (s *Server) handleListAudits(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	if s.store == nil {
		NotConfiguredError("audit store").WithRequestID(trace.GetRequestID(r.Context())).Write(w)
		return
	}
	limit, err := parseLimit(r.URL.Query())
	if err != nil {
		s.fail(w, r, err, applog.OpValidate)
		return
	}

	items, err := s.store.ListRecentAuditEvents(r.Context(), limit)
	if err != nil {
		s.fail(w, r, fmt.Errorf("list audit events: %w", err), applog.OpStore)
		return
	}
	if items == nil {
		items = []storage.AuditRecord{}
	}
	NewJSONResponse().Body(auditListResponse{Items: items, Count: len(items)}).Write(w)
}

// handleAuditStats summarizes the audit history over ?window=<duration>,
// 24h by default.
func (s *Server) handleAuditStats(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	if s.store == nil {
		NotConfiguredError("audit store").WithRequestID(trace.GetRequestID(r.Context())).Write(w)
		return
	}

	window := defaultStatsWindow
	if v := strings.TrimSpace(r.URL.Query().Get("window")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			s.fail(w, r, badRequest(CodeBadRequest, "window %q must be a positive duration", v), applog.OpValidate)
			return
		}
		window = d
	}

	stats, err := s.store.AuditStats(r.Context(), time.Now().Add(-window))
	if err != nil {
		s.fail(w, r, fmt.Errorf("audit stats: %w", err), applog.OpReport)
		return
	}
	NewJSONResponse().Body(map[string]any{
		"window":      window.String(),
		"stats":       stats,
		"failureRate": stats.FailureRate(),
	}).Write(w)
}

func (s *Server) parseQuestionRequest(w http.ResponseWriter, r *http.Request) (string, string, *core.Snapshot, error) {
	var req questionRequest
	if err := decodeJSON(w, r, s.bodyLimit(), &req); err != nil {
		return "", "", nil, err
	}
	snap, err := parseSnapshot(req.Snapshot)
	if err != nil {
		return "", "", nil, err
	}
	asOf, err := parseAsOf(req.AsOf, snap)
	if err != nil {
		return "", "", nil, err
	}
	question, err := parseQuestion(req.Question, false)
	if err != nil {
		return "", "", nil, err
	}
	return question, asOf, snap, nil
}

// fail writes the response for err. Client mistakes are logged at warn,
// everything else at error with a generic 500 body.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, op string) {
	ctx := r.Context()
	requestID := trace.GetRequestID(ctx)

	var re *requestError
	if errors.As(err, &re) || errors.Is(err, assistant.ErrNoSnapshot) {
		s.logger.WarnContext(ctx, "Request rejected",
			applog.FieldRequestID, requestID,
			applog.FieldOperation, op,
			applog.FieldError, err.Error(),
			"error_type", applog.ErrorTypeValidation)
		if re == nil {
			re = &requestError{resp: BadRequestError(CodeInvalidSnapshot, err.Error())}
		}
		re.resp.WithRequestID(requestID).Write(w)
		return
	}

	s.events.LogError(ctx, "Request failed", err, op, applog.NewFields().WithRequestID(requestID))
	errorResponse(err).WithRequestID(requestID).Write(w)
}
