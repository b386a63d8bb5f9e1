// Package http provides HTTP server and handler implementations.
//
// This file implements parsing and validation of JSON request bodies. Every
// snapshot passes through core.ParseSnapshot before any core call sees it.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"ledgerqa/internal/core"
)

const (
	maxQuestionRunes = 2000
	maxAnswerRunes   = 20000
	defaultListLimit = 50
	maxListLimit     = 500
)

var (
	errEmptyBody       = errors.New("request body is empty")
	errMissingSnapshot = errors.New("snapshot is required")
)

// requestError is a client mistake with its response already chosen.
type requestError struct {
	resp *JSONResponseBuilder
}

func (e *requestError) Error() string {
	if eb, ok := e.resp.body.(ErrorBody); ok {
		return eb.Error.Message
	}
	return "bad request"
}

func badRequest(code, format string, args ...any) error {
	return &requestError{resp: BadRequestError(code, fmt.Sprintf(format, args...))}
}

// errorResponse maps err to the response it deserves. Anything that is not a
// requestError is a server fault.
func errorResponse(err error) *JSONResponseBuilder {
	var re *requestError
	if errors.As(err, &re) {
		return re.resp
	}
	return InternalServerError()
}

// decodeJSON reads at most limit bytes from r and decodes them into dst.
// Unknown fields are rejected so a misspelled key is not silently ignored.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	body := http.MaxBytesReader(w, r.Body, limit)
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &requestError{resp: BodyTooLargeError(limit)}
		}
		return badRequest(CodeBadRequest, "read body: %v", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return badRequest(CodeBadRequest, "%v", errEmptyBody)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return badRequest(CodeBadRequest, "invalid JSON: %v", err)
	}
	if dec.More() {
		return badRequest(CodeBadRequest, "invalid JSON: trailing data after the request object")
	}
	return nil
}

// parseSnapshot validates and normalizes raw snapshot JSON.
func parseSnapshot(raw json.RawMessage) (*core.Snapshot, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, badRequest(CodeInvalidSnapshot, "%v", errMissingSnapshot)
	}
	snap, err := core.ParseSnapshot(trimmed)
	if err != nil {
		return nil, badRequest(CodeInvalidSnapshot, "%v", err)
	}
	return snap, nil
}

// parseAsOf returns the snapshot end for an empty value and rejects a value
// that is not a date key.
func parseAsOf(asOf string, snap *core.Snapshot) (string, error) {
	asOf = strings.TrimSpace(asOf)
	if asOf == "" {
		return snap.Range.EndDateKey, nil
	}
	if !core.ValidDateKey(asOf) {
		return "", badRequest(CodeInvalidAsOf, "asOf %q must be YYYY-MM-DD", asOf)
	}
	return asOf, nil
}

// parseQuestion sanitizes a question. Empty questions are allowed only when
// required is false.
func parseQuestion(q string, required bool) (string, error) {
	q = sanitizeInput(q)
	if q == "" && required {
		return "", badRequest(CodeInvalidQuestion, "question is required")
	}
	if !utf8.ValidString(q) {
		return "", badRequest(CodeInvalidQuestion, "question is not valid UTF-8")
	}
	if n := utf8.RuneCountInString(q); n > maxQuestionRunes {
		return "", badRequest(CodeInvalidQuestion, "question has %d characters, at most %d allowed", n, maxQuestionRunes)
	}
	return q, nil
}

// parseLimit reads ?limit=N, defaulting to 50 and capping at 500.
func parseLimit(query url.Values) (int, error) {
	v := strings.TrimSpace(query.Get("limit"))
	if v == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, badRequest(CodeBadRequest, "limit %q must be a positive integer", v)
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	return n, nil
}

// RequireMethod checks if the request method matches the expected method(s).
// Returns an error response builder if the method doesn't match.
func RequireMethod(r *http.Request, methods ...string) *JSONResponseBuilder {
	for _, m := range methods {
		if r.Method == m {
			return nil
		}
	}
	return MethodNotAllowedError(strings.Join(methods, ", "))
}

// RequirePOST is a convenience function for POST-only handlers.
func RequirePOST(r *http.Request) *JSONResponseBuilder {
	return RequireMethod(r, http.MethodPost)
}

// RequireGET accepts GET and HEAD.
func RequireGET(r *http.Request) *JSONResponseBuilder {
	return RequireMethod(r, http.MethodGet, http.MethodHead)
}
