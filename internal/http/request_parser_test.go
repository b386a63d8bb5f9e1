package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"ledgerqa/internal/core"
)

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		limit    int64
		wantErr  bool
		wantCode int
	}{
		{name: "valid", body: `{"question":"Сколько?","asOf":"2026-02-15"}`, limit: 1024},
		{name: "empty body", body: "  ", limit: 1024, wantErr: true, wantCode: http.StatusBadRequest},
		{name: "malformed", body: `{"question":`, limit: 1024, wantErr: true, wantCode: http.StatusBadRequest},
		{name: "unknown field", body: `{"questoin":"typo"}`, limit: 1024, wantErr: true, wantCode: http.StatusBadRequest},
		{name: "trailing data", body: `{"question":"a"} {"question":"b"}`, limit: 1024, wantErr: true, wantCode: http.StatusBadRequest},
		{name: "too large", body: `{"question":"` + strings.Repeat("x", 100) + `"}`, limit: 32, wantErr: true, wantCode: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/api/v1/facts", strings.NewReader(tt.body))

			var dst questionRequest
			err := decodeJSON(w, r, tt.limit, &dst)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				if dst.Question != "Сколько?" || dst.AsOf != "2026-02-15" {
					t.Errorf("decodeJSON() = %+v", dst)
				}
				return
			}

			var re *requestError
			if !errors.As(err, &re) {
				t.Fatalf("decodeJSON() error = %T, want *requestError", err)
			}
			if re.resp.statusCode != tt.wantCode {
				t.Errorf("status = %d, want %d", re.resp.statusCode, tt.wantCode)
			}
		})
	}
}

func TestParseSnapshot(t *testing.T) {
	valid, err := json.Marshal(core.Snapshot{
		SchemaVersion: core.SchemaVersion,
		Days:          []core.Day{{DateKey: "2026-02-01"}, {DateKey: "2026-02-03"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	snap, err := parseSnapshot(valid)
	if err != nil {
		t.Fatalf("parseSnapshot() error = %v", err)
	}
	if snap.Range.StartDateKey != "2026-02-01" || snap.Range.EndDateKey != "2026-02-03" {
		t.Errorf("Range = %+v, want derived from days", snap.Range)
	}

	for name, raw := range map[string]string{
		"missing":        ``,
		"null":           `null`,
		"wrong version":  `{"schemaVersion":2,"days":[{"dateKey":"2026-02-01"}]}`,
		"no days":        `{"schemaVersion":1,"days":[]}`,
		"bad date key":   `{"schemaVersion":1,"days":[{"dateKey":"15.02.2026"}]}`,
		"not an object":  `[1,2,3]`,
		"bad visibility": `{"schemaVersion":1,"visibilityMode":"secret","days":[{"dateKey":"2026-02-01"}]}`,
		"duplicate day":  `{"schemaVersion":1,"days":[{"dateKey":"2026-02-01"},{"dateKey":"2026-02-01"}]}`,
		"narrow range":   `{"schemaVersion":1,"range":{"startDateKey":"2026-02-02","endDateKey":"2026-02-28"},"days":[{"dateKey":"2026-02-01"}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := parseSnapshot(json.RawMessage(raw))
			var re *requestError
			if !errors.As(err, &re) {
				t.Fatalf("parseSnapshot() error = %v, want a request error", err)
			}
			body := re.resp.body.(ErrorBody)
			if body.Error.Code != CodeInvalidSnapshot {
				t.Errorf("code = %q, want %q", body.Error.Code, CodeInvalidSnapshot)
			}
		})
	}
}

func TestParseAsOf(t *testing.T) {
	snap := &core.Snapshot{Range: core.Range{StartDateKey: "2026-02-01", EndDateKey: "2026-02-28"}}

	got, err := parseAsOf("", snap)
	if err != nil || got != "2026-02-28" {
		t.Errorf("parseAsOf(\"\") = %q, %v; want snapshot end", got, err)
	}
	got, err = parseAsOf(" 2026-02-15 ", snap)
	if err != nil || got != "2026-02-15" {
		t.Errorf("parseAsOf() = %q, %v", got, err)
	}
	if _, err := parseAsOf("2026-02-30", snap); err == nil {
		t.Error("parseAsOf() accepted an impossible date")
	}
	if _, err := parseAsOf("15.02.2026", snap); err == nil {
		t.Error("parseAsOf() accepted a non-ISO date")
	}
}

func TestParseQuestion(t *testing.T) {
	if q, err := parseQuestion("  Сколько\x00 осталось?\x07 ", true); err != nil || q != "Сколько осталось?" {
		t.Errorf("parseQuestion() = %q, %v", q, err)
	}
	if _, err := parseQuestion("   ", true); err == nil {
		t.Error("parseQuestion() accepted an empty required question")
	}
	if q, err := parseQuestion("", false); err != nil || q != "" {
		t.Errorf("parseQuestion(optional) = %q, %v", q, err)
	}
	if _, err := parseQuestion(strings.Repeat("я", maxQuestionRunes+1), true); err == nil {
		t.Error("parseQuestion() accepted an oversized question")
	}
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		query   string
		want    int
		wantErr bool
	}{
		{"", defaultListLimit, false},
		{"limit=10", 10, false},
		{"limit=100000", maxListLimit, false},
		{"limit=0", 0, true},
		{"limit=-3", 0, true},
		{"limit=abc", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			q, _ := url.ParseQuery(tt.query)
			got, err := parseLimit(q)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseLimit() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseLimit() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRequireMethod(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	if resp := RequirePOST(r); resp != nil {
		t.Error("RequirePOST() should return nil for POST request")
	}
	if resp := RequireGET(r); resp == nil {
		t.Error("RequireGET() should reject POST")
	}

	w := httptest.NewRecorder()
	RequireMethod(httptest.NewRequest(http.MethodDelete, "/", nil), http.MethodGet, http.MethodHead).Write(w)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
	if allow := w.Header().Get("Allow"); allow != "GET, HEAD" {
		t.Errorf("Allow = %q, want %q", allow, "GET, HEAD")
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		{"  hello  ", "hello"},
		{"a\tb\nc", "a\tb\nc"},
		{"bell\x07del\x7f", "belldel"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := sanitizeInput(tt.input); got != tt.want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	for n, want := range map[int64]string{
		4 << 20: "4 MiB",
		64 << 10: "64 KiB",
		1500:    "1500 bytes",
	} {
		if got := formatBytes(n); got != want {
			t.Errorf("formatBytes(%d) = %q, want %q", n, got, want)
		}
	}
}
