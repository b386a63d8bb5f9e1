// Package storage persists audit verdicts in SQLite. The deterministic core
// never touches it.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Stored timestamps are fixed-width UTC so they sort as text.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// SourceFallback marks answers that fell back to the deterministic text.
const SourceFallback = "fallback"

var ErrInvalidRecord = errors.New("invalid audit record")

// AuditRecord is one stored audit verdict.
type AuditRecord struct {
	ID           string    `json:"id"`
	RequestID    string    `json:"requestId,omitempty"`
	Question     string    `json:"question"`
	AsOfKey      string    `json:"asOfKey"`
	PeriodSource string    `json:"periodSource,omitempty"`
	OK           bool      `json:"ok"`
	Errors       []string  `json:"errors"`
	Warnings     []string  `json:"warnings"`
	Attempts     int       `json:"attempts"`
	Source       string    `json:"source"`
	CreatedAt    time.Time `json:"createdAt"`
	StoredAt     time.Time `json:"storedAt"`
}

// ErrorCount is how often one audit error code occurred.
type ErrorCount struct {
	Code  string `json:"code"`
	Count int64  `json:"count"`
}

// AuditStats summarizes verdicts over a window.
type AuditStats struct {
	Since     time.Time    `json:"since"`
	Total     int64        `json:"total"`
	Failed    int64        `json:"failed"`
	Fallbacks int64        `json:"fallbacks"`
	Repaired  int64        `json:"repaired"`
	TopErrors []ErrorCount `json:"topErrors"`
}

// FailureRate is Failed/Total, 0 for an empty window.
func (s AuditStats) FailureRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Failed) / float64(s.Total)
}

type SQLiteRepository struct {
	db            *sql.DB
	queries       *Queries
	schemaVersion uint
	now           func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:            db,
		queries:       New(db),
		schemaVersion: version,
		now:           time.Now,
	}, nil
}

// SchemaVersion is the migration version applied when the repository opened.
func (r *SQLiteRepository) SchemaVersion() uint {
	return r.schemaVersion
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// SaveAuditEvent stores rec once; saving the same ID again is a no-op and
// reports false.
func (r *SQLiteRepository) SaveAuditEvent(ctx context.Context, rec AuditRecord) (bool, error) {
	if rec.ID == "" {
		return false, fmt.Errorf("%w: empty id", ErrInvalidRecord)
	}
	if rec.CreatedAt.IsZero() {
		return false, fmt.Errorf("%w: missing createdAt", ErrInvalidRecord)
	}

	errs, err := encodeList(rec.Errors)
	if err != nil {
		return false, fmt.Errorf("encode errors: %w", err)
	}
	warns, err := encodeList(rec.Warnings)
	if err != nil {
		return false, fmt.Errorf("encode warnings: %w", err)
	}

	var ok int64
	if rec.OK {
		ok = 1
	}
	inserted, err := r.queries.InsertAuditEvent(ctx, auditEventRow{
		ID:           rec.ID,
		RequestID:    rec.RequestID,
		Question:     rec.Question,
		AsOfKey:      rec.AsOfKey,
		PeriodSource: rec.PeriodSource,
		OK:           ok,
		Errors:       errs,
		Warnings:     warns,
		Attempts:     int64(rec.Attempts),
		Source:       rec.Source,
		CreatedAt:    formatTime(rec.CreatedAt),
		StoredAt:     formatTime(r.now()),
	})
	if err != nil {
		return false, fmt.Errorf("insert audit event: %w", err)
	}
	return inserted, nil
}

// ListRecentAuditEvents returns up to limit records, newest first.
func (r *SQLiteRepository) ListRecentAuditEvents(ctx context.Context, limit int) ([]AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.queries.ListRecentAuditEvents(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}

	out := make([]AuditRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, fmt.Errorf("decode audit event %s: %w", row.ID, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// AuditStats summarizes records created at or after since, with the five
// most frequent error codes.
func (r *SQLiteRepository) AuditStats(ctx context.Context, since time.Time) (AuditStats, error) {
	stats := AuditStats{Since: since.UTC(), TopErrors: []ErrorCount{}}
	key := formatTime(since)

	var err error
	stats.Total, stats.Failed, stats.Fallbacks, stats.Repaired, err = r.queries.AuditStatsSince(ctx, key)
	if err != nil {
		return stats, fmt.Errorf("audit stats: %w", err)
	}

	lists, err := r.queries.FailedErrorsSince(ctx, key)
	if err != nil {
		return stats, fmt.Errorf("failed audit errors: %w", err)
	}
	counts := map[string]int64{}
	for _, l := range lists {
		codes, err := decodeList(l)
		if err != nil {
			return stats, fmt.Errorf("decode audit errors: %w", err)
		}
		for _, c := range codes {
			counts[errorFamily(c)]++
		}
	}
	for code, n := range counts {
		stats.TopErrors = append(stats.TopErrors, ErrorCount{Code: code, Count: n})
	}
	sort.Slice(stats.TopErrors, func(i, j int) bool {
		if stats.TopErrors[i].Count != stats.TopErrors[j].Count {
			return stats.TopErrors[i].Count > stats.TopErrors[j].Count
		}
		return stats.TopErrors[i].Code < stats.TopErrors[j].Code
	})
	if len(stats.TopErrors) > 5 {
		stats.TopErrors = stats.TopErrors[:5]
	}
	return stats, nil
}

// PruneBefore deletes records created before cutoff.
func (r *SQLiteRepository) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := r.queries.DeleteAuditEventsBefore(ctx, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune audit events: %w", err)
	}
	return n, nil
}

// errorFamily drops the value suffix so unexpected values group together:
// "number_mismatch:unexpected_money_value:4999" counts as
// "number_mismatch:unexpected_money_value".
func errorFamily(code string) string {
	if i := strings.LastIndex(code, ":"); i > 0 && strings.HasPrefix(code, "number_mismatch:") {
		return code[:i]
	}
	return code
}

func (row auditEventRow) record() (AuditRecord, error) {
	errs, err := decodeList(row.Errors)
	if err != nil {
		return AuditRecord{}, err
	}
	warns, err := decodeList(row.Warnings)
	if err != nil {
		return AuditRecord{}, err
	}
	created, err := time.Parse(timeLayout, row.CreatedAt)
	if err != nil {
		return AuditRecord{}, fmt.Errorf("parse created_at: %w", err)
	}
	stored, err := time.Parse(timeLayout, row.StoredAt)
	if err != nil {
		return AuditRecord{}, fmt.Errorf("parse stored_at: %w", err)
	}
	return AuditRecord{
		ID:           row.ID,
		RequestID:    row.RequestID,
		Question:     row.Question,
		AsOfKey:      row.AsOfKey,
		PeriodSource: row.PeriodSource,
		OK:           row.OK == 1,
		Errors:       errs,
		Warnings:     warns,
		Attempts:     int(row.Attempts),
		Source:       row.Source,
		CreatedAt:    created,
		StoredAt:     stored,
	}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func encodeList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	return string(b), err
}

func decodeList(s string) ([]string, error) {
	out := []string{}
	if s == "" {
		return out, nil
	}
	err := json.Unmarshal([]byte(s), &out)
	return out, err
}
