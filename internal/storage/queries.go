package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// auditEventRow is the column-level shape of audit_events.
type auditEventRow struct {
	ID           string
	RequestID    string
	Question     string
	AsOfKey      string
	PeriodSource string
	OK           int64
	Errors       string
	Warnings     string
	Attempts     int64
	Source       string
	CreatedAt    string
	StoredAt     string
}

const insertAuditEvent = `
INSERT INTO audit_events (
    id, request_id, question, as_of_key, period_source, ok,
    errors, warnings, attempts, source, created_at, stored_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING`

// InsertAuditEvent reports whether a new row was written; a duplicate id
// is not an error.
func (q *Queries) InsertAuditEvent(ctx context.Context, r auditEventRow) (bool, error) {
	res, err := q.db.ExecContext(ctx, insertAuditEvent,
		r.ID, r.RequestID, r.Question, r.AsOfKey, r.PeriodSource, r.OK,
		r.Errors, r.Warnings, r.Attempts, r.Source, r.CreatedAt, r.StoredAt,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

const listRecentAuditEvents = `
SELECT id, request_id, question, as_of_key, period_source, ok,
       errors, warnings, attempts, source, created_at, stored_at
FROM audit_events
ORDER BY created_at DESC, id
LIMIT ?`

func (q *Queries) ListRecentAuditEvents(ctx context.Context, limit int64) ([]auditEventRow, error) {
	rows, err := q.db.QueryContext(ctx, listRecentAuditEvents, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []auditEventRow
	for rows.Next() {
		var r auditEventRow
		if err := rows.Scan(
			&r.ID, &r.RequestID, &r.Question, &r.AsOfKey, &r.PeriodSource, &r.OK,
			&r.Errors, &r.Warnings, &r.Attempts, &r.Source, &r.CreatedAt, &r.StoredAt,
		); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

const auditStatsSince = `
SELECT COUNT(*),
       COALESCE(SUM(CASE WHEN ok = 0 THEN 1 ELSE 0 END), 0),
       COALESCE(SUM(CASE WHEN source = 'fallback' THEN 1 ELSE 0 END), 0),
       COALESCE(SUM(CASE WHEN ok = 1 AND attempts > 1 THEN 1 ELSE 0 END), 0)
FROM audit_events
WHERE created_at >= ?`

func (q *Queries) AuditStatsSince(ctx context.Context, since string) (total, failed, fallbacks, repaired int64, err error) {
	row := q.db.QueryRowContext(ctx, auditStatsSince, since)
	err = row.Scan(&total, &failed, &fallbacks, &repaired)
	return total, failed, fallbacks, repaired, err
}

const failedErrorsSince = `
SELECT errors FROM audit_events
WHERE ok = 0 AND created_at >= ?`

func (q *Queries) FailedErrorsSince(ctx context.Context, since string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, failedErrorsSince, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

const deleteAuditEventsBefore = `DELETE FROM audit_events WHERE created_at < ?`

func (q *Queries) DeleteAuditEventsBefore(ctx context.Context, before string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteAuditEventsBefore, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
