package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"ledgerqa/internal/amqp"
	applog "ledgerqa/internal/log"
	"ledgerqa/internal/storage"
)

// Consumer delivers audit events until ctx is done.
type Consumer interface {
	ConsumeAuditEvents(ctx context.Context, handler func(context.Context, *amqp.AuditEvent) error) error
}

// Store persists audit events and summarizes them.
type Store interface {
	SaveAuditEvent(ctx context.Context, rec storage.AuditRecord) (bool, error)
	AuditStats(ctx context.Context, since time.Time) (storage.AuditStats, error)
}

// AuditWorker stores consumed audit events and periodically logs the
// failure rate of the answers audited since the previous report.
type AuditWorker struct {
	consumer Consumer
	store    Store
	logger   *applog.Logger
	interval time.Duration
	now      func() time.Time
}

func NewAuditWorker(consumer Consumer, store Store, interval time.Duration, logger *applog.Logger) *AuditWorker {
	if logger == nil {
		logger = applog.Discard()
	}
	return &AuditWorker{
		consumer: consumer,
		store:    store,
		logger:   logger.WithComponent(applog.ComponentWorker),
		interval: interval,
		now:      time.Now,
	}
}

// Run consumes and reports until ctx is cancelled or consumption fails.
func (w *AuditWorker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return w.consumer.ConsumeAuditEvents(ctx, w.HandleAuditEvent)
	})
	g.Go(func() error {
		return w.reportLoop(ctx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// HandleAuditEvent stores one event. Duplicates are acknowledged silently.
func (w *AuditWorker) HandleAuditEvent(ctx context.Context, evt *amqp.AuditEvent) error {
	inserted, err := w.store.SaveAuditEvent(ctx, RecordFromEvent(evt))
	if err != nil {
		return fmt.Errorf("save audit event: %w", err)
	}
	if !inserted {
		w.logger.DebugContext(ctx, "Duplicate audit event skipped", applog.FieldEventID, evt.ID)
		return nil
	}

	fields := applog.NewFields().
		WithRequestID(evt.RequestID).
		WithAudit(evt.OK, evt.Errors, evt.Attempts).
		WithOperation(applog.OpStore)
	fields[applog.FieldEventID] = evt.ID
	fields[applog.FieldAnswerSource] = evt.Source
	w.logger.InfoContext(ctx, "Audit event stored", fields.ToSlice()...)
	return nil
}

func (w *AuditWorker) reportLoop(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	since := w.now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			next := w.now()
			if _, err := w.Report(ctx, since); err != nil {
				w.logger.ErrorContext(ctx, "Audit report failed", applog.FieldError, err.Error())
				continue
			}
			since = next
		}
	}
}

// Report logs the audit summary since the given time and returns it.
func (w *AuditWorker) Report(ctx context.Context, since time.Time) (storage.AuditStats, error) {
	stats, err := w.store.AuditStats(ctx, since)
	if err != nil {
		return stats, err
	}
	if stats.Total == 0 {
		w.logger.DebugContext(ctx, "No audited answers in window", "since", since.UTC().Format(time.RFC3339))
		return stats, nil
	}

	args := []any{
		applog.FieldOperation, applog.OpReport,
		"since", since.UTC().Format(time.RFC3339),
		"total", stats.Total,
		"failed", stats.Failed,
		"fallbacks", stats.Fallbacks,
		"repaired", stats.Repaired,
		"failure_rate", stats.FailureRate(),
	}
	if len(stats.TopErrors) > 0 {
		args = append(args, "top_error", stats.TopErrors[0].Code)
	}
	if stats.Failed > 0 {
		w.logger.WarnContext(ctx, "Audit failure report", args...)
	} else {
		w.logger.InfoContext(ctx, "Audit report", args...)
	}
	return stats, nil
}

// RecordFromEvent maps a bus event onto its stored form.
func RecordFromEvent(evt *amqp.AuditEvent) storage.AuditRecord {
	return storage.AuditRecord{
		ID:           evt.ID,
		RequestID:    evt.RequestID,
		Question:     evt.Question,
		AsOfKey:      evt.AsOfKey,
		PeriodSource: evt.PeriodSource,
		OK:           evt.OK,
		Errors:       evt.Errors,
		Warnings:     evt.Warnings,
		Attempts:     evt.Attempts,
		Source:       evt.Source,
		CreatedAt:    evt.Timestamp,
	}
}

// PublishAuditEvent stores evt in-process, letting the API record verdicts
// when no broker is configured.
func (w *AuditWorker) PublishAuditEvent(ctx context.Context, evt *amqp.AuditEvent) error {
	return w.HandleAuditEvent(ctx, evt)
}
