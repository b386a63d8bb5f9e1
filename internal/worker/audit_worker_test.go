package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerqa/internal/amqp"
	"ledgerqa/internal/storage"
)

// sliceConsumer hands each event to the handler, then blocks until ctx ends.
type sliceConsumer struct {
	events  []*amqp.AuditEvent
	handled chan error
}

func (c *sliceConsumer) ConsumeAuditEvents(ctx context.Context, handler func(context.Context, *amqp.AuditEvent) error) error {
	for _, evt := range c.events {
		c.handled <- handler(ctx, evt)
	}
	<-ctx.Done()
	return ctx.Err()
}

type failingConsumer struct{}

func (failingConsumer) ConsumeAuditEvents(context.Context, func(context.Context, *amqp.AuditEvent) error) error {
	return errors.New("start consuming: access refused")
}

func newStore(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "worker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func event(ok bool, attempts int, source string, errs ...string) *amqp.AuditEvent {
	evt := amqp.NewAuditEvent("req", "Расходы за февраль", "2026-02-15")
	evt.OK = ok
	evt.Attempts = attempts
	evt.Source = source
	if errs != nil {
		evt.Errors = errs
	}
	return evt
}

func TestAuditWorker_RunStoresEvents(t *testing.T) {
	store := newStore(t)
	dup := event(true, 1, "llm")
	consumer := &sliceConsumer{
		events: []*amqp.AuditEvent{
			dup,
			dup,
			event(false, 2, storage.SourceFallback, "number_mismatch:unexpected_money_value:4999"),
		},
		handled: make(chan error, 3),
	}
	w := NewAuditWorker(consumer, store, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	for range consumer.events {
		require.NoError(t, <-consumer.handled)
	}
	cancel()
	require.NoError(t, <-done)

	items, err := store.ListRecentAuditEvents(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	stats, err := w.Report(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(1), stats.Fallbacks)
}

func TestAuditWorker_RunReturnsConsumerError(t *testing.T) {
	w := NewAuditWorker(failingConsumer{}, newStore(t), time.Hour, nil)
	err := w.Run(context.Background())
	assert.ErrorContains(t, err, "access refused")
}

func TestAuditWorker_PublishAuditEventStoresDirectly(t *testing.T) {
	store := newStore(t)
	w := NewAuditWorker(nil, store, time.Minute, nil)

	require.NoError(t, w.PublishAuditEvent(context.Background(), event(true, 1, "deterministic")))

	items, err := store.ListRecentAuditEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "deterministic", items[0].Source)
}

func TestRecordFromEvent(t *testing.T) {
	evt := event(false, 2, "llm", "required_number_missing:forecast_balance_anchor")
	evt.PeriodSource = "current_month"

	rec := RecordFromEvent(evt)
	assert.Equal(t, evt.ID, rec.ID)
	assert.Equal(t, "current_month", rec.PeriodSource)
	assert.Equal(t, evt.Errors, rec.Errors)
	assert.Equal(t, evt.Timestamp, rec.CreatedAt)
	assert.False(t, rec.OK)
}
