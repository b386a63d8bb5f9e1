package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidEvent = errors.New("invalid audit event")

// AuditEvent records the verdict of one audited answer. The worker stores
// it; the API process only publishes.
type AuditEvent struct {
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
	Timestamp    time.Time `json:"timestamp"`
}

// NewAuditEvent stamps a fresh ID and timestamp.
func NewAuditEvent(requestID, question, asOfKey string) *AuditEvent {
	return &AuditEvent{
		ID:        uuid.NewString(),
		RequestID: requestID,
		Question:  question,
		AsOfKey:   asOfKey,
		Errors:    []string{},
		Warnings:  []string{},
		Timestamp: time.Now().UTC(),
	}
}

func (e *AuditEvent) Validate() error {
	if _, err := uuid.Parse(e.ID); err != nil {
		return fmt.Errorf("%w: id %q: %v", ErrInvalidEvent, e.ID, err)
	}
	if e.Attempts < 0 {
		return fmt.Errorf("%w: attempts %d", ErrInvalidEvent, e.Attempts)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidEvent)
	}
	return nil
}

func (e *AuditEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// AuditEventFromJSON decodes and validates an event body.
func AuditEventFromJSON(data []byte) (*AuditEvent, error) {
	var evt AuditEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, err
	}
	if err := evt.Validate(); err != nil {
		return nil, err
	}
	return &evt, nil
}
