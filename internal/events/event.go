// Package events defines the canonical email event record and the
// normalizers that map SES payloads onto it, one record per
// (event, recipient) pair.
package events

import (
	"context"
	"time"
)

// Event sources. Manual is produced by external tooling, never by the
// normalizers here, but the data model and reporting filters accept it.
const (
	SourceSNSNotification = "sns_notification"
	SourceEventPublishing = "event_publishing"
	SourceManual          = "manual"
)

// EmailEvent is one normalized delivery event for one recipient.
// NotificationType keeps the TitleCase type as SES sent it;
// EventType is the query key (lowercase for legacy notifications,
// TitleCase for event publishing). Records are immutable once stored.
type EmailEvent struct {
	ID               int64
	MessageID        string
	NotificationType string
	EventType        string
	EventSource      string
	Recipient        string
	Sender           string
	Subject          string
	BounceType       string
	BounceSubtype    string
	ComplaintType    string
	DiagnosticCode   string
	SMTPResponse     string
	Metadata         map[string]interface{}
	Timestamp        time.Time
	RawPayload       string
	CreatedAt        time.Time
}

// InsertResult is the per-row outcome of a batch insert.
type InsertResult struct {
	Recipient string
	Err       error
}

// Store persists normalized events. InsertBatch attempts every row and
// reports per-row outcomes; a failed row never aborts the rest.
type Store interface {
	InsertBatch(ctx context.Context, evts []*EmailEvent) []InsertResult
}

// parseTimestamp turns an SES timestamp string into UTC, falling back
// to now when the field is absent or unparseable.
func parseTimestamp(value string, now time.Time) time.Time {
	if value == "" {
		return now.UTC()
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC()
		}
	}
	return now.UTC()
}
