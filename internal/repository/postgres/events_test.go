package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wpchill/sessypress/internal/events"
)

func newMockRepo(t *testing.T) (*EventRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewEventRepo(db), mock
}

func sampleEvent(recipient string) *events.EmailEvent {
	return &events.EmailEvent{
		MessageID:        "msg-001",
		NotificationType: "Bounce",
		EventType:        "bounce",
		EventSource:      events.SourceSNSNotification,
		Recipient:        recipient,
		Sender:           "news@example.org",
		Subject:          "Weekly digest",
		BounceType:       "Permanent",
		BounceSubtype:    "General",
		DiagnosticCode:   "550 user unknown",
		Timestamp:        time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		RawPayload:       `{"notificationType":"Bounce"}`,
	}
}

func TestInsertBatchAllSucceed(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("INSERT INTO ses_email_events").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO ses_email_events").
		WillReturnResult(sqlmock.NewResult(2, 1))

	results := repo.InsertBatch(context.Background(), []*events.EmailEvent{
		sampleEvent("a@example.com"),
		sampleEvent("b@example.com"),
	})

	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.NoError(t, results[1].Err)
	assert.Equal(t, "a@example.com", results[0].Recipient)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertBatchContinuesPastFailure(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("INSERT INTO ses_email_events").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectExec("INSERT INTO ses_email_events").
		WillReturnResult(sqlmock.NewResult(2, 1))

	results := repo.InsertBatch(context.Background(), []*events.EmailEvent{
		sampleEvent("a@example.com"),
		sampleEvent("b@example.com"),
	})

	require.Len(t, results, 2)
	assert.Error(t, results[0].Err)
	assert.NoError(t, results[1].Err, "a failed row must not abort the rest of the batch")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertNullsOptionalColumns(t *testing.T) {
	repo, mock := newMockRepo(t)

	evt := &events.EmailEvent{
		MessageID:   "msg-002",
		EventType:   "Send",
		EventSource: events.SourceEventPublishing,
		Recipient:   "a@example.com",
		Timestamp:   time.Now(),
	}

	mock.ExpectExec("INSERT INTO ses_email_events").
		WithArgs(
			evt.MessageID, "", "Send", events.SourceEventPublishing,
			"a@example.com", "", "",
			nil, nil, nil, nil, nil, nil,
			evt.Timestamp, "",
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	results := repo.InsertBatch(context.Background(), []*events.EmailEvent{evt})
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListWithFilters(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM ses_email_events WHERE event_type = \\$1 AND recipient ILIKE \\$2").
		WithArgs("bounce", "%example.com%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	ts := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "message_id", "notification_type", "event_type", "event_source",
		"recipient", "sender", "subject",
		"bounce_type", "bounce_subtype", "complaint_type",
		"diagnostic_code", "smtp_response", "event_metadata",
		"timestamp", "created_at",
	}).AddRow(
		7, "msg-001", "Bounce", "bounce", "sns_notification",
		"a@example.com", "news@example.org", "Weekly digest",
		"Permanent", "General", nil,
		"550 user unknown", nil, nil,
		ts, ts,
	)
	mock.ExpectQuery("SELECT id, message_id, .+ FROM ses_email_events WHERE event_type = \\$1 AND recipient ILIKE \\$2 ORDER BY timestamp DESC").
		WithArgs("bounce", "%example.com%", 50, 0).
		WillReturnRows(rows)

	got, total, err := repo.List(context.Background(), ListFilter{
		EventType: "bounce",
		Recipient: "example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, got, 1)
	assert.Equal(t, int64(7), got[0].ID)
	assert.Equal(t, "Permanent", got[0].BounceType)
	assert.Empty(t, got[0].ComplaintType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListDecodesMetadata(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM ses_email_events").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	ts := time.Now().UTC().Truncate(time.Second)
	rows := sqlmock.NewRows([]string{
		"id", "message_id", "notification_type", "event_type", "event_source",
		"recipient", "sender", "subject",
		"bounce_type", "bounce_subtype", "complaint_type",
		"diagnostic_code", "smtp_response", "event_metadata",
		"timestamp", "created_at",
	}).AddRow(
		1, "msg-101", "Click", "Click", "event_publishing",
		"r@example.com", "s@example.org", "Sale",
		nil, nil, nil, nil, nil, `{"link":"https://example.org/sale"}`,
		ts, ts,
	)
	mock.ExpectQuery("SELECT id, message_id, .+ FROM ses_email_events ORDER BY timestamp DESC").
		WithArgs(50, 0).
		WillReturnRows(rows)

	got, _, err := repo.List(context.Background(), ListFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://example.org/sale", got[0].Metadata["link"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSummary(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT event_type, event_source, COUNT\\(\\*\\)").
		WillReturnRows(sqlmock.NewRows([]string{"event_type", "event_source", "count"}).
			AddRow("Delivery", "event_publishing", 42).
			AddRow("bounce", "sns_notification", 3))

	got, err := repo.Summary(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, SummaryRow{EventType: "Delivery", EventSource: "event_publishing", Count: 42}, got[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}
