package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/wpchill/sessypress/internal/events"
)

// EventRepo implements events.Store against PostgreSQL and serves the
// reporting read queries.
type EventRepo struct{ db *sql.DB }

// NewEventRepo creates a Postgres-backed event repository.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// InsertBatch inserts each event as its own row. A failing row is
// recorded in its result and never aborts the remaining inserts; no
// transaction spans the batch.
func (r *EventRepo) InsertBatch(ctx context.Context, evts []*events.EmailEvent) []events.InsertResult {
	results := make([]events.InsertResult, 0, len(evts))
	for _, evt := range evts {
		results = append(results, events.InsertResult{
			Recipient: evt.Recipient,
			Err:       r.insert(ctx, evt),
		})
	}
	return results
}

func (r *EventRepo) insert(ctx context.Context, evt *events.EmailEvent) error {
	var metadata interface{}
	if len(evt.Metadata) > 0 {
		data, err := json.Marshal(evt.Metadata)
		if err != nil {
			return fmt.Errorf("marshal event metadata: %w", err)
		}
		metadata = string(data)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ses_email_events (
			message_id, notification_type, event_type, event_source,
			recipient, sender, subject,
			bounce_type, bounce_subtype, complaint_type,
			diagnostic_code, smtp_response, event_metadata,
			timestamp, raw_payload, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW())
	`,
		evt.MessageID, evt.NotificationType, evt.EventType, evt.EventSource,
		evt.Recipient, evt.Sender, evt.Subject,
		nullStr(evt.BounceType), nullStr(evt.BounceSubtype), nullStr(evt.ComplaintType),
		nullStr(evt.DiagnosticCode), nullStr(evt.SMTPResponse), metadata,
		evt.Timestamp, evt.RawPayload,
	)
	if err != nil {
		return fmt.Errorf("insert email event: %w", err)
	}
	return nil
}

// ListFilter narrows the reporting query. Zero values mean no filter.
type ListFilter struct {
	EventType   string
	EventSource string
	Recipient   string // substring match
	MessageID   string // substring match
	Since       time.Time
	Until       time.Time
	Limit       int
	Offset      int
}

// List returns matching events newest first, plus the total match count
// before pagination.
func (r *EventRepo) List(ctx context.Context, f ListFilter) ([]events.EmailEvent, int, error) {
	where, args := f.whereClause()

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ses_email_events`+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count email events: %w", err)
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query := fmt.Sprintf(`
		SELECT id, message_id, notification_type, event_type, event_source,
			recipient, sender, subject,
			bounce_type, bounce_subtype, complaint_type,
			diagnostic_code, smtp_response, event_metadata,
			timestamp, created_at
		FROM ses_email_events%s
		ORDER BY timestamp DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2)
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list email events: %w", err)
	}
	defer rows.Close()

	var out []events.EmailEvent
	for rows.Next() {
		var evt events.EmailEvent
		var bounceType, bounceSubtype, complaintType, diagnosticCode, smtpResponse, metadata sql.NullString
		if err := rows.Scan(
			&evt.ID, &evt.MessageID, &evt.NotificationType, &evt.EventType, &evt.EventSource,
			&evt.Recipient, &evt.Sender, &evt.Subject,
			&bounceType, &bounceSubtype, &complaintType,
			&diagnosticCode, &smtpResponse, &metadata,
			&evt.Timestamp, &evt.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan email event: %w", err)
		}
		evt.BounceType = bounceType.String
		evt.BounceSubtype = bounceSubtype.String
		evt.ComplaintType = complaintType.String
		evt.DiagnosticCode = diagnosticCode.String
		evt.SMTPResponse = smtpResponse.String
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &evt.Metadata); err != nil {
				return nil, 0, fmt.Errorf("decode event metadata: %w", err)
			}
		}
		out = append(out, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list email events: %w", err)
	}
	return out, total, nil
}

func (f ListFilter) whereClause() (string, []interface{}) {
	var conds []string
	var args []interface{}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.EventType != "" {
		add("event_type = $%d", f.EventType)
	}
	if f.EventSource != "" {
		add("event_source = $%d", f.EventSource)
	}
	if f.Recipient != "" {
		add("recipient ILIKE $%d", "%"+f.Recipient+"%")
	}
	if f.MessageID != "" {
		add("message_id ILIKE $%d", "%"+f.MessageID+"%")
	}
	if !f.Since.IsZero() {
		add("timestamp >= $%d", f.Since)
	}
	if !f.Until.IsZero() {
		add("timestamp <= $%d", f.Until)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// SummaryRow is one (event_type, event_source) count.
type SummaryRow struct {
	EventType   string `json:"event_type"`
	EventSource string `json:"event_source"`
	Count       int64  `json:"count"`
}

// Summary returns event counts grouped by type and source.
func (r *EventRepo) Summary(ctx context.Context) ([]SummaryRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT event_type, event_source, COUNT(*)
		FROM ses_email_events
		GROUP BY event_type, event_source
		ORDER BY event_type, event_source
	`)
	if err != nil {
		return nil, fmt.Errorf("summarize email events: %w", err)
	}
	defer rows.Close()

	var out []SummaryRow
	for rows.Next() {
		var row SummaryRow
		if err := rows.Scan(&row.EventType, &row.EventSource, &row.Count); err != nil {
			return nil, fmt.Errorf("scan summary row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
