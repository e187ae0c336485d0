package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/wpchill/sessypress/internal/events"
	"github.com/wpchill/sessypress/internal/pkg/httputil"
	"github.com/wpchill/sessypress/internal/repository/postgres"
)

// eventDTO is the reporting wire shape of one email event. Optional
// columns are omitted when empty.
type eventDTO struct {
	ID               int64                  `json:"id"`
	MessageID        string                 `json:"message_id"`
	NotificationType string                 `json:"notification_type"`
	EventType        string                 `json:"event_type"`
	EventSource      string                 `json:"event_source"`
	Recipient        string                 `json:"recipient"`
	Sender           string                 `json:"sender,omitempty"`
	Subject          string                 `json:"subject,omitempty"`
	BounceType       string                 `json:"bounce_type,omitempty"`
	BounceSubtype    string                 `json:"bounce_subtype,omitempty"`
	ComplaintType    string                 `json:"complaint_type,omitempty"`
	DiagnosticCode   string                 `json:"diagnostic_code,omitempty"`
	SMTPResponse     string                 `json:"smtp_response,omitempty"`
	Metadata         map[string]interface{} `json:"event_metadata,omitempty"`
	Timestamp        time.Time              `json:"timestamp"`
	CreatedAt        time.Time              `json:"created_at"`
}

func toDTO(evt events.EmailEvent) eventDTO {
	return eventDTO{
		ID:               evt.ID,
		MessageID:        evt.MessageID,
		NotificationType: evt.NotificationType,
		EventType:        evt.EventType,
		EventSource:      evt.EventSource,
		Recipient:        evt.Recipient,
		Sender:           evt.Sender,
		Subject:          evt.Subject,
		BounceType:       evt.BounceType,
		BounceSubtype:    evt.BounceSubtype,
		ComplaintType:    evt.ComplaintType,
		DiagnosticCode:   evt.DiagnosticCode,
		SMTPResponse:     evt.SMTPResponse,
		Metadata:         evt.Metadata,
		Timestamp:        evt.Timestamp,
		CreatedAt:        evt.CreatedAt,
	}
}

// ListEvents serves GET /api/events: the stored event timeline, newest
// first, filterable by type, source, recipient and message ID
// substring, and date range.
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := postgres.ListFilter{
		EventType:   q.Get("event_type"),
		EventSource: q.Get("event_source"),
		Recipient:   q.Get("recipient"),
		MessageID:   q.Get("message_id"),
	}
	if v := q.Get("since"); v != "" {
		ts, err := parseQueryTime(v)
		if err != nil {
			httputil.BadRequest(w, "invalid_filter", "since must be RFC 3339 or YYYY-MM-DD")
			return
		}
		f.Since = ts
	}
	if v := q.Get("until"); v != "" {
		ts, err := parseQueryTime(v)
		if err != nil {
			httputil.BadRequest(w, "invalid_filter", "until must be RFC 3339 or YYYY-MM-DD")
			return
		}
		f.Until = ts
	}
	if v := q.Get("limit"); v != "" {
		f.Limit, _ = strconv.Atoi(v)
	}
	if v := q.Get("offset"); v != "" {
		f.Offset, _ = strconv.Atoi(v)
	}

	list, total, err := h.reader.List(r.Context(), f)
	if err != nil {
		httputil.InternalError(w, "query_failed", err)
		return
	}

	dtos := make([]eventDTO, 0, len(list))
	for _, evt := range list {
		dtos = append(dtos, toDTO(evt))
	}
	httputil.Data(w, map[string]interface{}{
		"events": dtos,
		"total":  total,
		"offset": f.Offset,
	})
}

// EventsSummary serves GET /api/events/summary: counts grouped by
// event type and source.
func (h *Handlers) EventsSummary(w http.ResponseWriter, r *http.Request) {
	rows, err := h.reader.Summary(r.Context())
	if err != nil {
		httputil.InternalError(w, "query_failed", err)
		return
	}
	if rows == nil {
		rows = []postgres.SummaryRow{}
	}
	httputil.Data(w, map[string]interface{}{"summary": rows})
}

func parseQueryTime(v string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, v); err == nil {
		return ts, nil
	}
	return time.Parse("2006-01-02", v)
}
