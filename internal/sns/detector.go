package sns

import "encoding/json"

// MessageKind identifies which SES payload schema the inner message uses.
type MessageKind string

const (
	// KindNotification is the legacy SES notification schema, keyed by
	// a "notificationType" field (Bounce, Complaint, Delivery).
	KindNotification MessageKind = "notification"
	// KindEventPublishing is the SES event publishing schema, keyed by
	// an "eventType" field.
	KindEventPublishing MessageKind = "event_publishing"
	// KindUnknown means the inner message carried neither marker.
	KindUnknown MessageKind = "unknown"
)

// DetectKind inspects decoded inner-message JSON and reports which
// schema it follows. When both markers are present, eventType wins:
// event publishing is the schema SES actively emits.
func DetectKind(inner map[string]json.RawMessage) MessageKind {
	if _, ok := inner["eventType"]; ok {
		return KindEventPublishing
	}
	if _, ok := inner["notificationType"]; ok {
		return KindNotification
	}
	return KindUnknown
}

// ParseInner decodes the envelope's Message body into raw JSON fields.
// SNS delivers the SES payload as a JSON string inside the envelope.
func ParseInner(message string) (map[string]json.RawMessage, error) {
	var inner map[string]json.RawMessage
	if err := json.Unmarshal([]byte(message), &inner); err != nil {
		return nil, err
	}
	return inner, nil
}
