package events

import (
	"encoding/json"
	"log"
	"time"
)

// legacyMessage is the older SES notification schema, keyed by
// notificationType and limited to Bounce, Complaint and Delivery.
type legacyMessage struct {
	NotificationType string   `json:"notificationType"`
	Mail             mailInfo `json:"mail"`
	Bounce           *struct {
		BounceType        string          `json:"bounceType"`
		BounceSubType     string          `json:"bounceSubType"`
		BouncedRecipients []recipientInfo `json:"bouncedRecipients"`
	} `json:"bounce"`
	Complaint *struct {
		ComplaintFeedbackType string          `json:"complaintFeedbackType"`
		ComplainedRecipients  []recipientInfo `json:"complainedRecipients"`
	} `json:"complaint"`
	Delivery *struct {
		SMTPResponse string   `json:"smtpResponse"`
		Recipients   []string `json:"recipients"`
	} `json:"delivery"`
}

// LegacyNormalizer maps legacy SNS notification payloads to EmailEvents.
type LegacyNormalizer struct {
	now func() time.Time
}

func NewLegacyNormalizer() *LegacyNormalizer {
	return &LegacyNormalizer{now: time.Now}
}

// Normalize returns one event per affected recipient. Unknown
// notification types are logged and dropped; normalization itself
// never fails once the payload decoded.
func (n *LegacyNormalizer) Normalize(raw []byte) []*EmailEvent {
	var msg legacyMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("[LegacyNormalizer] failed to decode notification: %v", err)
		return nil
	}

	base := EmailEvent{
		MessageID:   msg.Mail.MessageID,
		EventSource: SourceSNSNotification,
		Sender:      msg.Mail.Source,
		Subject:     msg.Mail.CommonHeaders.Subject,
		Timestamp:   parseTimestamp(msg.Mail.Timestamp, n.now()),
		RawPayload:  string(raw),
	}

	switch msg.NotificationType {
	case "Bounce":
		if msg.Bounce == nil {
			return nil
		}
		out := make([]*EmailEvent, 0, len(msg.Bounce.BouncedRecipients))
		for _, r := range msg.Bounce.BouncedRecipients {
			evt := base
			evt.NotificationType = "Bounce"
			evt.EventType = "bounce"
			evt.Recipient = r.EmailAddress
			evt.BounceType = msg.Bounce.BounceType
			evt.BounceSubtype = msg.Bounce.BounceSubType
			evt.DiagnosticCode = r.DiagnosticCode
			out = append(out, &evt)
		}
		return out

	case "Complaint":
		if msg.Complaint == nil {
			return nil
		}
		out := make([]*EmailEvent, 0, len(msg.Complaint.ComplainedRecipients))
		for _, r := range msg.Complaint.ComplainedRecipients {
			evt := base
			evt.NotificationType = "Complaint"
			evt.EventType = "complaint"
			evt.Recipient = r.EmailAddress
			evt.ComplaintType = msg.Complaint.ComplaintFeedbackType
			out = append(out, &evt)
		}
		return out

	case "Delivery":
		if msg.Delivery == nil {
			return nil
		}
		recipients := msg.Delivery.Recipients
		if len(recipients) == 0 {
			// Older payloads omit delivery.recipients
			recipients = msg.Mail.Destination
		}
		out := make([]*EmailEvent, 0, len(recipients))
		for _, email := range recipients {
			evt := base
			evt.NotificationType = "Delivery"
			evt.EventType = "delivery"
			evt.Recipient = email
			evt.SMTPResponse = msg.Delivery.SMTPResponse
			out = append(out, &evt)
		}
		return out

	default:
		log.Printf("[LegacyNormalizer] unknown notification type: %s", msg.NotificationType)
		return nil
	}
}
