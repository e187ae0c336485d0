package events

import (
	"encoding/json"
	"log"
	"time"
)

// eventPubMessage is the SES event publishing schema, keyed by
// eventType. Sub-objects are pointers so absence is distinguishable.
type eventPubMessage struct {
	EventType string   `json:"eventType"`
	Mail      mailInfo `json:"mail"`
	Bounce    *struct {
		BounceType        string          `json:"bounceType"`
		BounceSubType     string          `json:"bounceSubType"`
		BouncedRecipients []recipientInfo `json:"bouncedRecipients"`
		Timestamp         string          `json:"timestamp"`
	} `json:"bounce"`
	Complaint *struct {
		ComplaintFeedbackType string          `json:"complaintFeedbackType"`
		ComplainedRecipients  []recipientInfo `json:"complainedRecipients"`
		Timestamp             string          `json:"timestamp"`
	} `json:"complaint"`
	Delivery *struct {
		SMTPResponse string   `json:"smtpResponse"`
		Recipients   []string `json:"recipients"`
		Timestamp    string   `json:"timestamp"`
	} `json:"delivery"`
	DeliveryDelay *struct {
		DelayType         string          `json:"delayType"`
		ExpirationTime    string          `json:"expirationTime"`
		ReportingMTA      string          `json:"reportingMTA"`
		DelayedRecipients []recipientInfo `json:"delayedRecipients"`
		Timestamp         string          `json:"timestamp"`
	} `json:"deliveryDelay"`
	Reject *struct {
		Reason string `json:"reason"`
	} `json:"reject"`
	Open  *engagementInfo `json:"open"`
	Click *engagementInfo `json:"click"`
	Failure *struct {
		TemplateName string `json:"templateName"`
		ErrorMessage string `json:"errorMessage"`
	} `json:"failure"`
	Subscription *struct {
		ContactList string `json:"contactList"`
		Timestamp   string `json:"timestamp"`
	} `json:"subscription"`
}

// engagementInfo is the open/click sub-object. Pointer fields keep
// absent values out of the metadata blob.
type engagementInfo struct {
	IPAddress *string             `json:"ipAddress"`
	UserAgent *string             `json:"userAgent"`
	Link      *string             `json:"link"`
	LinkTags  map[string][]string `json:"linkTags"`
	Timestamp string              `json:"timestamp"`
}

func (e *engagementInfo) metadata() map[string]interface{} {
	md := map[string]interface{}{}
	if e.IPAddress != nil {
		md["ip_address"] = *e.IPAddress
	}
	if e.UserAgent != nil {
		md["user_agent"] = *e.UserAgent
	}
	if e.Link != nil {
		md["link"] = *e.Link
	}
	if e.LinkTags != nil {
		md["link_tags"] = e.LinkTags
	}
	if e.Timestamp != "" {
		md["timestamp"] = e.Timestamp
	}
	return md
}

// EventPublishingNormalizer maps SES event publishing payloads to
// EmailEvents. Event types keep their TitleCase names.
type EventPublishingNormalizer struct {
	now func() time.Time
}

func NewEventPublishingNormalizer() *EventPublishingNormalizer {
	return &EventPublishingNormalizer{now: time.Now}
}

// Normalize returns one event per affected recipient. Unknown event
// types are logged and dropped.
func (n *EventPublishingNormalizer) Normalize(raw []byte) []*EmailEvent {
	var msg eventPubMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("[EventPublishingNormalizer] failed to decode event: %v", err)
		return nil
	}

	base := EmailEvent{
		MessageID:        msg.Mail.MessageID,
		NotificationType: msg.EventType,
		EventType:        msg.EventType,
		EventSource:      SourceEventPublishing,
		Sender:           msg.Mail.Source,
		Subject:          msg.Mail.CommonHeaders.Subject,
		RawPayload:       string(raw),
	}

	// Sub-event timestamps win over mail.timestamp.
	stamp := func(sub string) time.Time {
		if sub != "" {
			return parseTimestamp(sub, n.now())
		}
		return parseTimestamp(msg.Mail.Timestamp, n.now())
	}

	fanOut := func(recipients []string, ts time.Time, md map[string]interface{}, fill func(*EmailEvent)) []*EmailEvent {
		out := make([]*EmailEvent, 0, len(recipients))
		for _, email := range recipients {
			evt := base
			evt.Recipient = email
			evt.Timestamp = ts
			if len(md) > 0 {
				evt.Metadata = md
			}
			if fill != nil {
				fill(&evt)
			}
			out = append(out, &evt)
		}
		return out
	}

	switch msg.EventType {
	case "Send":
		return fanOut(msg.Mail.Destination, stamp(""), nil, nil)

	case "Reject":
		md := map[string]interface{}{}
		if msg.Reject != nil && msg.Reject.Reason != "" {
			md["reason"] = msg.Reject.Reason
		}
		return fanOut(msg.Mail.Destination, stamp(""), md, nil)

	case "Open":
		if msg.Open == nil {
			return nil
		}
		return fanOut(msg.Mail.Destination, stamp(msg.Open.Timestamp), msg.Open.metadata(), nil)

	case "Click":
		if msg.Click == nil {
			return nil
		}
		return fanOut(msg.Mail.Destination, stamp(msg.Click.Timestamp), msg.Click.metadata(), nil)

	case "Bounce":
		if msg.Bounce == nil {
			return nil
		}
		out := make([]*EmailEvent, 0, len(msg.Bounce.BouncedRecipients))
		for _, r := range msg.Bounce.BouncedRecipients {
			evt := base
			evt.Recipient = r.EmailAddress
			evt.BounceType = msg.Bounce.BounceType
			evt.BounceSubtype = msg.Bounce.BounceSubType
			evt.DiagnosticCode = r.DiagnosticCode
			evt.Timestamp = stamp(msg.Bounce.Timestamp)
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
			evt.Recipient = r.EmailAddress
			evt.ComplaintType = msg.Complaint.ComplaintFeedbackType
			evt.Timestamp = stamp(msg.Complaint.Timestamp)
			out = append(out, &evt)
		}
		return out

	case "Delivery":
		if msg.Delivery == nil {
			return nil
		}
		return fanOut(msg.Delivery.Recipients, stamp(msg.Delivery.Timestamp), nil, func(evt *EmailEvent) {
			evt.SMTPResponse = msg.Delivery.SMTPResponse
		})

	case "DeliveryDelay":
		if msg.DeliveryDelay == nil {
			return nil
		}
		md := map[string]interface{}{}
		if msg.DeliveryDelay.DelayType != "" {
			md["delay_type"] = msg.DeliveryDelay.DelayType
		}
		if msg.DeliveryDelay.ExpirationTime != "" {
			md["expiration_time"] = msg.DeliveryDelay.ExpirationTime
		}
		if msg.DeliveryDelay.ReportingMTA != "" {
			md["reporting_mta"] = msg.DeliveryDelay.ReportingMTA
		}
		out := make([]*EmailEvent, 0, len(msg.DeliveryDelay.DelayedRecipients))
		for _, r := range msg.DeliveryDelay.DelayedRecipients {
			evt := base
			evt.Recipient = r.EmailAddress
			if len(md) > 0 {
				evt.Metadata = md
			}
			evt.Timestamp = stamp(msg.DeliveryDelay.Timestamp)
			out = append(out, &evt)
		}
		return out

	case "RenderingFailure":
		md := map[string]interface{}{}
		if msg.Failure != nil {
			if msg.Failure.TemplateName != "" {
				md["template_name"] = msg.Failure.TemplateName
			}
			if msg.Failure.ErrorMessage != "" {
				md["error_message"] = msg.Failure.ErrorMessage
			}
		}
		// RenderingFailure and Subscription events store no subject.
		return fanOut(msg.Mail.Destination, stamp(""), md, func(evt *EmailEvent) {
			evt.Subject = ""
		})

	case "Subscription":
		md := map[string]interface{}{}
		ts := ""
		if msg.Subscription != nil {
			if msg.Subscription.ContactList != "" {
				md["contact_list"] = msg.Subscription.ContactList
			}
			if msg.Subscription.Timestamp != "" {
				md["timestamp"] = msg.Subscription.Timestamp
				ts = msg.Subscription.Timestamp
			}
		}
		return fanOut(msg.Mail.Destination, stamp(ts), md, func(evt *EmailEvent) {
			evt.Subject = ""
		})

	default:
		log.Printf("[EventPublishingNormalizer] unknown event type: %s", msg.EventType)
		return nil
	}
}
