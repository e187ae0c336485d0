// Package sns parses and verifies Amazon SNS webhook deliveries:
// envelope classification, SHA1-with-RSA signature verification against
// the signing certificate, and detection of the SES payload schema
// carried in the message body.
package sns

import "encoding/json"

// Envelope Type values sent by SNS.
const (
	TypeSubscriptionConfirmation = "SubscriptionConfirmation"
	TypeNotification             = "Notification"
	TypeUnsubscribeConfirmation  = "UnsubscribeConfirmation"
)

// Envelope is the outer SNS message. Fields beyond the common set are
// populated only for the matching Type.
type Envelope struct {
	Type             string `json:"Type"`
	MessageID        string `json:"MessageId"`
	TopicArn         string `json:"TopicArn"`
	Subject          string `json:"Subject,omitempty"`
	Message          string `json:"Message"`
	Timestamp        string `json:"Timestamp"`
	SignatureVersion string `json:"SignatureVersion"`
	Signature        string `json:"Signature"`
	SigningCertURL   string `json:"SigningCertURL"`
	SubscribeURL     string `json:"SubscribeURL,omitempty"`
	UnsubscribeURL   string `json:"UnsubscribeURL,omitempty"`
	Token            string `json:"Token,omitempty"`

	// raw keeps the original JSON so the signature string can be
	// built distinguishing absent fields from empty ones.
	raw map[string]json.RawMessage
}

// ParseEnvelope decodes an SNS envelope from the request body.
func ParseEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, &env.raw); err != nil {
		return nil, err
	}
	return &env, nil
}

// HasField reports whether the named key was present in the original
// JSON, even with an empty value.
func (e *Envelope) HasField(name string) bool {
	if e.raw == nil {
		return false
	}
	_, ok := e.raw[name]
	return ok
}
