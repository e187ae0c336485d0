package events

// mailInfo is the "mail" object common to both SES payload schemas.
type mailInfo struct {
	MessageID     string   `json:"messageId"`
	Source        string   `json:"source"`
	Destination   []string `json:"destination"`
	Timestamp     string   `json:"timestamp"`
	CommonHeaders struct {
		Subject string `json:"subject"`
	} `json:"commonHeaders"`
}

// recipientInfo is one entry of a per-recipient array
// (bouncedRecipients, complainedRecipients, delayedRecipients).
type recipientInfo struct {
	EmailAddress   string `json:"emailAddress"`
	DiagnosticCode string `json:"diagnosticCode"`
	Status         string `json:"status"`
}
