package sns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvelope(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{
		"Type": "Notification",
		"MessageId": "abc-123",
		"TopicArn": "arn:aws:sns:us-east-1:123456789012:ses-events",
		"Message": "{\"eventType\":\"Send\"}",
		"Timestamp": "2024-01-15T10:30:00.000Z",
		"SignatureVersion": "1",
		"Signature": "c2ln",
		"SigningCertURL": "https://sns.us-east-1.amazonaws.com/cert.pem"
	}`))
	require.NoError(t, err)

	assert.Equal(t, TypeNotification, env.Type)
	assert.Equal(t, "abc-123", env.MessageID)
	assert.False(t, env.HasField("Subject"))
	assert.True(t, env.HasField("Signature"))
}

func TestParseEnvelopeEmptySubjectIsPresent(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"Type":"Notification","Subject":""}`))
	require.NoError(t, err)

	assert.True(t, env.HasField("Subject"))
	assert.Empty(t, env.Subject)
}

func TestParseEnvelopeInvalidJSON(t *testing.T) {
	_, err := ParseEnvelope([]byte(`{"Type":`))
	assert.Error(t, err)
}

func TestDetectKind(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    MessageKind
	}{
		{"event publishing", `{"eventType":"Open","mail":{}}`, KindEventPublishing},
		{"legacy notification", `{"notificationType":"Bounce","mail":{}}`, KindNotification},
		{"both markers prefers event publishing", `{"eventType":"Bounce","notificationType":"Bounce"}`, KindEventPublishing},
		{"neither marker", `{"mail":{}}`, KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner, err := ParseInner(tt.message)
			require.NoError(t, err)
			assert.Equal(t, tt.want, DetectKind(inner))
		})
	}
}

func TestParseInnerRejectsNonObject(t *testing.T) {
	_, err := ParseInner(`"just a string"`)
	assert.Error(t, err)

	_, err = ParseInner(`not json`)
	assert.Error(t, err)
}
