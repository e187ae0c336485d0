package sns

import (
	"context"
	"crypto"
	"crypto/md5"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/wpchill/sessypress/internal/pkg/ttlcache"
)

// Signing certs live at sns.<region>.amazonaws.com or, in some
// partitions, <region>.sns.amazonaws.com.
var certHostPattern = regexp.MustCompile(`^(sns\.[a-z0-9-]+\.amazonaws\.com(\.cn)?|[a-z0-9-]+\.sns\.amazonaws\.com(\.cn)?)$`)

const certCacheTTL = 24 * time.Hour

// Verifier checks SNS SignatureVersion 1 signatures (SHA1 with RSA)
// against the message's signing certificate. Unlike the source IP
// check, every failure here rejects the message.
type Verifier struct {
	cache  ttlcache.Cache
	client *http.Client
}

// NewVerifier creates a verifier backed by the given cache for signing
// certificates. A nil client gets a default with a 10-second timeout.
func NewVerifier(cache ttlcache.Cache, client *http.Client) *Verifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Verifier{cache: cache, client: client}
}

// Verify checks the envelope's signature. A nil return means the
// message is authentic; any error means it must be rejected.
func (v *Verifier) Verify(ctx context.Context, env *Envelope) error {
	if env.Signature == "" || env.SigningCertURL == "" {
		return fmt.Errorf("missing signature fields")
	}
	if env.SignatureVersion != "1" {
		return fmt.Errorf("unsupported signature version %q", env.SignatureVersion)
	}

	if err := validateCertURL(env.SigningCertURL); err != nil {
		return err
	}

	cert, err := v.signingCert(ctx, env.SigningCertURL)
	if err != nil {
		return err
	}

	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("signing certificate key is not RSA")
	}

	sig, err := base64.StdEncoding.DecodeString(env.Signature)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}

	stringToSign, err := buildStringToSign(env)
	if err != nil {
		return err
	}

	digest := sha1.Sum([]byte(stringToSign))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA1, digest[:], sig); err != nil {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

func validateCertURL(certURL string) error {
	u, err := url.Parse(certURL)
	if err != nil {
		return fmt.Errorf("invalid SigningCertURL: %w", err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("SigningCertURL must use https")
	}
	if !certHostPattern.MatchString(u.Hostname()) {
		return fmt.Errorf("SigningCertURL host %q is not an SNS endpoint", u.Hostname())
	}
	return nil
}

// buildStringToSign assembles the canonical string SNS signed: the
// Type-specific field names in byte order, each as "Name\nValue\n".
// Subject is included only when the envelope carried one.
func buildStringToSign(env *Envelope) (string, error) {
	var fields []string
	switch env.Type {
	case TypeNotification:
		fields = []string{"Message", env.Message, "MessageId", env.MessageID}
		if env.HasField("Subject") {
			fields = append(fields, "Subject", env.Subject)
		}
		fields = append(fields,
			"Timestamp", env.Timestamp,
			"TopicArn", env.TopicArn,
			"Type", env.Type,
		)
	case TypeSubscriptionConfirmation, TypeUnsubscribeConfirmation:
		fields = []string{
			"Message", env.Message,
			"MessageId", env.MessageID,
			"SubscribeURL", env.SubscribeURL,
			"Timestamp", env.Timestamp,
			"Token", env.Token,
			"TopicArn", env.TopicArn,
			"Type", env.Type,
		}
	default:
		return "", fmt.Errorf("cannot sign envelope type %q", env.Type)
	}

	var sb strings.Builder
	for i := 0; i < len(fields); i += 2 {
		sb.WriteString(fields[i])
		sb.WriteByte('\n')
		sb.WriteString(fields[i+1])
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

func (v *Verifier) signingCert(ctx context.Context, certURL string) (*x509.Certificate, error) {
	hash := md5.Sum([]byte(certURL))
	key := "sns_cert:" + hex.EncodeToString(hash[:])

	pemData, err := v.cache.Get(ctx, key)
	if err != nil {
		pemData, err = v.fetchCert(ctx, certURL)
		if err != nil {
			return nil, err
		}
		if err := v.cache.Set(ctx, key, pemData, certCacheTTL); err != nil {
			log.Printf("[SNSVerifier] cert cache write failed: %v", err)
		}
	}

	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("signing certificate is not valid PEM")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse signing certificate: %w", err)
	}
	return cert, nil
}

func (v *Verifier) fetchCert(ctx context.Context, certURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, certURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download signing certificate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download signing certificate: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read signing certificate: %w", err)
	}
	if !strings.Contains(string(body), "BEGIN CERTIFICATE") {
		return "", fmt.Errorf("response is not a certificate")
	}
	return string(body), nil
}
