package api

import (
	"crypto/subtle"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/wpchill/sessypress/internal/events"
	"github.com/wpchill/sessypress/internal/pkg/httputil"
	"github.com/wpchill/sessypress/internal/pkg/logger"
	"github.com/wpchill/sessypress/internal/sns"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// HandleWebhook runs the full ingestion pipeline for one SNS delivery:
// rate limit, secret, source IP, signature, classification,
// normalization, persistence. Failure states short-circuit to an error
// response; once normalization is reached the caller always sees 200,
// so SNS does not retry-storm a healthy endpoint over per-row insert
// failures.
func (h *Handlers) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ip := clientIP(r)
	reqID := uuid.NewString()[:8]

	if !h.limiter.Allow(ctx, ip) {
		logger.Warn("webhook rate limited", "req_id", reqID, "ip", ip)
		httputil.TooManyRequests(w, "rate_limited", "too many requests")
		return
	}

	key := r.URL.Query().Get("key")
	if subtle.ConstantTimeCompare([]byte(key), []byte(h.webhookCfg.SecretKey)) != 1 {
		logger.Warn("webhook secret mismatch", "req_id", reqID, "ip", ip)
		httputil.Forbidden(w, "invalid_secret", "invalid webhook key")
		return
	}

	if h.webhookCfg.AWSIPValidationEnabled() && !h.ipcheck.IsAWSIP(ctx, ip, "AMAZON") {
		logger.Warn("source IP not in AWS ranges", "req_id", reqID, "ip", ip)
		httputil.Forbidden(w, "invalid_source_ip", "request not from AWS")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		logger.Warn("body read failed", "req_id", reqID, "ip", ip, "error", err)
		httputil.BadRequest(w, "invalid_json", "unreadable request body")
		return
	}

	env, err := sns.ParseEnvelope(body)
	if err != nil {
		logger.Warn("envelope decode failed", "req_id", reqID, "ip", ip, "error", err)
		httputil.BadRequest(w, "invalid_json", "request body is not valid JSON")
		return
	}

	if env.HasField("Type") && env.HasField("Signature") {
		if err := h.verifier.Verify(ctx, env); err != nil {
			logger.Warn("signature rejected", "req_id", reqID, "ip", ip, "type", env.Type, "error", err)
			httputil.Forbidden(w, "invalid_signature", "signature verification failed")
			return
		}
	}

	switch env.Type {
	case sns.TypeSubscriptionConfirmation:
		h.confirmSubscription(w, r, env, reqID)
		return

	case sns.TypeUnsubscribeConfirmation:
		logger.Info("unsubscribe confirmation", "req_id", reqID, "topic", env.TopicArn)
		httputil.OK(w, "Unsubscribe confirmed")
		return

	case sns.TypeNotification:
		// fall through to normalization

	default:
		logger.Warn("unknown envelope type", "req_id", reqID, "ip", ip, "type", env.Type)
		httputil.BadRequest(w, "unknown_type", "unknown SNS message type")
		return
	}

	inner, err := sns.ParseInner(env.Message)
	if err != nil {
		logger.Warn("inner message decode failed", "req_id", reqID, "message_id", env.MessageID, "error", err)
		httputil.BadRequest(w, "invalid_message", "notification message is not valid JSON")
		return
	}

	raw := []byte(env.Message)
	var evts []*events.EmailEvent
	switch sns.DetectKind(inner) {
	case sns.KindNotification:
		evts = h.legacy.Normalize(raw)
	case sns.KindEventPublishing:
		evts = h.eventPub.Normalize(raw)
	default:
		logger.Warn("message carries neither notificationType nor eventType", "req_id", reqID, "message_id", env.MessageID)
		httputil.BadRequest(w, "unknown_message_kind", "unsupported message payload")
		return
	}

	results := h.store.InsertBatch(ctx, evts)
	stored := 0
	for _, res := range results {
		if res.Err != nil {
			logger.Error("event insert failed", "req_id", reqID, "recipient", res.Recipient, "message_id", env.MessageID, "error", res.Err)
			continue
		}
		stored++
	}
	logger.Info("notification processed", "req_id", reqID, "message_id", env.MessageID, "events", len(evts), "stored", stored)
	httputil.OK(w, "Notification processed")
}

func (h *Handlers) confirmSubscription(w http.ResponseWriter, r *http.Request, env *sns.Envelope, reqID string) {
	if env.SubscribeURL == "" {
		httputil.BadRequest(w, "invalid_json", "SubscriptionConfirmation without SubscribeURL")
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, env.SubscribeURL, nil)
	if err != nil {
		httputil.BadRequest(w, "invalid_json", "malformed SubscribeURL")
		return
	}

	resp, err := h.client.Do(req)
	if err != nil {
		logger.Error("subscription confirmation failed", "req_id", reqID, "topic", env.TopicArn, "error", err)
		httputil.Error(w, http.StatusInternalServerError, "subscription_failed", "could not confirm subscription")
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	logger.Info("subscription confirmed", "req_id", reqID, "topic", env.TopicArn, "status", resp.StatusCode)
	httputil.OK(w, "Subscription confirmed")
}

// clientIP resolves the request's source address behind proxies:
// first X-Forwarded-For entry, then X-Real-IP, then X-Client-IP, then
// the socket address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			xff = xff[:idx]
		}
		return strings.TrimSpace(xff)
	}
	if rip := r.Header.Get("X-Real-IP"); rip != "" {
		return strings.TrimSpace(rip)
	}
	if cip := r.Header.Get("X-Client-IP"); cip != "" {
		return strings.TrimSpace(cip)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
