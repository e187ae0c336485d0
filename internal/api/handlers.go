// Package api wires the webhook ingestion pipeline and the reporting
// read endpoints onto HTTP.
package api

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/wpchill/sessypress/internal/config"
	"github.com/wpchill/sessypress/internal/events"
	"github.com/wpchill/sessypress/internal/pkg/httputil"
	"github.com/wpchill/sessypress/internal/repository/postgres"
	"github.com/wpchill/sessypress/internal/sns"
)

// RateLimiter gates requests per source IP.
type RateLimiter interface {
	Allow(ctx context.Context, ip string) bool
}

// IPValidator answers whether an address belongs to AWS.
type IPValidator interface {
	IsAWSIP(ctx context.Context, ip, service string) bool
}

// SignatureVerifier checks SNS envelope signatures.
type SignatureVerifier interface {
	Verify(ctx context.Context, env *sns.Envelope) error
}

// EventReader serves the reporting queries.
type EventReader interface {
	List(ctx context.Context, f postgres.ListFilter) ([]events.EmailEvent, int, error)
	Summary(ctx context.Context) ([]postgres.SummaryRow, error)
}

// Handlers carries the pipeline dependencies for all HTTP endpoints.
type Handlers struct {
	webhookCfg config.WebhookConfig
	limiter    RateLimiter
	ipcheck    IPValidator
	verifier   SignatureVerifier
	store      events.Store
	reader     EventReader
	legacy     *events.LegacyNormalizer
	eventPub   *events.EventPublishingNormalizer
	client     *http.Client
	db         *sql.DB
}

// NewHandlers assembles the handler set. client is used for the
// SubscribeURL confirmation call; nil gets a default bounded by the
// configured webhook timeout.
func NewHandlers(
	cfg config.WebhookConfig,
	limiter RateLimiter,
	ipcheck IPValidator,
	verifier SignatureVerifier,
	store events.Store,
	reader EventReader,
	db *sql.DB,
	client *http.Client,
) *Handlers {
	if client == nil {
		client = &http.Client{Timeout: cfg.HTTPTimeout()}
	}
	return &Handlers{
		webhookCfg: cfg,
		limiter:    limiter,
		ipcheck:    ipcheck,
		verifier:   verifier,
		store:      store,
		reader:     reader,
		legacy:     events.NewLegacyNormalizer(),
		eventPub:   events.NewEventPublishingNormalizer(),
		client:     client,
		db:         db,
	}
}

// HealthCheck reports service liveness and database reachability.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	if h.db != nil {
		if err := h.db.PingContext(r.Context()); err != nil {
			status["status"] = "degraded"
			status["database"] = "unreachable"
			httputil.JSON(w, http.StatusServiceUnavailable, status)
			return
		}
		status["database"] = "ok"
	}
	httputil.Data(w, status)
}
