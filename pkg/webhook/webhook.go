// Package webhook implements event subscriptions: registration, HMAC-SHA256
// signed delivery, and scheduled retries with per-delivery persistence.
package webhook

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/eap-project/eap/pkg/models"
)

// Event types the platform emits. Registration rejects anything else.
const (
	EventAgentCompleted   = "agent.completed"
	EventDocumentIngested = "document.ingested"
	EventFeedbackReceived = "feedback.received"
	EventComplianceAlert  = "compliance.alert"
	EventUserCreated      = "user.created"
)

var allowedEvents = map[string]bool{
	EventAgentCompleted:   true,
	EventDocumentIngested: true,
	EventFeedbackReceived: true,
	EventComplianceAlert:  true,
	EventUserCreated:      true,
}

// AllowedEvents returns the closed event set in stable order.
func AllowedEvents() []string {
	out := make([]string, 0, len(allowedEvents))
	for e := range allowedEvents {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

const verifyTimeout = 5 * time.Second

// Repository is the persistence contract for webhooks and deliveries.
type Repository interface {
	CreateWebhook(ctx context.Context, w *models.Webhook) error
	ListEnabledByEvent(ctx context.Context, tenantID, eventType string) ([]models.Webhook, error)
	GetWebhook(ctx context.Context, tenantID, webhookID string) (*models.Webhook, error)
	// GetWebhookByID is the retry worker's unscoped lookup.
	GetWebhookByID(ctx context.Context, webhookID string) (*models.Webhook, error)

	CreateDelivery(ctx context.Context, d *models.WebhookDelivery) error
	UpdateDelivery(ctx context.Context, d *models.WebhookDelivery) error
	// ClaimDueDeliveries returns due retryable deliveries, at most one per
	// webhook. A claim must mutate the row (lease next_retry_at forward)
	// so concurrent pollers never hand out the same delivery twice; the
	// attempt's UpdateDelivery replaces the lease with the real outcome.
	ClaimDueDeliveries(ctx context.Context, now time.Time, limit int) ([]models.WebhookDelivery, error)
}

// RegisterInput is a webhook registration request.
type RegisterInput struct {
	TenantID string
	URL      string
	Events   []string
	Secret   string
}

// Register validates and persists a webhook subscription. The raw secret
// is hashed before storage and never kept.
func Register(ctx context.Context, repo Repository, in RegisterInput) (*models.Webhook, error) {
	if in.TenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if err := validateURL(in.URL); err != nil {
		return nil, err
	}
	if len(in.Events) == 0 {
		return nil, fmt.Errorf("at least one event type is required")
	}
	for _, e := range in.Events {
		if !allowedEvents[e] {
			return nil, fmt.Errorf("unknown event type %q, allowed: %s", e, strings.Join(AllowedEvents(), ", "))
		}
	}
	if in.Secret == "" {
		return nil, fmt.Errorf("secret is required")
	}

	w := &models.Webhook{
		TenantID:   in.TenantID,
		URL:        in.URL,
		Events:     in.Events,
		SecretHash: HashSecret(in.Secret),
		Enabled:    true,
	}
	if err := repo.CreateWebhook(ctx, w); err != nil {
		return nil, fmt.Errorf("failed to store webhook: %w", err)
	}
	return w, nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("webhook url must use https")
	}
	if u.Host == "" {
		return fmt.Errorf("webhook url must have a host")
	}
	return nil
}

// VerifyEndpoint probes a webhook URL before registration with a short
// GET. Only 5xx responses fail verification; anything the endpoint
// answers, including 404, proves it is reachable.
func VerifyEndpoint(ctx context.Context, client *http.Client, rawURL string) error {
	if err := validateURL(rawURL); err != nil {
		return err
	}
	if client == nil {
		client = http.DefaultClient
	}

	ctx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}
	return nil
}
