package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/eap-project/eap/pkg/models"
)

const (
	deliveryTimeout = 10 * time.Second
	maxAttempts     = 3
)

// retryDelays is indexed by attempt count after the failure: the second
// attempt waits a minute, the third five minutes.
var retryDelays = []time.Duration{0, 60 * time.Second, 300 * time.Second}

// Dispatcher fans events out to subscribed webhooks and performs
// individual signed delivery attempts.
type Dispatcher struct {
	repo   Repository
	client *http.Client
	logger *slog.Logger

	// now is swappable for retry-schedule tests.
	now func() time.Time
}

// NewDispatcher creates a dispatcher. client may be nil.
func NewDispatcher(repo Repository, client *http.Client) *Dispatcher {
	if client == nil {
		client = &http.Client{Timeout: deliveryTimeout}
	}
	return &Dispatcher{
		repo:   repo,
		client: client,
		logger: slog.With("component", "webhook"),
		now:    time.Now,
	}
}

// Publish fans an event out to every enabled webhook in the tenant that
// subscribes to it. Each target gets its own delivery row and an immediate
// first attempt; failures are left to the retry worker.
func (d *Dispatcher) Publish(ctx context.Context, tenantID, eventType string, payload any) error {
	if !allowedEvents[eventType] {
		return fmt.Errorf("unknown event type %q", eventType)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode event payload: %w", err)
	}

	hooks, err := d.repo.ListEnabledByEvent(ctx, tenantID, eventType)
	if err != nil {
		return fmt.Errorf("failed to list webhooks: %w", err)
	}

	for _, hook := range hooks {
		delivery := &models.WebhookDelivery{
			ID:        uuid.NewString(),
			WebhookID: hook.ID,
			EventType: eventType,
			Payload:   body,
			Status:    models.DeliveryStatusPending,
		}
		if err := d.repo.CreateDelivery(ctx, delivery); err != nil {
			d.logger.Error("Failed to create delivery", "webhook_id", hook.ID, "error", err)
			continue
		}
		if err := d.Attempt(ctx, &hook, delivery); err != nil {
			d.logger.Warn("Initial delivery attempt failed",
				"delivery_id", delivery.ID, "webhook_id", hook.ID, "error", err)
		}
	}
	return nil
}

// Attempt performs one signed POST and persists the outcome.
//
// 2xx marks the delivery delivered with a null next_retry_at. Anything
// else bumps attempts and either schedules the next retry or, at the
// attempt cap, marks the delivery failed.
func (d *Dispatcher) Attempt(ctx context.Context, hook *models.Webhook, delivery *models.WebhookDelivery) error {
	code, postErr := d.post(ctx, hook, delivery)
	if code != 0 {
		delivery.ResponseCode = &code
	}

	if postErr == nil && code >= 200 && code < 300 {
		delivery.Status = models.DeliveryStatusDelivered
		delivery.Attempts++
		delivery.NextRetryAt = nil
		if err := d.repo.UpdateDelivery(ctx, delivery); err != nil {
			return fmt.Errorf("failed to record delivered status: %w", err)
		}
		return nil
	}

	delivery.Attempts++
	if delivery.Attempts >= maxAttempts {
		delivery.Status = models.DeliveryStatusFailed
		delivery.NextRetryAt = nil
	} else {
		delivery.Status = models.DeliveryStatusPending
		next := d.now().Add(retryDelays[delivery.Attempts])
		delivery.NextRetryAt = &next
	}
	if err := d.repo.UpdateDelivery(ctx, delivery); err != nil {
		return fmt.Errorf("failed to record delivery failure: %w", err)
	}

	if postErr != nil {
		return postErr
	}
	return fmt.Errorf("endpoint returned %d", code)
}

func (d *Dispatcher) post(ctx context.Context, hook *models.Webhook, delivery *models.WebhookDelivery) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(delivery.Payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-EAP-Event", delivery.EventType)
	req.Header.Set("X-EAP-Signature-256", Sign(delivery.Payload, hook.SecretHash))
	req.Header.Set("X-EAP-Delivery-ID", delivery.ID)

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}
