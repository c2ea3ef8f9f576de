package webhook

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eap-project/eap/pkg/models"
)

const (
	defaultPollInterval = 15 * time.Second
	defaultBatchSize    = 50
)

// RetryWorker drains due webhook deliveries on a polling loop. The claim
// query hands out at most one delivery per webhook, so a webhook never has
// two concurrent POSTs in flight; independent webhooks progress in
// parallel within a batch.
type RetryWorker struct {
	repo       Repository
	dispatcher *Dispatcher
	interval   time.Duration
	batchSize  int
	logger     *slog.Logger
}

// NewRetryWorker creates a retry worker with default polling settings.
func NewRetryWorker(repo Repository, dispatcher *Dispatcher) *RetryWorker {
	return &RetryWorker{
		repo:       repo,
		dispatcher: dispatcher,
		interval:   defaultPollInterval,
		batchSize:  defaultBatchSize,
		logger:     slog.With("component", "webhook-retry"),
	}
}

// Run polls until the context is cancelled.
func (w *RetryWorker) Run(ctx context.Context) {
	w.logger.Info("Webhook retry worker started", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Webhook retry worker stopped")
			return
		case <-ticker.C:
			if n, err := w.ProcessDue(ctx); err != nil {
				w.logger.Error("Retry batch failed", "error", err)
			} else if n > 0 {
				w.logger.Info("Processed webhook retries", "count", n)
			}
		}
	}
}

// ProcessDue claims and re-attempts one batch of due deliveries, returning
// how many attempts were made.
func (w *RetryWorker) ProcessDue(ctx context.Context) (int, error) {
	due, err := w.repo.ClaimDueDeliveries(ctx, time.Now(), w.batchSize)
	if err != nil {
		return 0, err
	}
	if len(due) == 0 {
		return 0, nil
	}

	var group errgroup.Group
	for i := range due {
		delivery := due[i]
		group.Go(func() error {
			w.retryOne(ctx, &delivery)
			return nil
		})
	}
	group.Wait() //nolint:errcheck // per-delivery failures are recorded on the rows
	return len(due), nil
}

func (w *RetryWorker) retryOne(ctx context.Context, delivery *models.WebhookDelivery) {
	hook, err := w.repo.GetWebhookByID(ctx, delivery.WebhookID)
	if err != nil {
		w.logger.Error("Delivery references unknown webhook",
			"delivery_id", delivery.ID, "webhook_id", delivery.WebhookID, "error", err)
		return
	}
	if !hook.Enabled {
		// Subscription was disabled after the delivery was queued.
		delivery.Status = models.DeliveryStatusFailed
		delivery.NextRetryAt = nil
		if err := w.repo.UpdateDelivery(ctx, delivery); err != nil {
			w.logger.Error("Failed to close delivery for disabled webhook",
				"delivery_id", delivery.ID, "error", err)
		}
		return
	}
	if err := w.dispatcher.Attempt(ctx, hook, delivery); err != nil {
		w.logger.Warn("Retry attempt failed",
			"delivery_id", delivery.ID, "attempts", delivery.Attempts, "error", err)
	}
}
