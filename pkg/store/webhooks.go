package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/eap-project/eap/pkg/models"
	"github.com/eap-project/eap/pkg/policy"
)

// WebhookRepo persists webhook subscriptions and delivery rows.
// Implements webhook.Repository.
type WebhookRepo struct {
	db *sqlx.DB
}

// webhookRow carries the JSONB events column alongside the model fields.
type webhookRow struct {
	models.Webhook
	EventsJSON []byte `db:"events"`
}

func (row *webhookRow) model() (*models.Webhook, error) {
	w := row.Webhook
	if len(row.EventsJSON) > 0 {
		if err := json.Unmarshal(row.EventsJSON, &w.Events); err != nil {
			return nil, fmt.Errorf("corrupt events column for webhook %s: %w", w.ID, err)
		}
	}
	return &w, nil
}

const webhookColumns = `id, tenant_id, url, events, secret_hash, enabled, created_at, updated_at`

// CreateWebhook inserts a subscription.
func (r *WebhookRepo) CreateWebhook(ctx context.Context, w *models.Webhook) error {
	events, err := json.Marshal(w.Events)
	if err != nil {
		return err
	}
	return r.db.QueryRowxContext(ctx,
		`INSERT INTO webhooks (tenant_id, url, events, secret_hash, enabled)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`,
		w.TenantID, w.URL, events, w.SecretHash, w.Enabled,
	).Scan(&w.ID, &w.CreatedAt, &w.UpdatedAt)
}

// ListEnabledByEvent returns the tenant's enabled webhooks subscribed to
// an event type.
func (r *WebhookRepo) ListEnabledByEvent(ctx context.Context, tenantID, eventType string) ([]models.Webhook, error) {
	filter, err := policy.TenantFilter[models.Webhook](tenantID)
	if err != nil {
		return nil, err
	}
	var rows []webhookRow
	err = r.db.SelectContext(ctx, &rows,
		`SELECT `+webhookColumns+` FROM webhooks
		 WHERE enabled AND events @> $1 AND `+filter.Predicate(2),
		fmt.Sprintf(`["%s"]`, eventType), filter.TenantID())
	if err != nil {
		return nil, err
	}
	out := make([]models.Webhook, 0, len(rows))
	for i := range rows {
		w, err := rows[i].model()
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, nil
}

// GetWebhook returns a subscription within the requester's tenant.
func (r *WebhookRepo) GetWebhook(ctx context.Context, tenantID, webhookID string) (*models.Webhook, error) {
	filter, err := policy.TenantFilter[models.Webhook](tenantID)
	if err != nil {
		return nil, err
	}
	var row webhookRow
	err = r.db.GetContext(ctx, &row,
		`SELECT `+webhookColumns+` FROM webhooks WHERE id = $1 AND `+filter.Predicate(2),
		webhookID, filter.TenantID())
	if err != nil {
		return nil, notFound(err)
	}
	return row.model()
}

// GetWebhookByID is the retry worker's unscoped lookup.
func (r *WebhookRepo) GetWebhookByID(ctx context.Context, webhookID string) (*models.Webhook, error) {
	var row webhookRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+webhookColumns+` FROM webhooks WHERE id = $1`, webhookID)
	if err != nil {
		return nil, notFound(err)
	}
	return row.model()
}

// ListByTenant returns all of a tenant's subscriptions.
func (r *WebhookRepo) ListByTenant(ctx context.Context, tenantID string) ([]models.Webhook, error) {
	filter, err := policy.TenantFilter[models.Webhook](tenantID)
	if err != nil {
		return nil, err
	}
	var rows []webhookRow
	err = r.db.SelectContext(ctx, &rows,
		`SELECT `+webhookColumns+` FROM webhooks WHERE `+filter.Predicate(1)+` ORDER BY created_at`,
		filter.TenantID())
	if err != nil {
		return nil, err
	}
	out := make([]models.Webhook, 0, len(rows))
	for i := range rows {
		w, err := rows[i].model()
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, nil
}

// SetEnabled toggles a subscription within the requester's tenant.
func (r *WebhookRepo) SetEnabled(ctx context.Context, tenantID, webhookID string, enabled bool) error {
	filter, err := policy.TenantFilter[models.Webhook](tenantID)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE webhooks SET enabled = $1, updated_at = now() WHERE id = $2 AND `+filter.Predicate(3),
		enabled, webhookID, filter.TenantID())
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return policy.ErrNotFound
	}
	return nil
}

// CreateDelivery inserts a delivery row.
func (r *WebhookRepo) CreateDelivery(ctx context.Context, d *models.WebhookDelivery) error {
	return r.db.QueryRowxContext(ctx,
		`INSERT INTO webhook_deliveries (id, webhook_id, event_type, payload, status, attempts, next_retry_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at`,
		d.ID, d.WebhookID, d.EventType, d.Payload, d.Status, d.Attempts, d.NextRetryAt,
	).Scan(&d.CreatedAt)
}

// UpdateDelivery persists an attempt outcome.
func (r *WebhookRepo) UpdateDelivery(ctx context.Context, d *models.WebhookDelivery) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE webhook_deliveries
		 SET status = $1, response_code = $2, attempts = $3, next_retry_at = $4
		 WHERE id = $5`,
		d.Status, d.ResponseCode, d.Attempts, d.NextRetryAt, d.ID)
	return err
}

// claimLease is how long a claimed delivery stays invisible to other
// pollers. It must exceed the dispatcher's POST timeout; a worker that
// dies mid-attempt forfeits its claim when the lease runs out.
const claimLease = time.Minute

// ClaimDueDeliveries claims due pending deliveries, at most one per
// webhook. Claiming mutates: the UPDATE pushes next_retry_at one lease
// into the future in the same statement that locks the candidate rows, so
// a second poller arriving after the statement commits still skips them.
// DISTINCT ON keeps a single in-flight delivery per webhook; FOR UPDATE
// SKIP LOCKED keeps concurrent claimers from blocking on each other.
func (r *WebhookRepo) ClaimDueDeliveries(ctx context.Context, now time.Time, limit int) ([]models.WebhookDelivery, error) {
	var deliveries []models.WebhookDelivery
	err := r.db.SelectContext(ctx, &deliveries,
		`UPDATE webhook_deliveries
		 SET next_retry_at = $2
		 WHERE id IN (
		     SELECT DISTINCT ON (webhook_id) id FROM webhook_deliveries
		     WHERE status = 'pending' AND attempts < 3
		       AND (next_retry_at IS NULL OR next_retry_at <= $1)
		     ORDER BY webhook_id, next_retry_at NULLS FIRST
		     LIMIT $3
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, webhook_id, event_type, payload, status, response_code, attempts, next_retry_at, created_at`,
		now, now.Add(claimLease), limit)
	return deliveries, err
}
