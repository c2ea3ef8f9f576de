package models

import "time"

// Webhook is a tenant-registered event subscription. SecretHash is the
// SHA-256 of the raw secret; the raw secret is never persisted and serves
// as the consumer-side HMAC key.
type Webhook struct {
	ID         string    `db:"id" json:"id"`
	TenantID   string    `db:"tenant_id" json:"tenant_id"`
	URL        string    `db:"url" json:"url"`
	Events     []string  `db:"-" json:"events"`
	SecretHash string    `db:"secret_hash" json:"-"`
	Enabled    bool      `db:"enabled" json:"enabled"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// GetTenantID implements policy.TenantOwned.
func (w Webhook) GetTenantID() string { return w.TenantID }

// DeliveryStatus is the state of a single webhook delivery attempt chain.
type DeliveryStatus string

// Webhook delivery statuses.
const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

// Terminal reports whether the delivery has reached a final state.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryStatusDelivered || s == DeliveryStatusFailed
}

// WebhookDelivery records one event payload bound for one webhook.
//
// Invariants: Attempts never exceeds the engine's max attempts;
// NextRetryAt is null once the status is terminal.
type WebhookDelivery struct {
	ID           string         `db:"id" json:"id"`
	WebhookID    string         `db:"webhook_id" json:"webhook_id"`
	EventType    string         `db:"event_type" json:"event_type"`
	Payload      []byte         `db:"payload" json:"payload"`
	Status       DeliveryStatus `db:"status" json:"status"`
	ResponseCode *int           `db:"response_code" json:"response_code,omitempty"`
	Attempts     int            `db:"attempts" json:"attempts"`
	NextRetryAt  *time.Time     `db:"next_retry_at" json:"next_retry_at,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}
