package models

import "time"

// Conversation groups a user's message history within a tenant.
type Conversation struct {
	ID        string    `db:"id" json:"id"`
	TenantID  string    `db:"tenant_id" json:"tenant_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Title     string    `db:"title" json:"title"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// GetTenantID implements policy.TenantOwned.
func (c Conversation) GetTenantID() string { return c.TenantID }

// ConversationMessage is one message in a conversation. SequenceNumber is
// assigned by an atomic increment in the store so messages are strictly
// ordered per conversation.
type ConversationMessage struct {
	ID             string    `db:"id" json:"id"`
	ConversationID string    `db:"conversation_id" json:"conversation_id"`
	TenantID       string    `db:"tenant_id" json:"tenant_id"`
	SequenceNumber int       `db:"sequence_number" json:"sequence_number"`
	Role           string    `db:"role" json:"role"`
	Content        string    `db:"content" json:"content"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// GetTenantID implements policy.TenantOwned.
func (m ConversationMessage) GetTenantID() string { return m.TenantID }
