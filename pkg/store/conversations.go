package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/eap-project/eap/pkg/models"
	"github.com/eap-project/eap/pkg/policy"
)

// ConversationRepo persists conversations and their strictly ordered
// messages.
type ConversationRepo struct {
	db *sqlx.DB
}

// Create inserts a conversation.
func (r *ConversationRepo) Create(ctx context.Context, c *models.Conversation) error {
	return r.db.QueryRowxContext(ctx,
		`INSERT INTO conversations (tenant_id, user_id, title)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at, updated_at`,
		c.TenantID, c.UserID, c.Title,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}

// Get returns a conversation within the requester's tenant.
func (r *ConversationRepo) Get(ctx context.Context, tenantID, conversationID string) (*models.Conversation, error) {
	filter, err := policy.TenantFilter[models.Conversation](tenantID)
	if err != nil {
		return nil, err
	}
	var c models.Conversation
	err = r.db.GetContext(ctx, &c,
		`SELECT id, tenant_id, user_id, title, created_at, updated_at
		 FROM conversations WHERE id = $1 AND `+filter.Predicate(2),
		conversationID, filter.TenantID())
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// ListForUser returns a user's conversations, most recently updated first.
func (r *ConversationRepo) ListForUser(ctx context.Context, tenantID, userID string, limit, offset int) ([]models.Conversation, error) {
	filter, err := policy.TenantFilter[models.Conversation](tenantID)
	if err != nil {
		return nil, err
	}
	var out []models.Conversation
	err = r.db.SelectContext(ctx, &out,
		`SELECT id, tenant_id, user_id, title, created_at, updated_at
		 FROM conversations WHERE user_id = $1 AND `+filter.Predicate(2)+`
		 ORDER BY updated_at DESC LIMIT $3 OFFSET $4`,
		userID, filter.TenantID(), limit, offset)
	return out, err
}

// AppendMessage adds a message with the next sequence number. The
// conversation row is locked for the duration of the transaction, so
// concurrent appends serialize and sequence numbers never collide.
func (r *ConversationRepo) AppendMessage(ctx context.Context, m *models.ConversationMessage) error {
	filter, err := policy.TenantFilter[models.ConversationMessage](m.TenantID)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var conversationID string
	err = tx.GetContext(ctx, &conversationID,
		`SELECT id FROM conversations WHERE id = $1 AND `+filter.Predicate(2)+` FOR UPDATE`,
		m.ConversationID, filter.TenantID())
	if err != nil {
		return notFound(err)
	}

	err = tx.QueryRowxContext(ctx,
		`INSERT INTO conversation_messages (conversation_id, tenant_id, sequence_number, role, content)
		 SELECT $1, $2, COALESCE(MAX(sequence_number), 0) + 1, $3, $4
		 FROM conversation_messages WHERE conversation_id = $1
		 RETURNING id, sequence_number, created_at`,
		m.ConversationID, m.TenantID, m.Role, m.Content,
	).Scan(&m.ID, &m.SequenceNumber, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = now() WHERE id = $1`, m.ConversationID); err != nil {
		return err
	}
	return tx.Commit()
}

// Messages returns a conversation's messages in sequence order.
func (r *ConversationRepo) Messages(ctx context.Context, tenantID, conversationID string) ([]models.ConversationMessage, error) {
	filter, err := policy.TenantFilter[models.ConversationMessage](tenantID)
	if err != nil {
		return nil, err
	}
	var out []models.ConversationMessage
	err = r.db.SelectContext(ctx, &out,
		`SELECT id, conversation_id, tenant_id, sequence_number, role, content, created_at
		 FROM conversation_messages
		 WHERE conversation_id = $1 AND `+filter.Predicate(2)+`
		 ORDER BY sequence_number`,
		conversationID, filter.TenantID())
	return out, err
}
