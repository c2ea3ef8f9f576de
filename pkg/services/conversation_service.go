package services

import (
	"context"

	"github.com/eap-project/eap/pkg/llm"
	"github.com/eap-project/eap/pkg/models"
	"github.com/eap-project/eap/pkg/policy"
)

// ConversationStore is the persistence contract for conversations.
type ConversationStore interface {
	Create(ctx context.Context, c *models.Conversation) error
	Get(ctx context.Context, tenantID, conversationID string) (*models.Conversation, error)
	ListForUser(ctx context.Context, tenantID, userID string, limit, offset int) ([]models.Conversation, error)
	AppendMessage(ctx context.Context, m *models.ConversationMessage) error
	Messages(ctx context.Context, tenantID, conversationID string) ([]models.ConversationMessage, error)
}

// ConversationService manages message history. Appends go through the
// store's atomic sequence increment, so per-conversation ordering is
// strict even under concurrent writers.
type ConversationService struct {
	convs ConversationStore
}

// NewConversationService creates a conversation service.
func NewConversationService(convs ConversationStore) *ConversationService {
	return &ConversationService{convs: convs}
}

// Create starts a conversation owned by the actor.
func (s *ConversationService) Create(ctx context.Context, actor Actor, title string) (*models.Conversation, error) {
	if err := policy.CheckPermission(actor.Role, policy.PermConversationWrite); err != nil {
		return nil, err
	}
	c := &models.Conversation{
		TenantID: actor.TenantID,
		UserID:   actor.UserID,
		Title:    title,
	}
	if err := s.convs.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Append adds one message to a conversation the actor owns.
func (s *ConversationService) Append(ctx context.Context, actor Actor, conversationID, role, content string) (*models.ConversationMessage, error) {
	if err := policy.CheckPermission(actor.Role, policy.PermConversationWrite); err != nil {
		return nil, err
	}
	if content == "" {
		return nil, NewValidationError("content", "must not be empty")
	}
	if _, err := s.ownedConversation(ctx, actor, conversationID); err != nil {
		return nil, err
	}

	m := &models.ConversationMessage{
		ConversationID: conversationID,
		TenantID:       actor.TenantID,
		Role:           role,
		Content:        content,
	}
	if err := s.convs.AppendMessage(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Messages returns a conversation's history in sequence order.
func (s *ConversationService) Messages(ctx context.Context, actor Actor, conversationID string) ([]models.ConversationMessage, error) {
	if err := policy.CheckPermission(actor.Role, policy.PermConversationRead); err != nil {
		return nil, err
	}
	if _, err := s.ownedConversation(ctx, actor, conversationID); err != nil {
		return nil, err
	}
	return s.convs.Messages(ctx, actor.TenantID, conversationID)
}

// List returns the actor's conversations.
func (s *ConversationService) List(ctx context.Context, actor Actor, limit, offset int) ([]models.Conversation, error) {
	if err := policy.CheckPermission(actor.Role, policy.PermConversationRead); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.convs.ListForUser(ctx, actor.TenantID, actor.UserID, limit, offset)
}

// LLMHistory renders a conversation as LLM messages for agent context.
func (s *ConversationService) LLMHistory(ctx context.Context, actor Actor, conversationID string) ([]llm.Message, error) {
	messages, err := s.Messages(ctx, actor, conversationID)
	if err != nil {
		return nil, err
	}
	out := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return out, nil
}

// ownedConversation hides other users' conversations the same way other
// tenants' are hidden.
func (s *ConversationService) ownedConversation(ctx context.Context, actor Actor, conversationID string) (*models.Conversation, error) {
	c, err := s.convs.Get(ctx, actor.TenantID, conversationID)
	if err != nil {
		return nil, err
	}
	if c.UserID != actor.UserID && actor.Role != models.RoleAdmin {
		return nil, policy.ErrNotFound
	}
	return c, nil
}
