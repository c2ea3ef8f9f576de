package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/eap-project/eap/pkg/models"
	"github.com/eap-project/eap/pkg/policy"
	"github.com/eap-project/eap/pkg/webhook"
)

type registerWebhookRequest struct {
	URL    string   `json:"url" binding:"required"`
	Events []string `json:"events" binding:"required"`
	Secret string   `json:"secret" binding:"required"`
}

func (s *Server) handleRegisterWebhook(c *gin.Context) {
	actor := actorFrom(c)
	if err := policy.CheckPermission(actor.Role, policy.PermAdminWebhooks); err != nil {
		respondError(c, err)
		return
	}

	var req registerWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Detail: "url, events, and secret are required"})
		return
	}

	hook, err := webhook.Register(c.Request.Context(), s.deps.Webhooks, webhook.RegisterInput{
		TenantID: actor.TenantID,
		URL:      req.URL,
		Events:   req.Events,
		Secret:   req.Secret,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, hook)
}

func (s *Server) handleListWebhooks(c *gin.Context) {
	actor := actorFrom(c)
	if err := policy.CheckPermission(actor.Role, policy.PermAdminWebhooks); err != nil {
		respondError(c, err)
		return
	}

	hooks, err := s.deps.Webhooks.ListByTenant(c.Request.Context(), actor.TenantID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"webhooks": hooks})
}

// handleDisableWebhook stops deliveries for a webhook. The row is kept so
// past deliveries stay auditable.
func (s *Server) handleDisableWebhook(c *gin.Context) {
	actor := actorFrom(c)
	if err := policy.CheckPermission(actor.Role, policy.PermAdminWebhooks); err != nil {
		respondError(c, err)
		return
	}

	if err := s.deps.Webhooks.SetEnabled(c.Request.Context(), actor.TenantID, c.Param("id"), false); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleTestWebhook makes one real signed delivery to the webhook with a
// synthetic payload so operators can verify their receiver end to end.
func (s *Server) handleTestWebhook(c *gin.Context) {
	actor := actorFrom(c)
	if err := policy.CheckPermission(actor.Role, policy.PermAdminWebhooks); err != nil {
		respondError(c, err)
		return
	}

	hook, err := s.deps.Webhooks.GetWebhook(c.Request.Context(), actor.TenantID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if len(hook.Events) == 0 {
		c.JSON(http.StatusConflict, errorResponse{Detail: "webhook has no subscribed events"})
		return
	}

	delivery := &models.WebhookDelivery{
		ID:        uuid.NewString(),
		WebhookID: hook.ID,
		EventType: hook.Events[0],
		Payload:   []byte(`{"test":true}`),
		Status:    models.DeliveryStatusPending,
		CreatedAt: time.Now(),
	}
	if err := s.deps.Webhooks.CreateDelivery(c.Request.Context(), delivery); err != nil {
		respondError(c, err)
		return
	}
	if err := s.deps.Dispatcher.Attempt(c.Request.Context(), hook, delivery); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"delivery_id":   delivery.ID,
		"status":        delivery.Status,
		"response_code": delivery.ResponseCode,
	})
}
