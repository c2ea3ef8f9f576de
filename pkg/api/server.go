// Package api exposes the platform over HTTP: gin router, token auth,
// rate limiting, and handlers for plans, goals, conversations, webhooks,
// review, and health.
package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/eap-project/eap/pkg/auth"
	"github.com/eap-project/eap/pkg/config"
	"github.com/eap-project/eap/pkg/database"
	"github.com/eap-project/eap/pkg/memory"
	"github.com/eap-project/eap/pkg/models"
	"github.com/eap-project/eap/pkg/ratelimit"
	"github.com/eap-project/eap/pkg/services"
	"github.com/eap-project/eap/pkg/thinking"
	"github.com/eap-project/eap/pkg/webhook"
)

// WebhookStore is the persistence surface the webhook handlers need on
// top of the delivery engine's repository.
type WebhookStore interface {
	webhook.Repository
	ListByTenant(ctx context.Context, tenantID string) ([]models.Webhook, error)
	SetEnabled(ctx context.Context, tenantID, webhookID string, enabled bool) error
}

// Deps wires the server to every subsystem it fronts. Health probe fields
// may be nil; the corresponding component then reports unavailable.
type Deps struct {
	Config *config.Config

	Verifier      auth.TokenVerifier
	Users         *services.UserService
	Plans         *services.PlanService
	Goals         *services.GoalService
	Conversations *services.ConversationService
	Audit         *services.AuditService
	Memory        *memory.Service

	Webhooks   WebhookStore
	Dispatcher *webhook.Dispatcher
	Limiter    ratelimit.Limiter

	RedTeam         *thinking.RedTeam
	Council         *thinking.Council
	FirstPrinciples *thinking.FirstPrinciples

	DB       *database.Client
	Redis    redis.Cmdable
	LLMProbe func(ctx context.Context) error
}

// Server is the HTTP boundary.
type Server struct {
	deps Deps
}

// NewServer creates the API server.
func NewServer(deps Deps) *Server {
	return &Server{deps: deps}
}

// Router builds the gin engine with the full middleware chain. Health
// endpoints bypass auth and rate limiting.
func (s *Server) Router() *gin.Engine {
	if s.deps.Config.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestIDMiddleware())
	r.Use(securityHeadersMiddleware(s.deps.Config.IsProd()))
	r.Use(corsMiddleware(s.deps.Config.CORSAllowedOrigins))
	r.Use(requestLogMiddleware())

	r.GET("/health/live", s.handleHealthLive)
	r.GET("/health/ready", s.handleHealthReady)
	r.GET("/health", s.handleHealth)

	v1 := r.Group("/api/v1")
	v1.Use(authMiddleware(s.deps.Verifier, s.deps.Users))
	v1.Use(rateLimitMiddleware(s.deps.Limiter))

	v1.POST("/plans", s.handleCreatePlan)
	v1.GET("/plans", s.handleListPlans)
	v1.GET("/plans/:id", s.handleGetPlan)
	v1.POST("/plans/:id/approve", s.handleApprovePlan)
	v1.POST("/plans/:id/reject", s.handleRejectPlan)
	v1.POST("/plans/:id/execute", s.handleExecutePlan)
	v1.DELETE("/plans/:id", s.handleDeletePlan)

	v1.POST("/goals", s.handleCreateGoal)
	v1.GET("/goals", s.handleListGoals)
	v1.POST("/goals/:id/progress", s.handleGoalProgress)
	v1.POST("/goals/:id/status", s.handleGoalStatus)

	v1.POST("/conversations", s.handleCreateConversation)
	v1.GET("/conversations", s.handleListConversations)
	v1.GET("/conversations/:id/messages", s.handleConversationMessages)
	v1.POST("/conversations/:id/messages", s.handleAppendMessage)

	v1.POST("/webhooks", s.handleRegisterWebhook)
	v1.GET("/webhooks", s.handleListWebhooks)
	v1.DELETE("/webhooks/:id", s.handleDisableWebhook)
	v1.POST("/webhooks/:id/test", s.handleTestWebhook)

	v1.POST("/review", s.handleReview)
	v1.GET("/agents/:agent_id/memory", s.handleAgentMemory)
	v1.GET("/audit", s.handleListAudit)

	return r
}
