// EAP server entry point: configuration, storage, auth, services, and the
// HTTP boundary, wired together with graceful shutdown.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/eap-project/eap/pkg/agent"
	"github.com/eap-project/eap/pkg/api"
	"github.com/eap-project/eap/pkg/auth"
	"github.com/eap-project/eap/pkg/config"
	"github.com/eap-project/eap/pkg/database"
	"github.com/eap-project/eap/pkg/executor"
	"github.com/eap-project/eap/pkg/llm"
	"github.com/eap-project/eap/pkg/memory"
	"github.com/eap-project/eap/pkg/planner"
	"github.com/eap-project/eap/pkg/ratelimit"
	"github.com/eap-project/eap/pkg/services"
	"github.com/eap-project/eap/pkg/store"
	"github.com/eap-project/eap/pkg/thinking"
	"github.com/eap-project/eap/pkg/version"
	"github.com/eap-project/eap/pkg/webhook"
)

const (
	shutdownTimeout     = 15 * time.Second
	memoryCleanupPeriod = 24 * time.Hour
	llmProbeTimeout     = 5 * time.Second
)

func main() {
	// 1. Environment file, if present. Real deployments set variables
	// directly; the file is a dev convenience.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	// 2. Configuration, frozen for the life of the process.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg)
	slog.Info("Starting EAP server",
		"version", version.Full(), "environment", cfg.Environment, "addr", cfg.ListenAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. PostgreSQL with embedded migrations.
	dbCfg, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Invalid database configuration", "error", err)
		os.Exit(1)
	}
	db, err := database.NewClient(ctx, dbCfg)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("Failed to close database", "error", err)
		}
	}()
	st := store.New(db.DB())

	// 4. Redis-backed rate limiting, falling back to a per-process window
	// when Redis is unconfigured or unreachable.
	rlCfg := ratelimit.Config{RPM: cfg.RateLimitPerMinute, Burst: cfg.RateLimitBurst}
	var limiter ratelimit.Limiter
	var rdb redis.Cmdable
	if opt, err := redis.ParseURL(cfg.RedisURL); err != nil {
		slog.Warn("Invalid REDIS_URL, rate limiting is per-process", "error", err)
		limiter = ratelimit.NewMemoryLimiter(rlCfg)
	} else {
		client := redis.NewClient(opt)
		defer client.Close() //nolint:errcheck
		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		if err := client.Ping(pingCtx).Err(); err != nil {
			slog.Warn("Redis unreachable at startup, limiter will degrade until it recovers", "error", err)
		}
		pingCancel()
		rdb = client
		limiter = ratelimit.NewRedisLimiter(client, rlCfg)
	}

	// 5. LLM proxy client and the thinking tools built on it.
	llmClient := llm.NewProxyClient(cfg.LiteLLMBaseURL, cfg.LiteLLMAPIKey,
		llm.WithDefaultModel(cfg.ModelStandard))
	redTeam := thinking.NewRedTeam(llmClient)
	council := thinking.NewCouncil(llmClient)
	firstPrinciples := thinking.NewFirstPrinciples(llmClient)

	// 6. Agent catalog and registry.
	specs, err := config.LoadAgentCatalog(cfg.AgentCatalogPath)
	if err != nil {
		slog.Error("Failed to load agent catalog", "path", cfg.AgentCatalogPath, "error", err)
		os.Exit(1)
	}
	registry, err := agent.NewRegistry(specs, agent.NewSpecialist)
	if err != nil {
		slog.Error("Failed to build agent registry", "error", err)
		os.Exit(1)
	}
	slog.Info("Agent catalog loaded", "agents", len(specs))

	// 7. Webhook delivery engine. The dispatcher handles the immediate
	// attempt on publish; the worker drains scheduled retries.
	dispatcher := webhook.NewDispatcher(st.Webhooks, &http.Client{Timeout: cfg.WebhookTimeout})
	retryWorker := webhook.NewRetryWorker(st.Webhooks, dispatcher)
	go retryWorker.Run(ctx)

	// 8. Agent memory with scheduled TTL cleanup.
	memSvc := memory.NewService(st.Memories, llmClient)
	go runMemoryCleanup(ctx, memSvc, cfg.MemoryTTLDays)

	// 9. Domain services.
	auditSvc := services.NewAuditService(st.Audit)
	userSvc := services.NewUserService(st.Users, st.Tenants, auditSvc, dispatcher)
	goalSvc := services.NewGoalService(st.Goals)
	convSvc := services.NewConversationService(st.Conversations)
	planSvc := services.NewPlanService(
		st.Plans,
		planner.New(llmClient, registry, goalSvc),
		executor.New(llmClient, registry, memSvc),
		auditSvc,
		dispatcher,
		services.MFAConfig{Enabled: cfg.MFAEnabled, StaticCode: cfg.MFAStaticCode},
	)

	// 10. Token verifier per environment contract.
	verifier, err := buildVerifier(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize token verifier", "error", err)
		os.Exit(1)
	}

	// 11. HTTP server.
	server := api.NewServer(api.Deps{
		Config:          cfg,
		Verifier:        verifier,
		Users:           userSvc,
		Plans:           planSvc,
		Goals:           goalSvc,
		Conversations:   convSvc,
		Audit:           auditSvc,
		Memory:          memSvc,
		Webhooks:        st.Webhooks,
		Dispatcher:      dispatcher,
		Limiter:         limiter,
		RedTeam:         redTeam,
		Council:         council,
		FirstPrinciples: firstPrinciples,
		DB:              db,
		Redis:           rdb,
		LLMProbe:        llmProbe(cfg.LiteLLMBaseURL),
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// 12. Block until a shutdown signal or a server failure.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		slog.Error("HTTP server failed", "error", err)
	}

	// 13. Graceful shutdown: stop accepting requests, then stop the
	// background workers via the shared context.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown failed", "error", err)
	}
	cancel()
	slog.Info("Server stopped")
}

// setupLogging installs the process-wide logger: JSON in prod, text
// elsewhere.
func setupLogging(cfg *config.Config) {
	var handler slog.Handler
	if cfg.IsProd() {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	slog.SetDefault(slog.New(handler))
}

// buildVerifier picks the token verifier. OIDC discovery wins when an
// issuer is configured; a local JWKS file covers air-gapped deployments;
// the symmetric dev verifier is last and is refused in prod by
// config.Validate.
func buildVerifier(ctx context.Context, cfg *config.Config) (auth.TokenVerifier, error) {
	switch {
	case cfg.OIDCIssuerURL != "":
		return auth.NewOIDCVerifier(ctx, cfg.OIDCIssuerURL, cfg.OIDCAudience)
	case cfg.JWKSLocalPath != "":
		return auth.NewLocalJWKSVerifier(cfg.JWKSLocalPath, cfg.OIDCAudience)
	case cfg.DevJWTSecret != "":
		slog.Warn("Using symmetric dev token verifier")
		return auth.NewDevVerifier(cfg.DevJWTSecret, cfg.OIDCAudience), nil
	default:
		return nil, fmt.Errorf("no token verifier configured")
	}
}

// llmProbe returns the readiness probe for the LiteLLM proxy.
func llmProbe(baseURL string) func(ctx context.Context) error {
	client := &http.Client{Timeout: llmProbeTimeout}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health/liveliness", nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close() //nolint:errcheck
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("llm proxy returned status %d", resp.StatusCode)
		}
		return nil
	}
}

// runMemoryCleanup expires agent memories past their retention window on a
// daily cadence.
func runMemoryCleanup(ctx context.Context, svc *memory.Service, ttlDays int) {
	ticker := time.NewTicker(memoryCleanupPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.Cleanup(ctx, ttlDays)
			if err != nil {
				slog.Error("Memory cleanup failed", "error", err)
			} else if n > 0 {
				slog.Info("Expired agent memories removed", "count", n)
			}
		}
	}
}
