// Package config loads platform configuration from the environment and
// the agent catalog from YAML.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment names. Dev and test relax CORS and allow the symmetric JWT
// verifier; prod refuses both.
const (
	EnvDev  = "dev"
	EnvTest = "test"
	EnvProd = "prod"
)

// Model tiers for routing requests by weight.
const (
	TierLight    = "light"
	TierStandard = "standard"
	TierHeavy    = "heavy"
)

// Config is the frozen startup configuration. It is built once in main
// and passed down; request code never reads the environment.
type Config struct {
	Environment string
	ListenAddr  string

	DatabaseURL string
	RedisURL    string

	LiteLLMBaseURL string
	LiteLLMAPIKey  string

	OIDCIssuerURL string
	OIDCAudience  string
	JWKSLocalPath string
	DevJWTSecret  string

	RateLimitPerMinute int
	RateLimitBurst     int
	TokenBudgetDaily   int64
	TokenBudgetMonthly int64

	MFAEnabled    bool
	MFAStaticCode string

	WebhookTimeout time.Duration
	MemoryTTLDays  int

	ModelLight    string
	ModelStandard string
	ModelHeavy    string

	CORSAllowedOrigins []string
	PublicBaseURL      string

	AgentCatalogPath string
}

// Load reads configuration from the environment. Call godotenv first if a
// .env file should participate.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: envStr("EAP_ENVIRONMENT", EnvDev),
		ListenAddr:  envStr("EAP_LISTEN_ADDR", ":8080"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    envStr("REDIS_URL", "redis://localhost:6379/0"),

		LiteLLMBaseURL: envStr("LITELLM_BASE_URL", "http://localhost:4000"),
		LiteLLMAPIKey:  os.Getenv("LITELLM_API_KEY"),

		OIDCIssuerURL: os.Getenv("OIDC_ISSUER_URL"),
		OIDCAudience:  envStr("OIDC_AUDIENCE", "eap-platform"),
		JWKSLocalPath: os.Getenv("JWKS_LOCAL_PATH"),
		DevJWTSecret:  os.Getenv("DEV_JWT_SECRET"),

		RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 60),
		RateLimitBurst:     envInt("RATE_LIMIT_BURST", 10),
		TokenBudgetDaily:   envInt64("TOKEN_BUDGET_DAILY", 1_000_000),
		TokenBudgetMonthly: envInt64("TOKEN_BUDGET_MONTHLY", 20_000_000),

		MFAEnabled:    envBool("MFA_ENABLED", false),
		MFAStaticCode: os.Getenv("MFA_STATIC_CODE"),

		WebhookTimeout: envDuration("WEBHOOK_TIMEOUT", 10*time.Second),
		MemoryTTLDays:  envInt("MEMORY_TTL_DAYS", 90),

		ModelLight:    envStr("MODEL_LIGHT", "gpt-4o-mini"),
		ModelStandard: envStr("MODEL_STANDARD", "gpt-4o"),
		ModelHeavy:    envStr("MODEL_HEAVY", "o1"),

		CORSAllowedOrigins: envList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		PublicBaseURL:      os.Getenv("PUBLIC_BASE_URL"),

		AgentCatalogPath: envStr("AGENT_CATALOG_PATH", "config/agents.yaml"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the environment contract. Prod refuses defaults that
// are only acceptable on a laptop.
func (c *Config) Validate() error {
	switch c.Environment {
	case EnvDev, EnvTest, EnvProd:
	default:
		return fmt.Errorf("unknown environment %q", c.Environment)
	}

	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}

	if c.Environment == EnvProd {
		if c.DevJWTSecret != "" {
			return fmt.Errorf("DEV_JWT_SECRET must not be set in prod")
		}
		if c.OIDCIssuerURL == "" && c.JWKSLocalPath == "" {
			return fmt.Errorf("prod requires OIDC_ISSUER_URL or JWKS_LOCAL_PATH")
		}
		for _, origin := range c.CORSAllowedOrigins {
			if origin == "*" {
				return fmt.Errorf("wildcard CORS origin is not allowed in prod")
			}
		}
		if c.MFAEnabled && c.MFAStaticCode == "" {
			return fmt.Errorf("MFA_ENABLED requires MFA_STATIC_CODE")
		}
	} else if c.OIDCIssuerURL == "" && c.JWKSLocalPath == "" && c.DevJWTSecret == "" {
		return fmt.Errorf("no token verifier configured; set DEV_JWT_SECRET, OIDC_ISSUER_URL, or JWKS_LOCAL_PATH")
	}

	return nil
}

// IsProd reports whether this is a production deployment.
func (c *Config) IsProd() bool { return c.Environment == EnvProd }

// ModelForTier maps a routing tier to its configured model identifier.
// Unknown tiers route to the standard model.
func (c *Config) ModelForTier(tier string) string {
	switch tier {
	case TierLight:
		return c.ModelLight
	case TierHeavy:
		return c.ModelHeavy
	default:
		return c.ModelStandard
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
