package api

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eap-project/eap/pkg/auth"
	"github.com/eap-project/eap/pkg/ratelimit"
	"github.com/eap-project/eap/pkg/services"
)

// Gin context keys.
const (
	ctxRequestID = "request_id"
	ctxActor     = "actor"
)

// requestIDMiddleware tags every request with a req_<16 hex> correlation
// id, echoed in the X-Request-ID response header.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		var buf [8]byte
		if _, err := rand.Read(buf[:]); err != nil {
			// Degrade to a time-derived id rather than failing the request.
			id := fmt.Sprintf("req_%016x", time.Now().UnixNano())
			c.Set(ctxRequestID, id)
			c.Header("X-Request-ID", id)
			c.Next()
			return
		}
		id := "req_" + hex.EncodeToString(buf[:])
		c.Set(ctxRequestID, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// securityHeadersMiddleware sets the standard security response headers.
// HSTS only makes sense behind TLS, so it is prod-only.
func securityHeadersMiddleware(prod bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		if prod {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}

// corsMiddleware handles cross-origin requests against the configured
// origin allowlist.
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowAll := false
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowAll || allowed[origin]) {
			h := c.Writer.Header()
			if allowAll {
				h.Set("Access-Control-Allow-Origin", "*")
			} else {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Vary", "Origin")
			}
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// requestLogMiddleware emits one structured line per request.
func requestLogMiddleware() gin.HandlerFunc {
	logger := slog.With("component", "http")
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		logger.Info("Request handled",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(started).Milliseconds(),
			"request_id", c.GetString(ctxRequestID))
	}
}

// authMiddleware verifies the bearer token and resolves the principal,
// provisioning first-time users. The 401 body never says why the token
// was refused.
func authMiddleware(verifier auth.TokenVerifier, users *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			unauthorized(c)
			return
		}

		claims, err := verifier.Verify(c.Request.Context(), raw)
		if err != nil {
			unauthorized(c)
			return
		}

		user, err := users.Resolve(c.Request.Context(), claims.TenantID, claims.Subject, claims.Email)
		if err != nil {
			unauthorized(c)
			return
		}

		c.Set(ctxActor, services.Actor{
			TenantID: user.TenantID,
			UserID:   user.ID,
			Role:     user.Role,
		})
		c.Next()
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return ""
}

func unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Detail: "invalid or expired token"})
}

// actorFrom returns the authenticated actor set by authMiddleware.
func actorFrom(c *gin.Context) services.Actor {
	actor, _ := c.Get(ctxActor)
	a, _ := actor.(services.Actor)
	return a
}

// rateLimitMiddleware enforces the per-user sliding window and stamps the
// X-RateLimit-* headers on every authenticated response.
func rateLimitMiddleware(limiter ratelimit.Limiter) gin.HandlerFunc {
	logger := slog.With("component", "ratelimit")
	return func(c *gin.Context) {
		actor := actorFrom(c)
		result, err := limiter.Check(c.Request.Context(), actor.TenantID, actor.UserID)
		if err != nil {
			// The limiter degrades internally; a hard error here means even
			// the fallback failed. Admit rather than block the platform.
			logger.Warn("Rate limit check failed open", "error", err)
			c.Next()
			return
		}

		h := c.Writer.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(result.Reset.Unix(), 10))

		if !result.Allowed {
			h.Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Detail: "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
