package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eap-project/eap/pkg/llm"
	"github.com/eap-project/eap/pkg/policy"
	"github.com/eap-project/eap/pkg/services"
)

// errorResponse is the only error body shape: a short human detail, no
// stack traces, no internal identifiers.
type errorResponse struct {
	Detail string `json:"detail"`
}

// respondError maps service-layer errors to HTTP statuses and writes the
// response. Cross-tenant refusals arrive here as policy.ErrNotFound and
// stay indistinguishable from genuine not-found.
func respondError(c *gin.Context, err error) {
	var validErr *services.ValidationError
	switch {
	case errors.As(err, &validErr):
		c.JSON(http.StatusBadRequest, errorResponse{Detail: validErr.Error()})
	case errors.Is(err, services.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse{Detail: err.Error()})
	case errors.Is(err, services.ErrMFARequired):
		c.JSON(http.StatusForbidden, errorResponse{Detail: "valid mfa code required"})
	case errors.Is(err, policy.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, errorResponse{Detail: "insufficient permissions"})
	case errors.Is(err, policy.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Detail: "resource not found"})
	case errors.Is(err, services.ErrAlreadyExists):
		c.JSON(http.StatusConflict, errorResponse{Detail: "resource already exists"})
	case errors.Is(err, services.ErrInvalidTransition):
		c.JSON(http.StatusConflict, errorResponse{Detail: err.Error()})
	default:
		respondUpstreamOrInternal(c, err)
	}
}

func respondUpstreamOrInternal(c *gin.Context, err error) {
	var unavailable *llm.UnavailableError
	if errors.As(err, &unavailable) {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Detail: "upstream model service unavailable"})
		return
	}
	var rateLimited *llm.RateLimitError
	var llmErr *llm.Error
	if errors.As(err, &rateLimited) || errors.As(err, &llmErr) {
		c.JSON(http.StatusBadGateway, errorResponse{Detail: "upstream model request failed"})
		return
	}

	slog.Error("Unhandled service error",
		"error", err, "path", c.Request.URL.Path, "request_id", c.GetString(ctxRequestID))
	c.JSON(http.StatusInternalServerError, errorResponse{Detail: "internal server error"})
}
