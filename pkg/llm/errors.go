package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Error is the generic LLM failure. RateLimitError and UnavailableError
// refine it for the transient categories the client retries.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("llm error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("llm error: %s", e.Message)
}

// RateLimitError indicates the upstream proxy rejected the call with a
// rate-limit response. Retryable.
type RateLimitError struct {
	Message string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("llm rate limited: %s", e.Message)
}

// UnavailableError indicates the upstream proxy is unreachable or
// returned a service-unavailable class response. Retryable.
type UnavailableError struct {
	Message string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("llm unavailable: %s", e.Message)
}

// classifyHTTPStatus maps a non-2xx proxy response to a typed error.
func classifyHTTPStatus(status int, body string) error {
	switch {
	case status == http.StatusTooManyRequests:
		return &RateLimitError{Message: body}
	case status == http.StatusServiceUnavailable,
		status == http.StatusBadGateway,
		status == http.StatusGatewayTimeout:
		return &UnavailableError{Message: body}
	default:
		return &Error{StatusCode: status, Message: body}
	}
}

// classifyTransport maps a transport-level failure to a typed error.
// Timeouts and connection errors count as unavailable (retryable).
func classifyTransport(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &UnavailableError{Message: "request timed out: " + err.Error()}
	}
	return &UnavailableError{Message: err.Error()}
}

// IsTransient reports whether the error belongs to a retryable category:
// rate-limit, service-unavailable, timeout or connection failure.
func IsTransient(err error) bool {
	var rl *RateLimitError
	var un *UnavailableError
	return errors.As(err, &rl) || errors.As(err, &un)
}
