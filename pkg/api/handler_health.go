package api

import (
	"context"
	"fmt"
	"net/http"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eap-project/eap/pkg/version"
)

const healthCheckTimeout = 5 * time.Second

// minFreeDiskFraction is the readiness floor for local disk space.
const minFreeDiskFraction = 0.05

type componentStatus struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// handleHealthLive reports process liveness only.
func (s *Server) handleHealthLive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version.Full()})
}

// handleHealthReady reports readiness: the database and the LLM proxy
// must both answer.
func (s *Server) handleHealthReady(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	db := s.checkDatabase(ctx)
	llm := s.checkLLMProxy(ctx)

	if db.Error != "" || llm.Error != "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "not ready",
			"database":  db,
			"llm_proxy": llm,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// handleHealth reports per-component status with latency.
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	components := map[string]componentStatus{
		"database":   s.checkDatabase(ctx),
		"redis":      s.checkRedis(ctx),
		"llm_proxy":  s.checkLLMProxy(ctx),
		"disk_space": checkDiskSpace(),
	}

	overall := "healthy"
	status := http.StatusOK
	for _, comp := range components {
		if comp.Error != "" {
			overall = "degraded"
			status = http.StatusServiceUnavailable
			break
		}
	}
	c.JSON(status, gin.H{"status": overall, "components": components})
}

func (s *Server) checkDatabase(ctx context.Context) componentStatus {
	if s.deps.DB == nil {
		return componentStatus{Status: "unavailable", Error: "not configured"}
	}
	started := time.Now()
	_, err := s.deps.DB.Health(ctx)
	return statusFrom(started, err)
}

func (s *Server) checkRedis(ctx context.Context) componentStatus {
	if s.deps.Redis == nil {
		return componentStatus{Status: "unavailable", Error: "not configured"}
	}
	started := time.Now()
	err := s.deps.Redis.Ping(ctx).Err()
	return statusFrom(started, err)
}

func (s *Server) checkLLMProxy(ctx context.Context) componentStatus {
	if s.deps.LLMProbe == nil {
		return componentStatus{Status: "unavailable", Error: "not configured"}
	}
	started := time.Now()
	err := s.deps.LLMProbe(ctx)
	return statusFrom(started, err)
}

func checkDiskSpace() componentStatus {
	started := time.Now()
	var stat syscall.Statfs_t
	if err := syscall.Statfs("/", &stat); err != nil {
		return statusFrom(started, err)
	}
	free := float64(stat.Bavail) / float64(stat.Blocks)
	if free < minFreeDiskFraction {
		return statusFrom(started, fmt.Errorf("only %.1f%% disk space free", free*100))
	}
	return statusFrom(started, nil)
}

func statusFrom(started time.Time, err error) componentStatus {
	status := componentStatus{
		Status:    "healthy",
		LatencyMs: time.Since(started).Milliseconds(),
	}
	if err != nil {
		status.Status = "unhealthy"
		status.Error = err.Error()
	}
	return status
}
