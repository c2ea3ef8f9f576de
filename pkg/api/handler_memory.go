package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// handleAgentMemory returns the formatted memory context one agent would
// receive, scoped to the caller's tenant. Intended for operators debugging
// agent behavior.
func (s *Server) handleAgentMemory(c *gin.Context) {
	actor := actorFrom(c)

	maxEntries, _ := strconv.Atoi(c.Query("max"))
	if maxEntries <= 0 {
		maxEntries = 10
	}

	context, err := s.deps.Memory.ContextForAgent(c.Request.Context(),
		c.Param("agent_id"), actor.TenantID, c.Query("query"), maxEntries)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agent_id": c.Param("agent_id"), "context": context})
}

func (s *Server) handleListAudit(c *gin.Context) {
	limit, offset := pagination(c)
	entries, err := s.deps.Audit.List(c.Request.Context(), actorFrom(c), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
