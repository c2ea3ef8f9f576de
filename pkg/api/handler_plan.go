package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type createPlanRequest struct {
	Goal string `json:"goal" binding:"required"`
}

type approvePlanRequest struct {
	MFACode string `json:"mfa_code"`
}

func (s *Server) handleCreatePlan(c *gin.Context) {
	var req createPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Detail: "goal is required"})
		return
	}

	plan, err := s.deps.Plans.CreateDraft(c.Request.Context(), actorFrom(c), req.Goal)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, plan)
}

func (s *Server) handleListPlans(c *gin.Context) {
	limit, offset := pagination(c)
	plans, err := s.deps.Plans.List(c.Request.Context(), actorFrom(c), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plans": plans})
}

func (s *Server) handleGetPlan(c *gin.Context) {
	plan, err := s.deps.Plans.Get(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (s *Server) handleApprovePlan(c *gin.Context) {
	var req approvePlanRequest
	_ = c.ShouldBindJSON(&req) // empty body means empty code; the MFA gate rejects it

	if err := s.deps.Plans.Approve(c.Request.Context(), actorFrom(c), c.Param("id"), req.MFACode); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "approved"})
}

func (s *Server) handleRejectPlan(c *gin.Context) {
	if err := s.deps.Plans.Reject(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "rejected"})
}

func (s *Server) handleExecutePlan(c *gin.Context) {
	plan, err := s.deps.Plans.Execute(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (s *Server) handleDeletePlan(c *gin.Context) {
	if err := s.deps.Plans.Delete(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
