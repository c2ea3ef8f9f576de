package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/eap-project/eap/pkg/models"
)

type createGoalRequest struct {
	GoalText string `json:"goal_text" binding:"required"`
}

type goalProgressRequest struct {
	Note string `json:"note" binding:"required"`
}

type goalStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (s *Server) handleCreateGoal(c *gin.Context) {
	var req createGoalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Detail: "goal_text is required"})
		return
	}

	goal, err := s.deps.Goals.Create(c.Request.Context(), actorFrom(c), req.GoalText)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, goal)
}

func (s *Server) handleListGoals(c *gin.Context) {
	goals, err := s.deps.Goals.ListMine(c.Request.Context(), actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"goals": goals})
}

func (s *Server) handleGoalProgress(c *gin.Context) {
	var req goalProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Detail: "note is required"})
		return
	}

	if err := s.deps.Goals.AppendProgress(c.Request.Context(), actorFrom(c), c.Param("id"), req.Note); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleGoalStatus(c *gin.Context) {
	var req goalStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Detail: "status is required"})
		return
	}

	if err := s.deps.Goals.Transition(c.Request.Context(), actorFrom(c), c.Param("id"), models.GoalStatus(req.Status)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": req.Status})
}

// pagination reads limit/offset query params; services clamp the range.
func pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.Query("limit"))
	offset, _ = strconv.Atoi(c.Query("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
