package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eap-project/eap/pkg/policy"
	"github.com/eap-project/eap/pkg/thinking"
)

type reviewRequest struct {
	Draft     string   `json:"draft" binding:"required"`
	Sources   []string `json:"sources"`
	Clearance string   `json:"clearance"`

	// Tools selects the analyses to run; default is red_team only.
	Tools []string `json:"tools"`

	// Question drives council and first_principles; defaults to the draft.
	Question string `json:"question"`
}

type reviewResponse struct {
	RequiresHumanReview bool     `json:"requires_human_review"`
	AdjustedConfidence  float64  `json:"adjusted_confidence"`
	ReviewReasons       []string `json:"review_reasons,omitempty"`

	RedTeam         *thinking.RedTeamResult         `json:"red_team,omitempty"`
	Council         *thinking.CouncilResult         `json:"council,omitempty"`
	FirstPrinciples *thinking.FirstPrinciplesResult `json:"first_principles,omitempty"`
}

// handleReview runs the requested thinking tools against a draft response
// and reports the aggregate review decision.
func (s *Server) handleReview(c *gin.Context) {
	actor := actorFrom(c)
	if err := policy.CheckPermission(actor.Role, policy.PermPlanCreate); err != nil {
		respondError(c, err)
		return
	}

	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Detail: "draft is required"})
		return
	}

	tools := req.Tools
	if len(tools) == 0 {
		tools = []string{"red_team"}
	}
	question := req.Question
	if question == "" {
		question = req.Draft
	}

	var output thinking.Output
	for _, tool := range tools {
		switch tool {
		case "red_team":
			result, err := s.deps.RedTeam.Analyze(c.Request.Context(), thinking.RedTeamInput{
				Draft:     req.Draft,
				Sources:   req.Sources,
				Clearance: req.Clearance,
			})
			if err != nil {
				respondError(c, err)
				return
			}
			output.RedTeam = result
		case "council":
			result, err := s.deps.Council.Deliberate(c.Request.Context(), question)
			if err != nil {
				respondError(c, err)
				return
			}
			output.Council = result
		case "first_principles":
			result, err := s.deps.FirstPrinciples.Analyze(c.Request.Context(), question)
			if err != nil {
				respondError(c, err)
				return
			}
			output.FirstPrinciples = result
		default:
			c.JSON(http.StatusBadRequest, errorResponse{Detail: "unknown tool: " + tool})
			return
		}
	}

	c.JSON(http.StatusOK, reviewResponse{
		RequiresHumanReview: output.RequiresHumanReview(),
		AdjustedConfidence:  output.AdjustedConfidence(),
		ReviewReasons:       output.ReviewReasons(),
		RedTeam:             output.RedTeam,
		Council:             output.Council,
		FirstPrinciples:     output.FirstPrinciples,
	})
}
