package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type createConversationRequest struct {
	Title string `json:"title"`
}

type appendMessageRequest struct {
	Role    string `json:"role" binding:"required"`
	Content string `json:"content" binding:"required"`
}

func (s *Server) handleCreateConversation(c *gin.Context) {
	var req createConversationRequest
	_ = c.ShouldBindJSON(&req)

	conv, err := s.deps.Conversations.Create(c.Request.Context(), actorFrom(c), req.Title)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func (s *Server) handleListConversations(c *gin.Context) {
	limit, offset := pagination(c)
	convs, err := s.deps.Conversations.List(c.Request.Context(), actorFrom(c), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

func (s *Server) handleConversationMessages(c *gin.Context) {
	messages, err := s.deps.Conversations.Messages(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (s *Server) handleAppendMessage(c *gin.Context) {
	var req appendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Detail: "role and content are required"})
		return
	}

	msg, err := s.deps.Conversations.Append(c.Request.Context(), actorFrom(c), c.Param("id"), req.Role, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}
