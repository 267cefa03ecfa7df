// Package api exposes the ACP session manager over HTTP.
package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kandev/acpd/internal/acp"
	"github.com/kandev/acpd/internal/acp/streaming"
	"github.com/kandev/acpd/internal/common/errors"
	"github.com/kandev/acpd/internal/common/logger"
)

// Handler contains the HTTP handlers for the ACP API
type Handler struct {
	manager *acp.Manager
	hub     *streaming.Hub
	logger  *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(manager *acp.Manager, hub *streaming.Hub, log *logger.Logger) *Handler {
	return &Handler{
		manager: manager,
		hub:     hub,
		logger:  log.WithFields(zap.String("component", "acp-api")),
	}
}

// toAppError maps an ACP error to an HTTP-facing application error.
func toAppError(err error) *errors.AppError {
	switch acp.KindOf(err) {
	case acp.KindUnknownAgent:
		return errors.BadRequest(err.Error())
	case acp.KindNotFound:
		return &errors.AppError{
			Code:       errors.ErrCodeNotFound,
			Message:    err.Error(),
			HTTPStatus: http.StatusNotFound,
		}
	case acp.KindSessionEnded, acp.KindNoAgentSession:
		return errors.Conflict(err.Error())
	case acp.KindTimeout:
		return errors.GatewayTimeout(err.Error())
	case acp.KindSpawn, acp.KindHandshake, acp.KindIO, acp.KindConnectionClosed, acp.KindAgent:
		return errors.BadGateway(err.Error(), err)
	default:
		return errors.InternalError("ACP operation failed", err)
	}
}

// ListAgents returns the configured agent names
// GET /api/v1/acp/agents
func (h *Handler) ListAgents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"agents": h.manager.AvailableAgents()})
}

// CreateSession spawns an agent and registers a session
// POST /api/v1/acp/sessions
func (h *Handler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest("invalid request body: " + err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	info, err := h.manager.NewSession(c.Request.Context(), req.Agent, req.Workspace, req.AutoApprove)
	if err != nil {
		h.logger.Error("failed to create session", zap.String("agent", req.Agent), zap.Error(err))
		appErr := toAppError(err)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusCreated, info)
}

// ListSessions returns all registered sessions
// GET /api/v1/acp/sessions
func (h *Handler) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": h.manager.ListSessions()})
}

// Prompt sends a task to a session and waits for the aggregated result
// POST /api/v1/acp/sessions/:sessionId/prompt
func (h *Handler) Prompt(c *gin.Context) {
	sessionID := c.Param("sessionId")

	var req PromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest("invalid request body: " + err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	result, err := h.manager.Prompt(c.Request.Context(), sessionID, req.Message, req.TimeoutSecs)
	if err != nil {
		h.logger.Error("prompt failed", zap.String("session_id", sessionID), zap.Error(err))
		appErr := toAppError(err)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusOK, result)
}

// EndSession terminates a session and its subprocess
// DELETE /api/v1/acp/sessions/:sessionId
func (h *Handler) EndSession(c *gin.Context) {
	sessionID := c.Param("sessionId")

	if err := h.manager.EndSession(sessionID); err != nil {
		appErr := toAppError(err)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ended", "session_id": sessionID})
}

// StreamSession upgrades to a WebSocket subscribed to the session's updates
// GET /api/v1/acp/sessions/:sessionId/stream
func (h *Handler) StreamSession(c *gin.Context) {
	sessionID := c.Param("sessionId")

	if err := h.hub.ServeWS(c.Writer, c.Request, sessionID); err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
	}
}

// BindChat binds a chat id to a session
// POST /api/v1/acp/chats/:chatId/bind
func (h *Handler) BindChat(c *gin.Context) {
	chatID, err := strconv.ParseInt(c.Param("chatId"), 10, 64)
	if err != nil {
		appErr := errors.BadRequest("chatId must be an integer")
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	var req BindChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest("invalid request body: " + err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	h.manager.BindChat(chatID, req.SessionID)
	c.JSON(http.StatusOK, gin.H{"chat_id": chatID, "session_id": req.SessionID})
}

// GetChatSession returns the session bound to a chat
// GET /api/v1/acp/chats/:chatId
func (h *Handler) GetChatSession(c *gin.Context) {
	chatID, err := strconv.ParseInt(c.Param("chatId"), 10, 64)
	if err != nil {
		appErr := errors.BadRequest("chatId must be an integer")
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	sessionID, ok := h.manager.ChatSession(chatID)
	if !ok {
		appErr := errors.NotFound("chat binding", c.Param("chatId"))
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusOK, gin.H{"chat_id": chatID, "session_id": sessionID})
}

// EndChatSession ends the session bound to a chat and unbinds it
// DELETE /api/v1/acp/chats/:chatId
func (h *Handler) EndChatSession(c *gin.Context) {
	chatID, err := strconv.ParseInt(c.Param("chatId"), 10, 64)
	if err != nil {
		appErr := errors.BadRequest("chatId must be an integer")
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	if err := h.manager.EndChatSession(chatID); err != nil {
		appErr := toAppError(err)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ended", "chat_id": chatID})
}
