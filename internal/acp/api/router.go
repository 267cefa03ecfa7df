package api

import (
	"github.com/gin-gonic/gin"

	"github.com/kandev/acpd/internal/acp"
	"github.com/kandev/acpd/internal/acp/streaming"
	"github.com/kandev/acpd/internal/common/logger"
)

// SetupRoutes configures the ACP API routes.
// router should be the /api/v1 group.
func SetupRoutes(router *gin.RouterGroup, manager *acp.Manager, hub *streaming.Hub, log *logger.Logger) {
	handler := NewHandler(manager, hub, log)

	group := router.Group("/acp")
	{
		group.GET("/agents", handler.ListAgents)

		sessions := group.Group("/sessions")
		{
			sessions.POST("", handler.CreateSession)
			sessions.GET("", handler.ListSessions)
			sessions.POST("/:sessionId/prompt", handler.Prompt)
			sessions.DELETE("/:sessionId", handler.EndSession)
			sessions.GET("/:sessionId/stream", handler.StreamSession)
		}

		chats := group.Group("/chats")
		{
			chats.POST("/:chatId/bind", handler.BindChat)
			chats.GET("/:chatId", handler.GetChatSession)
			chats.DELETE("/:chatId", handler.EndChatSession)
		}
	}
}
