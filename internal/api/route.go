package api

import (
	"Murmur/internal/api/middleware"
	"Murmur/internal/pkg/logger"
	"Murmur/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

func SetupRouter(group *HandlersGroup) *gin.Engine {
	r := gin.New()
	_ = r.SetTrustedProxies([]string{"localhost"})

	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.AuditMiddleware())
	logger.SetupGin(r)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/ping", func(c *gin.Context) {
			response.Success(c, "pong")
		})

		// 握手自行鉴权，失败时在升级前返回 401
		apiGroup.GET("/im/ws", group.WsHandler.Connect)

		authGroup := apiGroup.Group("")
		authGroup.Use(middleware.AuthMiddleware(group.Gate))
		{
			authGroup.POST("/auth/logout", group.AuthHandler.Logout)
		}

		imGroup := authGroup.Group("/im")
		{
			imGroup.GET("/conversations", group.IMHandler.ListConversations)
			imGroup.POST("/conversations", group.IMHandler.CreateConversation)
			imGroup.GET("/conversations/:conversation_id", group.IMHandler.GetConversation)
			imGroup.PATCH("/conversations/:conversation_id", group.IMHandler.RenameConversation)
			imGroup.GET("/conversations/:conversation_id/messages", group.IMHandler.GetHistory)
			imGroup.POST("/conversations/:conversation_id/messages", group.IMHandler.SendMessage)
			imGroup.POST("/conversations/:conversation_id/read", group.IMHandler.MarkAsRead)
			imGroup.PUT("/conversations/:conversation_id/settings", group.IMHandler.UpdateSettings)
			imGroup.POST("/conversations/:conversation_id/members", group.IMHandler.AddMember)
			imGroup.DELETE("/conversations/:conversation_id/members/:user_id", group.IMHandler.RemoveMember)
			imGroup.PUT("/conversations/:conversation_id/members/:user_id/role", group.IMHandler.UpdateRole)
			imGroup.PUT("/messages/:message_id", group.IMHandler.EditMessage)
			imGroup.DELETE("/messages/:message_id", group.IMHandler.DeleteMessage)
			imGroup.POST("/messages/:message_id/reactions", group.IMHandler.AddReaction)
			imGroup.DELETE("/messages/:message_id/reactions/:emoji", group.IMHandler.RemoveReaction)
			imGroup.GET("/unread", group.IMHandler.SyncUnread)
			imGroup.GET("/presence/:user_id", group.IMHandler.GetPresence)
		}
	}

	return r
}
