package api

import (
	"Relay/internal/api/middleware"
	"Relay/internal/pkg/logger"
	"net/http"

	"github.com/gin-gonic/gin"
)

func SetupRouter(group *HandlersGroup) *gin.Engine {
	r := gin.New()
	_ = r.SetTrustedProxies([]string{"localhost"})

	// TraceId & Logger & CORS
	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.AuditMiddleware())
	r.Use(middleware.CORSMiddleware())
	logger.SetupGin(r)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"Code":    200,
				"Message": "pong",
				"Data":    nil,
			})
		})

		// WebSocket 入口自带 token 查询参数鉴权
		apiGroup.GET("/ws", group.WSHandler.Connect)

		messageGroup := apiGroup.Group("/messages")
		messageGroup.Use(middleware.AuthMiddleware())
		{
			messageGroup.POST("", group.MessageHandler.SendMessage)
			messageGroup.GET("/:conversationId/history", group.MessageHandler.GetHistory)
			messageGroup.GET("/:conversationId/:messageId/receipts", group.MessageHandler.GetReceipts)
			messageGroup.PUT("/:conversationId/:messageId", group.MessageHandler.EditMessage)
			messageGroup.DELETE("/:conversationId/:messageId", group.MessageHandler.DeleteMessage)
			messageGroup.PUT("/:conversationId/:messageId/reaction", group.MessageHandler.SetReaction)
			messageGroup.DELETE("/:conversationId/:messageId/reaction", group.MessageHandler.RemoveReaction)
		}

		receiptGroup := apiGroup.Group("/receipts")
		receiptGroup.Use(middleware.AuthMiddleware())
		{
			receiptGroup.POST("/delivered", group.MessageHandler.MarkDelivered)
			receiptGroup.POST("/read", group.MessageHandler.MarkRead)
		}

		syncGroup := apiGroup.Group("/sync")
		syncGroup.Use(middleware.AuthMiddleware())
		{
			syncGroup.POST("", group.MessageHandler.Sync)
		}

		presenceGroup := apiGroup.Group("/presence")
		presenceGroup.Use(middleware.AuthMiddleware())
		{
			presenceGroup.GET("/:userId", group.PresenceHandler.GetPresence)
		}
	}

	return r
}
