package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/salesalert/internal/handlers"
)

func registerNotificationRoutes(api *gin.RouterGroup, handler *handlers.NotificationHandler) {
	group := api.Group("/notifications")
	{
		group.GET("", handler.List)
		group.GET("/stats", handler.Stats)
		group.POST("/read-all", handler.MarkAllRead)
		group.POST("/:id/read", handler.MarkRead)
		group.POST("/:id/dismiss", handler.Dismiss)
	}
}
