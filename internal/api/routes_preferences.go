package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/salesalert/internal/handlers"
	"github.com/charlesng35/salesalert/internal/middleware"
)

func registerPreferenceRoutes(authed *gin.RouterGroup, handler *handlers.PreferenceHandler, deps Dependencies) {
	group := authed.Group("/preferences")
	{
		group.GET("", handler.Get)
		group.PATCH("", handler.Update)
		group.GET("/global", middleware.RequireAdmin(), handler.GetGlobal)
		group.PATCH("/global", middleware.RequireAdmin(), handler.UpdateGlobal)
	}
}
