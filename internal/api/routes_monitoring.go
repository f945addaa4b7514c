package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/salesalert/internal/handlers"
)

func registerMonitoringRoutes(api *gin.RouterGroup, handler *handlers.MonitoringHandler, deps Dependencies) {
	if api == nil || handler == nil {
		return
	}

	group := api.Group("/monitoring")
	group.GET("/summary", append(adminOnly(deps), handler.Summary)...)
}
