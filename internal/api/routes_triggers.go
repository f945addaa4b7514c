package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/salesalert/internal/handlers"
	"github.com/charlesng35/salesalert/internal/middleware"
)

func registerTriggerRoutes(api *gin.RouterGroup, handler *handlers.TriggerHandler, deps Dependencies) {
	api.POST("/triggers", middleware.AuthOrService(deps.JWT, deps.ServiceTokens), handler.Create)
}
