package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/salesalert/internal/handlers"
	"github.com/charlesng35/salesalert/internal/middleware"
)

func registerRuleRoutes(api *gin.RouterGroup, handler *handlers.RuleHandler, deps Dependencies) {
	group := api.Group("/rules")
	{
		group.GET("", middleware.AuthOrService(deps.JWT, deps.ServiceTokens), handler.List)
		group.GET("/:id", middleware.AuthOrService(deps.JWT, deps.ServiceTokens), handler.Get)

		admin := adminOnly(deps)
		group.POST("", append(admin, handler.Create)...)
		group.PATCH("/:id/active", append(admin, handler.SetActive)...)
		group.DELETE("/:id", append(admin, handler.Delete)...)
	}
}
