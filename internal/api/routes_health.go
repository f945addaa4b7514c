package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/salesalert/internal/app"
	"github.com/charlesng35/salesalert/internal/handlers"
	"github.com/charlesng35/salesalert/internal/monitoring"
)

func registerHealthRoutes(r *gin.Engine, cfg *app.Config, mon *monitoring.Module) {
	if !cfg.Monitoring.Health.Enabled || mon == nil || mon.Health() == nil {
		r.GET("/health", handlers.Health())
		r.GET("/health/live", disabledHealthHandler)
		r.GET("/health/ready", disabledHealthHandler)
		return
	}

	manager := mon.Health()
	r.GET("/health", handlers.HealthReport(manager, true, false))
	r.GET("/health/live", handlers.HealthReport(manager, false, true))
	r.GET("/health/ready", handlers.HealthReport(manager, true, true))
}

func disabledHealthHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"success": false,
		"status":  "disabled",
	})
}
