package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/salesalert/internal/monitoring"
	"github.com/charlesng35/salesalert/pkg/response"
)

// Health returns a simple status payload useful when health checks are disabled.
func Health() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	}
}

// HealthReport evaluates the manager's readiness or liveness checks.
func HealthReport(manager *monitoring.HealthManager, readiness, detailed bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var report monitoring.HealthReport
		if readiness {
			report = manager.EvaluateReadiness(requestContext(c))
		} else {
			report = manager.EvaluateLiveness(requestContext(c))
		}

		status := http.StatusOK
		if !report.Success {
			status = http.StatusServiceUnavailable
		}
		body := gin.H{
			"success":    report.Success,
			"status":     report.Status,
			"checked_at": time.Now().UTC(),
		}
		if detailed {
			body["checks"] = report.Checks
		}
		c.JSON(status, body)
	}
}
