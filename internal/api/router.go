package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/salesalert/internal/alerting"
	"github.com/charlesng35/salesalert/internal/app"
	iauth "github.com/charlesng35/salesalert/internal/auth"
	"github.com/charlesng35/salesalert/internal/cache"
	"github.com/charlesng35/salesalert/internal/handlers"
	"github.com/charlesng35/salesalert/internal/middleware"
	"github.com/charlesng35/salesalert/internal/monitoring"
	"github.com/charlesng35/salesalert/internal/realtime"
)

// Dependencies are the collaborators the HTTP surface is built from.
type Dependencies struct {
	Config        *app.Config
	Engine        *alerting.Engine
	JWT           *iauth.JWTService
	ServiceTokens *iauth.ServiceTokens
	Hub           *realtime.Hub
	// Cache backs idempotency keys and API rate limits. Nil disables both.
	Cache      cache.Store
	Monitoring *monitoring.Module
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("alerting engine must be provided")
	}
	if deps.JWT == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	cfg := deps.Config

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	if cfg.Monitoring.Prometheus.Enabled {
		r.Use(middleware.Metrics())
	}
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORSOrigins...))
	if limit := cfg.Server.RateLimit; limit.Enabled && deps.Cache != nil {
		window := limit.Window
		if window <= 0 {
			window = time.Minute
		}
		r.Use(middleware.RateLimit(deps.Cache, limit.Requests, window))
	}

	registerHealthRoutes(r, cfg, deps.Monitoring)

	if cfg.Monitoring.Prometheus.Enabled && deps.Monitoring != nil {
		endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(deps.Monitoring.Handler()))
	}

	if deps.Hub != nil {
		realtimeHandler := handlers.NewRealtimeHandler(deps.Hub, deps.JWT, realtime.DefaultStreams()...)
		r.GET("/ws", realtimeHandler.Stream)
		r.GET("/ws/:stream", realtimeHandler.Stream)
	}

	v1 := r.Group("/api/v1")

	var claims cache.Claimer
	if deps.Cache != nil {
		claims = deps.Cache
	}
	registerTriggerRoutes(v1, handlers.NewTriggerHandler(deps.Engine, claims, cfg.Kafka.IdempotencyTTL), deps)

	authed := v1.Group("")
	authed.Use(middleware.Auth(deps.JWT))
	registerNotificationRoutes(authed, handlers.NewNotificationHandler(deps.Engine))
	registerPreferenceRoutes(authed, handlers.NewPreferenceHandler(deps.Engine), deps)
	registerRuleRoutes(v1, handlers.NewRuleHandler(deps.Engine), deps)
	registerMonitoringRoutes(v1, handlers.NewMonitoringHandler(deps.Monitoring, cfg), deps)

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

func adminOnly(deps Dependencies) []gin.HandlerFunc {
	return []gin.HandlerFunc{
		middleware.AuthOrService(deps.JWT, deps.ServiceTokens),
		middleware.RequireAdmin(),
	}
}
