package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/salesalert/internal/alerting"
	"github.com/charlesng35/salesalert/internal/api"
	"github.com/charlesng35/salesalert/internal/app"
	"github.com/charlesng35/salesalert/internal/app/maintenance"
	iauth "github.com/charlesng35/salesalert/internal/auth"
	"github.com/charlesng35/salesalert/internal/cache"
	"github.com/charlesng35/salesalert/internal/channels"
	"github.com/charlesng35/salesalert/internal/database"
	"github.com/charlesng35/salesalert/internal/events"
	"github.com/charlesng35/salesalert/internal/monitoring"
	"github.com/charlesng35/salesalert/internal/monitoring/checks"
	"github.com/charlesng35/salesalert/internal/realtime"
	"github.com/charlesng35/salesalert/internal/store"
)

const (
	healthProbeTimeout   = 2 * time.Second
	maintenanceStaleness = 2 * time.Hour
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB         *gorm.DB
	Cache      cache.Store
	Redis      *cache.RedisStore
	Hub        *realtime.Hub
	Monitoring *monitoring.Module
	Dispatcher *alerting.Dispatcher
	Engine     *alerting.Engine
	Cleaner    *maintenance.Cleaner
	Publisher  *events.Publisher
	Consumer   *events.Consumer
	Router     *gin.Engine

	cancelConsumer context.CancelFunc
	consumerDone   chan struct{}
}

// bootstrapRuntime initialises storage, caches, delivery channels, the alerting
// engine, background workers and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg, log)
	if err != nil {
		return nil, err
	}

	if err := stack.initialiseCache(ctx, cfg, log); err != nil {
		return nil, err
	}

	stack.Monitoring, err = monitoring.NewModule(monitoring.Options{})
	if err != nil {
		return nil, fmt.Errorf("initialise monitoring: %w", err)
	}
	monitoring.SetModule(stack.Monitoring)

	stack.Hub = realtime.NewHub(realtime.WithAllowedOrigins(cfg.Server.CORSOrigins...))

	senders, err := channels.Build(cfg.Channels.ChannelConfig(), channels.Deps{Hub: stack.Hub})
	if err != nil {
		return nil, fmt.Errorf("configure delivery channels: %w", err)
	}
	enabled := make([]string, 0, len(senders))
	for _, sender := range senders {
		enabled = append(enabled, string(sender.Channel()))
	}
	log.Info("delivery channels ready", zap.Strings("channels", enabled))

	repo, err := store.NewGorm(stack.DB)
	if err != nil {
		return nil, err
	}

	if cfg.Kafka.Enabled && strings.TrimSpace(cfg.Kafka.LifecycleTopic) != "" {
		writer, err := events.NewWriter(cfg.Kafka.EventsConfig())
		if err != nil {
			return nil, fmt.Errorf("initialise kafka writer: %w", err)
		}
		stack.Publisher = events.NewPublisher(writer, cfg.Kafka.LifecycleTopic)
	}

	dispatcherOpts := []alerting.DispatcherOption{
		alerting.WithTransitionHook(realtime.TransitionHook(stack.Hub)),
	}
	engineOpts := []alerting.EngineOption{
		alerting.WithRateLimiter(alerting.NewRateLimiter(stack.Cache)),
		alerting.WithEventHook(realtime.NotificationHook(stack.Hub)),
	}
	if stack.Publisher != nil {
		dispatcherOpts = append(dispatcherOpts, alerting.WithTransitionHook(stack.Publisher.TransitionHook()))
		engineOpts = append(engineOpts, alerting.WithEventHook(stack.Publisher.NotificationHook()))
	}

	stack.Dispatcher, err = alerting.NewDispatcher(repo, senders, cfg.Delivery.DispatcherConfig(), dispatcherOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise dispatcher: %w", err)
	}

	stack.Engine, err = alerting.NewEngine(repo, stack.Dispatcher, engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise alerting engine: %w", err)
	}

	created, err := app.SyncRulePack(ctx, stack.DB, stack.Engine, cfg.Rules.PackPath)
	if err != nil {
		return nil, fmt.Errorf("apply rule pack: %w", err)
	}
	if created > 0 {
		log.Info("rule pack rules created", zap.Int("count", created))
	}

	if cfg.Maintenance.Enabled {
		opts := []maintenance.Option{
			maintenance.WithRetrySchedule(cfg.Maintenance.RetrySchedule),
			maintenance.WithCleanupSchedule(cfg.Maintenance.CleanupSchedule),
			maintenance.WithExecutionRetention(cfg.Maintenance.ExecutionRetention),
			maintenance.WithRateRetention(cfg.Maintenance.RateRetention),
		}
		if pruner, ok := stack.Cache.(cache.Pruner); ok {
			opts = append(opts, maintenance.WithPruner(pruner))
		}
		stack.Cleaner = maintenance.NewCleaner(stack.Engine, opts...)
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
	}

	if cfg.Kafka.Enabled && strings.TrimSpace(cfg.Kafka.TriggerTopic) != "" {
		reader, err := events.NewReader(cfg.Kafka.EventsConfig())
		if err != nil {
			return nil, fmt.Errorf("initialise kafka reader: %w", err)
		}
		stack.startConsumer(reader, cfg, log)
	}

	registerHealthChecks(stack, cfg, senders)

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	stack.Router, err = api.NewRouter(api.Dependencies{
		Config:        cfg,
		Engine:        stack.Engine,
		JWT:           jwtSvc,
		ServiceTokens: iauth.NewServiceTokens(cfg.Auth.ServiceTokens),
		Hub:           stack.Hub,
		Cache:         stack.Cache,
		Monitoring:    stack.Monitoring,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

func (s *runtimeStack) initialiseCache(ctx context.Context, cfg *app.Config, log *zap.Logger) error {
	backend := strings.ToLower(strings.TrimSpace(cfg.Cache.Backend))
	switch backend {
	case "", "memory":
		s.Cache = cache.NewMemoryStore()
	case "database":
		s.Cache = cache.NewDatabaseStore(s.DB)
	case "redis":
		client, err := cache.NewRedisClient(ctx, cfg.Cache.RedisClientConfig())
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		s.Redis = cache.NewRedisStore(client, cfg.Cache.Redis.Prefix)
		s.Cache = s.Redis
		log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
	default:
		return fmt.Errorf("unsupported cache backend %q", cfg.Cache.Backend)
	}
	log.Info("cache backend ready", zap.String("backend", backend))
	return nil
}

func (s *runtimeStack) startConsumer(reader *kafka.Reader, cfg *app.Config, log *zap.Logger) {
	s.Consumer = events.NewConsumer(reader, s.Engine, s.Cache, cfg.Kafka.TriggerTopic,
		events.WithIdempotencyTTL(cfg.Kafka.IdempotencyTTL),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelConsumer = cancel
	s.consumerDone = make(chan struct{})
	go func() {
		defer close(s.consumerDone)
		if err := s.Consumer.Run(ctx); err != nil {
			log.Error("trigger consumer stopped", zap.Error(err))
		}
	}()
}

func registerHealthChecks(stack *runtimeStack, cfg *app.Config, senders []alerting.Sender) {
	health := stack.Monitoring.Health()
	health.RegisterLiveness(checks.Realtime(stack.Hub))

	health.RegisterReadiness(checks.Database(stack.DB, healthProbeTimeout))
	if stack.Redis != nil {
		health.RegisterReadiness(checks.Redis(stack.Redis, true, healthProbeTimeout))
	} else {
		health.RegisterReadiness(checks.Redis(nil, false, healthProbeTimeout))
	}
	if cfg.Maintenance.Enabled {
		health.RegisterReadiness(checks.Maintenance(maintenanceStaleness))
	}
	health.RegisterReadiness(checks.Channels(channels.Probes(senders)))
}

// Shutdown releases resources in reverse dependency order. It is safe to call on
// a partially initialised stack.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.cancelConsumer != nil {
		s.cancelConsumer()
		select {
		case <-s.consumerDone:
		case <-ctx.Done():
		}
	}
	if s.Consumer != nil {
		if err := s.Consumer.Close(); err != nil {
			log.Warn("failed to close kafka reader", zap.Error(err))
		}
	}

	if s.Cleaner != nil {
		select {
		case <-s.Cleaner.Stop().Done():
		case <-ctx.Done():
		}
	}

	if s.Dispatcher != nil {
		if err := s.Dispatcher.Close(ctx); err != nil {
			log.Warn("dispatcher did not drain", zap.Error(err))
		}
	}

	if s.Publisher != nil {
		if err := s.Publisher.Close(); err != nil {
			log.Warn("failed to close kafka writer", zap.Error(err))
		}
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("failed to close redis", zap.Error(err))
		}
	}

	closeDatabase(s.DB, log)
}

func initialiseDatabase(cfg *app.Config, log *zap.Logger) (*gorm.DB, error) {
	dbCfg := cfg.Database.DatabaseSettings()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db); err != nil {
		closeDatabase(db, log)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))
	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn("failed to close database", zap.Error(err))
	}
}
