package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/salesalert/internal/cache"
	"github.com/charlesng35/salesalert/internal/monitoring"
	"github.com/charlesng35/salesalert/pkg/logger"
)

const (
	defaultRetrySpec          = "@every 1m"
	defaultCleanupSpec        = "@hourly"
	defaultExecutionRetention = 30 * 24 * time.Hour
	defaultRateRetention      = 48 * time.Hour

	jobRetrySweep     = "delivery_retries"
	jobPurgeExpired   = "expired_notifications"
	jobPruneExecution = "rule_executions"
	jobPruneRates     = "rate_state"
)

// Engine is the subset of the alerting engine the scheduler drives.
type Engine interface {
	ProcessDueRetries(ctx context.Context) (int, error)
	PurgeExpired(ctx context.Context) (int64, error)
	PruneExecutions(ctx context.Context, retention time.Duration) (int64, error)
}

// Cleaner coordinates background jobs: re-driving due delivery retries, purging
// expired notifications and pruning execution and rate-limit history.
type Cleaner struct {
	engine  Engine
	pruner  cache.Pruner
	cron    *cron.Cron
	now     func() time.Time
	log     *zap.Logger
	started bool

	retrySchedule      string
	cleanupSchedule    string
	executionRetention time.Duration
	rateRetention      time.Duration
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for prune cutoffs.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithPruner registers a cache store whose expired rate state is pruned on the
// cleanup schedule.
func WithPruner(p cache.Pruner) Option {
	return func(cleaner *Cleaner) {
		cleaner.pruner = p
	}
}

// WithRetrySchedule overrides the cron expression for the retry sweep.
func WithRetrySchedule(expr string) Option {
	return func(cleaner *Cleaner) {
		if expr != "" {
			cleaner.retrySchedule = expr
		}
	}
}

// WithCleanupSchedule overrides the cron expression for retention jobs.
func WithCleanupSchedule(expr string) Option {
	return func(cleaner *Cleaner) {
		if expr != "" {
			cleaner.cleanupSchedule = expr
		}
	}
}

// WithExecutionRetention adjusts how long rule execution history is kept.
func WithExecutionRetention(d time.Duration) Option {
	return func(cleaner *Cleaner) {
		if d > 0 {
			cleaner.executionRetention = d
		}
	}
}

// WithRateRetention adjusts how long rate-limit timestamps are kept.
func WithRateRetention(d time.Duration) Option {
	return func(cleaner *Cleaner) {
		if d > 0 {
			cleaner.rateRetention = d
		}
	}
}

// NewCleaner constructs a Cleaner. A nil engine disables every job.
func NewCleaner(engine Engine, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		engine:             engine,
		now:                time.Now,
		retrySchedule:      defaultRetrySpec,
		cleanupSchedule:    defaultCleanupSpec,
		executionRetention: defaultExecutionRetention,
		rateRetention:      defaultRateRetention,
		log:                logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return cleaner
}

// Start registers the jobs with the cron scheduler and launches it.
func (c *Cleaner) Start() error {
	if c.engine == nil {
		return nil
	}

	if _, err := c.cron.AddFunc(c.retrySchedule, func() {
		if err := c.SweepRetries(context.Background()); err != nil {
			c.log.Warn("retry sweep failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	if _, err := c.cron.AddFunc(c.cleanupSchedule, func() {
		if err := c.Cleanup(context.Background()); err != nil {
			c.log.Warn("retention cleanup failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	c.cron.Start()
	c.started = true
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil || !c.started {
		return context.Background()
	}
	return c.cron.Stop()
}

// SweepRetries re-drives delivery attempts whose retry time has come.
func (c *Cleaner) SweepRetries(ctx context.Context) error {
	if c.engine == nil {
		return nil
	}
	return c.run(jobRetrySweep, func() (int64, error) {
		n, err := c.engine.ProcessDueRetries(ctx)
		return int64(n), err
	})
}

// Cleanup runs every retention job and aggregates their failures.
func (c *Cleaner) Cleanup(ctx context.Context) error {
	if c.engine == nil {
		return nil
	}

	var errs error
	errs = multierr.Append(errs, c.run(jobPurgeExpired, func() (int64, error) {
		return c.engine.PurgeExpired(ctx)
	}))
	errs = multierr.Append(errs, c.run(jobPruneExecution, func() (int64, error) {
		return c.engine.PruneExecutions(ctx, c.executionRetention)
	}))
	if c.pruner != nil {
		errs = multierr.Append(errs, c.run(jobPruneRates, func() (int64, error) {
			return c.pruner.Prune(ctx, c.now().Add(-c.rateRetention))
		}))
	}
	return errs
}

// RunOnce executes every job sequentially. Used in tests and during graceful
// shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return multierr.Append(c.SweepRetries(ctx), c.Cleanup(ctx))
}

func (c *Cleaner) run(job string, fn func() (int64, error)) error {
	start := time.Now()
	count, err := fn()
	duration := time.Since(start)
	if err != nil {
		monitoring.RecordMaintenanceRun(job, "error", err.Error(), duration)
		return err
	}
	monitoring.RecordMaintenanceRun(job, "success", "", duration)
	if count > 0 {
		c.log.Debug("maintenance job completed", zap.String("job", job), zap.Int64("affected", count))
	}
	return nil
}
