package maintenance

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/charlesng35/salesalert/internal/alerting"
	"github.com/charlesng35/salesalert/internal/cache"
)

type fakeEngine struct {
	retries    atomic.Int32
	purges     atomic.Int32
	prunes     atomic.Int32
	retention  time.Duration
	purgeErr   error
	pruneErr   error
	retriesErr error
}

func (f *fakeEngine) ProcessDueRetries(context.Context) (int, error) {
	f.retries.Add(1)
	return 2, f.retriesErr
}

func (f *fakeEngine) PurgeExpired(context.Context) (int64, error) {
	f.purges.Add(1)
	return 1, f.purgeErr
}

func (f *fakeEngine) PruneExecutions(_ context.Context, retention time.Duration) (int64, error) {
	f.prunes.Add(1)
	f.retention = retention
	return 3, f.pruneErr
}

type recordingPruner struct {
	before time.Time
}

func (p *recordingPruner) Prune(_ context.Context, before time.Time) (int64, error) {
	p.before = before
	return 0, nil
}

func TestCleanerRunOnce(t *testing.T) {
	now := time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)
	engine := &fakeEngine{}
	pruner := &recordingPruner{}

	c := NewCleaner(engine,
		WithNow(func() time.Time { return now }),
		WithPruner(pruner),
		WithExecutionRetention(72*time.Hour),
		WithRateRetention(6*time.Hour),
		WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))),
	)

	require.NoError(t, c.RunOnce(context.Background()))
	require.Equal(t, int32(1), engine.retries.Load())
	require.Equal(t, int32(1), engine.purges.Load())
	require.Equal(t, int32(1), engine.prunes.Load())
	require.Equal(t, 72*time.Hour, engine.retention)
	require.Equal(t, now.Add(-6*time.Hour), pruner.before)
}

func TestCleanerAggregatesErrors(t *testing.T) {
	engine := &fakeEngine{
		purgeErr: errors.New("purge down"),
		pruneErr: errors.New("prune down"),
	}
	c := NewCleaner(engine)

	err := c.Cleanup(context.Background())
	require.Error(t, err)
	require.Len(t, multierr.Errors(err), 2)
	require.ErrorContains(t, err, "purge down")
	require.ErrorContains(t, err, "prune down")

	// Every job still runs when an earlier one fails.
	require.Equal(t, int32(1), engine.prunes.Load())
}

func TestCleanerWithoutEngine(t *testing.T) {
	c := NewCleaner(nil)
	require.NoError(t, c.Start())
	require.NoError(t, c.RunOnce(context.Background()))
	require.NotNil(t, c.Stop())
}

func TestCleanerStartSchedulesRetrySweep(t *testing.T) {
	engine := &fakeEngine{}
	c := NewCleaner(engine,
		WithRetrySchedule("@every 1s"),
		WithCleanupSchedule("@every 1h"),
	)
	require.NoError(t, c.Start())
	t.Cleanup(func() { <-c.Stop().Done() })

	require.Eventually(t, func() bool {
		return engine.retries.Load() > 0
	}, 5*time.Second, 50*time.Millisecond)
	require.Equal(t, int32(0), engine.purges.Load())
}

func TestCleanerRejectsInvalidSchedule(t *testing.T) {
	c := NewCleaner(&fakeEngine{}, WithRetrySchedule("not a schedule"))
	require.Error(t, c.Start())
}

func TestCleanerPrunesMemoryRateState(t *testing.T) {
	now := time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)
	store := cache.NewMemoryStore()
	windows := []alerting.Window{{Span: 100 * time.Hour, Max: 1}}

	ok, err := store.Reserve(context.Background(), "user-1", now.Add(-72*time.Hour), windows)
	require.NoError(t, err)
	require.True(t, ok)

	c := NewCleaner(&fakeEngine{},
		WithNow(func() time.Time { return now }),
		WithPruner(store),
		WithRateRetention(48*time.Hour),
	)
	require.NoError(t, c.Cleanup(context.Background()))

	// The old reservation no longer counts against the window.
	ok, err = store.Reserve(context.Background(), "user-1", now, windows)
	require.NoError(t, err)
	require.True(t, ok)
}
