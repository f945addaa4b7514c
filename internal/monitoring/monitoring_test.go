package monitoring_test

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/salesalert/internal/monitoring"
	"github.com/charlesng35/salesalert/internal/monitoring/checks"
)

func setupModule(t *testing.T) *monitoring.Module {
	t.Helper()

	mod, err := monitoring.NewModule(monitoring.Options{DisableProcessCollector: true})
	require.NoError(t, err)
	monitoring.SetModule(mod)
	return mod
}

func TestSummaryAggregatesMetrics(t *testing.T) {
	setupModule(t)

	monitoring.RecordTrigger("queued")
	monitoring.RecordTrigger("queued")
	monitoring.RecordTrigger("filtered")
	monitoring.RecordTrigger("rate_limited")
	monitoring.RecordDelivery("email", "sent")
	monitoring.RecordDelivery("email", "delivered")
	monitoring.RecordDelivery("sms", "failed")
	monitoring.RecordDeliveryRetry("sms")
	monitoring.ObserveSendLatency("email", 200*time.Millisecond)
	monitoring.RecordEventConsumed("alerts.triggers", "success")
	monitoring.RecordEventConsumed("alerts.triggers", "decode_error")
	monitoring.RecordRealtimeConnection(1)
	monitoring.RecordRealtimeBroadcast("notifications")
	monitoring.RecordRealtimeFailure("notifications", "backpressure", "drop")
	monitoring.RecordMaintenanceRun("retry_sweep", "success", "", time.Second)

	summary := monitoring.Snapshot()
	require.EqualValues(t, 2, summary.Triggers.Queued)
	require.EqualValues(t, 1, summary.Triggers.Filtered)
	require.EqualValues(t, 1, summary.Triggers.RateLimited)

	require.Len(t, summary.Channels, 2)
	email, sms := summary.Channels[0], summary.Channels[1]
	require.Equal(t, "email", email.Channel)
	require.EqualValues(t, 1, email.Sent)
	require.EqualValues(t, 1, email.Delivered)
	require.InDelta(t, 0.2, email.AverageLatencySeconds, 0.001)
	require.Equal(t, "sms", sms.Channel)
	require.EqualValues(t, 1, sms.Failed)
	require.EqualValues(t, 1, sms.Retries)

	require.EqualValues(t, 1, summary.Events.Consumed)
	require.EqualValues(t, 1, summary.Events.ConsumeFailed)
	require.EqualValues(t, 1, summary.Realtime.ActiveConnections)
	require.GreaterOrEqual(t, summary.Realtime.Failures, uint64(1))
	require.NotEmpty(t, summary.Maintenance.Jobs)
}

func TestHandlerExposesNamespacedMetrics(t *testing.T) {
	mod := setupModule(t)
	monitoring.RecordTrigger("queued")
	monitoring.RecordDelivery("in_app", "delivered")

	rec := httptest.NewRecorder()
	mod.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)

	text := string(body)
	require.True(t, strings.Contains(text, `salesalert_triggers_total{outcome="queued"} 1`), text)
	require.True(t, strings.Contains(text, `salesalert_deliveries_total{channel="in_app",status="delivered"} 1`), text)
}

func TestHealthManagerEvaluate(t *testing.T) {
	t.Parallel()

	manager := monitoring.NewHealthManager()
	manager.RegisterReadiness(monitoring.NewCheck("database", func(ctx context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusUp}
	}))
	manager.RegisterReadiness(monitoring.NewCheck("redis", func(ctx context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "connection refused"}
	}))

	report := manager.EvaluateReadiness(context.Background())
	require.False(t, report.Success)
	require.Equal(t, monitoring.StatusDown, report.Status)
	require.Len(t, report.Checks, 2)
}

func TestMaintenanceCheck(t *testing.T) {
	setupModule(t)

	monitoring.RecordMaintenanceRun("retry_sweep", "success", "", time.Second)
	monitoring.RecordMaintenanceRun("expired_purge", "failure", "timeout", time.Second)

	check := checks.Maintenance(0)
	result := check.Run(context.Background())
	require.Equal(t, monitoring.StatusDown, result.Status)
	require.NotEmpty(t, result.Details)
}

func TestChannelsCheckDegradesOnFailure(t *testing.T) {
	t.Parallel()

	check := checks.Channels([]checks.ChannelProbe{
		{Channel: "in_app", Check: func(context.Context) error { return nil }},
		{Channel: "sms", Check: func(context.Context) error { return errors.New("credentials rejected") }},
	})
	result := check.Run(context.Background())
	require.Equal(t, monitoring.StatusDegraded, result.Status)
	require.Contains(t, result.Details, "sms: credentials rejected")
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestRedisCheck(t *testing.T) {
	t.Parallel()

	require.Equal(t, monitoring.StatusUp, checks.Redis(nil, false, 0).Run(context.Background()).Status)
	require.Equal(t, monitoring.StatusUp, checks.Redis(stubPinger{}, true, 0).Run(context.Background()).Status)
	require.Equal(t, monitoring.StatusDown, checks.Redis(stubPinger{err: errors.New("refused")}, true, 0).Run(context.Background()).Status)
}
