package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type collectors struct {
	triggers              *prometheus.CounterVec
	deliveries            *prometheus.CounterVec
	deliveryRetries       *prometheus.CounterVec
	sendLatency           *prometheus.HistogramVec
	eventsConsumed        *prometheus.CounterVec
	eventsPublished       *prometheus.CounterVec
	apiLatency            *prometheus.HistogramVec
	realtimeConnections   prometheus.Gauge
	realtimeBroadcasts    *prometheus.CounterVec
	realtimeFailures      *prometheus.CounterVec
	realtimeSubscriptions *prometheus.CounterVec
	maintenanceRuns       *prometheus.CounterVec
	maintenanceDuration   *prometheus.HistogramVec
	maintenanceLastRun    *prometheus.GaugeVec
}

func newCollectors(namespace string) *collectors {
	buckets := prometheus.DefBuckets
	sendBuckets := []float64{
		0.05, 0.1, 0.25, 0.5, 1, // sub-second providers
		2.5, 5, 10, 30,
	}

	return &collectors{
		triggers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "triggers_total",
				Help:      "Trigger evaluations grouped by outcome",
			},
			[]string{"outcome"},
		),
		deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deliveries_total",
				Help:      "Delivery attempt transitions by channel and resulting status",
			},
			[]string{"channel", "status"},
		),
		deliveryRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "delivery_retries_total",
				Help:      "Scheduled delivery retries executed by the sweeper",
			},
			[]string{"channel"},
		),
		sendLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "send_latency_seconds",
				Help:      "Time spent in a channel sender",
				Buckets:   sendBuckets,
			},
			[]string{"channel"},
		),
		eventsConsumed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_consumed_total",
				Help:      "Trigger events read from the message bus by result",
			},
			[]string{"topic", "result"},
		),
		eventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Lifecycle events written to the message bus by result",
			},
			[]string{"topic", "result"},
		),
		apiLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_latency_seconds",
				Help:      "API endpoint latency",
				Buckets:   buckets,
			},
			[]string{"method", "path", "status"},
		),
		realtimeConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "realtime_connections",
				Help:      "Active realtime websocket connections",
			},
		),
		realtimeBroadcasts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "realtime_broadcasts_total",
				Help:      "Messages broadcast across realtime streams",
			},
			[]string{"stream"},
		),
		realtimeFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "realtime_failures_total",
				Help:      "Realtime broadcast or subscription failures",
			},
			[]string{"stream", "type"},
		),
		realtimeSubscriptions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "realtime_subscriptions_total",
				Help:      "Realtime subscribe/unsubscribe events",
			},
			[]string{"stream", "action"},
		),
		maintenanceRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "maintenance_runs_total",
				Help:      "Maintenance job executions",
			},
			[]string{"job", "result"},
		),
		maintenanceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "maintenance_duration_seconds",
				Help:      "Maintenance job duration",
				Buckets:   buckets,
			},
			[]string{"job"},
		),
		maintenanceLastRun: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "maintenance_last_success_timestamp",
				Help:      "Timestamp of the last successful maintenance run (seconds since epoch)",
			},
			[]string{"job"},
		),
	}
}

func (c *collectors) all() []prometheus.Collector {
	return []prometheus.Collector{
		c.triggers,
		c.deliveries,
		c.deliveryRetries,
		c.sendLatency,
		c.eventsConsumed,
		c.eventsPublished,
		c.apiLatency,
		c.realtimeConnections,
		c.realtimeBroadcasts,
		c.realtimeFailures,
		c.realtimeSubscriptions,
		c.maintenanceRuns,
		c.maintenanceDuration,
		c.maintenanceLastRun,
	}
}

// observeDuration records a duration in seconds on the supplied histogram observer.
func observeDuration(observer prometheus.Observer, d time.Duration) {
	if observer == nil {
		return
	}
	if d < 0 {
		d = 0
	}
	observer.Observe(d.Seconds())
}
