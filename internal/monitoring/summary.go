package monitoring

import "time"

// Summary surfaces aggregated monitoring data for administrative dashboards.
type Summary struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Triggers    TriggerSummary     `json:"triggers"`
	Channels    []ChannelSummary   `json:"channels"`
	Events      EventBusSummary    `json:"events"`
	Realtime    RealtimeSummary    `json:"realtime"`
	Maintenance MaintenanceSummary `json:"maintenance"`
}

type TriggerSummary struct {
	Queued      uint64 `json:"queued"`
	Filtered    uint64 `json:"filtered"`
	RateLimited uint64 `json:"rate_limited"`
	Invalid     uint64 `json:"invalid"`
	Error       uint64 `json:"error"`
}

type ChannelSummary struct {
	Channel               string    `json:"channel"`
	Sent                  uint64    `json:"sent"`
	Delivered             uint64    `json:"delivered"`
	Failed                uint64    `json:"failed"`
	Bounced               uint64    `json:"bounced"`
	Retries               uint64    `json:"retries"`
	LastStatus            string    `json:"last_status"`
	LastUpdatedAt         time.Time `json:"last_updated_at"`
	AverageLatencySeconds float64   `json:"average_latency_seconds"`
}

type EventBusSummary struct {
	Consumed      uint64 `json:"consumed"`
	ConsumeFailed uint64 `json:"consume_failed"`
	Published     uint64 `json:"published"`
	PublishFailed uint64 `json:"publish_failed"`
}

type FailureRecord struct {
	Stream   string    `json:"stream"`
	Type     string    `json:"type"`
	Message  string    `json:"message"`
	Occurred time.Time `json:"occurred_at"`
}

type RealtimeSummary struct {
	ActiveConnections int64          `json:"active_connections"`
	Broadcasts        uint64         `json:"broadcasts"`
	Failures          uint64         `json:"failures"`
	LastFailure       *FailureRecord `json:"last_failure,omitempty"`
}

type MaintenanceSummary struct {
	Jobs []MaintenanceJobSummary `json:"jobs"`
}

type MaintenanceJobSummary struct {
	Job                 string        `json:"job"`
	LastStatus          string        `json:"last_status"`
	LastRunAt           time.Time     `json:"last_run_at"`
	LastDuration        time.Duration `json:"last_duration"`
	LastError           string        `json:"last_error,omitempty"`
	ConsecutiveFailures uint64        `json:"consecutive_failures"`
	ConsecutiveSuccess  uint64        `json:"consecutive_success"`
	LastSuccessAt       time.Time     `json:"last_success_at"`
	TotalRuns           uint64        `json:"total_runs"`
}

// Snapshot returns a point-in-time summary from the current module when configured.
func Snapshot() Summary {
	if module := ensureModule(); module != nil && module.stats != nil {
		return module.stats.summary()
	}
	return Summary{GeneratedAt: time.Now()}
}
