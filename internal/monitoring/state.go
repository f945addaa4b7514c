package monitoring

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type statStore struct {
	triggerQueued      atomic.Uint64
	triggerFiltered    atomic.Uint64
	triggerRateLimited atomic.Uint64
	triggerInvalid     atomic.Uint64
	triggerError       atomic.Uint64

	eventsConsumed      atomic.Uint64
	eventsConsumeFailed atomic.Uint64
	eventsPublished     atomic.Uint64
	eventsPublishFailed atomic.Uint64

	realtimeConnections atomic.Int64
	realtimeBroadcasts  atomic.Uint64
	realtimeFailures    atomic.Uint64
	realtimeLastFailure atomic.Value // *FailureRecord

	maintenance sync.Map // string -> *maintenanceStats
	channels    sync.Map // string -> *channelStats
}

func newStatStore() *statStore {
	store := &statStore{}
	store.realtimeLastFailure.Store((*FailureRecord)(nil))
	return store
}

func (s *statStore) cloneMaintenance() []MaintenanceJobSummary {
	summaries := []MaintenanceJobSummary{}
	s.maintenance.Range(func(key, value any) bool {
		job := key.(string)
		stats := value.(*maintenanceStats)
		summaries = append(summaries, stats.snapshot(job))
		return true
	})
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Job < summaries[j].Job })
	return summaries
}

func (s *statStore) cloneChannels() []ChannelSummary {
	summaries := []ChannelSummary{}
	s.channels.Range(func(key, value any) bool {
		channel := key.(string)
		stats := value.(*channelStats)
		summaries = append(summaries, stats.snapshot(channel))
		return true
	})
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Channel < summaries[j].Channel })
	return summaries
}

func (s *statStore) summary() Summary {
	lastFailure, _ := s.realtimeLastFailure.Load().(*FailureRecord)

	return Summary{
		GeneratedAt: time.Now(),
		Triggers: TriggerSummary{
			Queued:      s.triggerQueued.Load(),
			Filtered:    s.triggerFiltered.Load(),
			RateLimited: s.triggerRateLimited.Load(),
			Invalid:     s.triggerInvalid.Load(),
			Error:       s.triggerError.Load(),
		},
		Channels: s.cloneChannels(),
		Events: EventBusSummary{
			Consumed:      s.eventsConsumed.Load(),
			ConsumeFailed: s.eventsConsumeFailed.Load(),
			Published:     s.eventsPublished.Load(),
			PublishFailed: s.eventsPublishFailed.Load(),
		},
		Realtime: RealtimeSummary{
			ActiveConnections: s.realtimeConnections.Load(),
			Broadcasts:        s.realtimeBroadcasts.Load(),
			Failures:          s.realtimeFailures.Load(),
			LastFailure:       lastFailure,
		},
		Maintenance: MaintenanceSummary{
			Jobs: s.cloneMaintenance(),
		},
	}
}

func (s *statStore) recordTrigger(outcome string) {
	switch outcome {
	case "queued":
		s.triggerQueued.Add(1)
	case "filtered":
		s.triggerFiltered.Add(1)
	case "rate_limited":
		s.triggerRateLimited.Add(1)
	case "invalid":
		s.triggerInvalid.Add(1)
	default:
		s.triggerError.Add(1)
	}
}

func (s *statStore) recordConsumed(result string) {
	if result == "success" {
		s.eventsConsumed.Add(1)
		return
	}
	s.eventsConsumeFailed.Add(1)
}

func (s *statStore) recordPublished(result string) {
	if result == "success" {
		s.eventsPublished.Add(1)
		return
	}
	s.eventsPublishFailed.Add(1)
}

func (s *statStore) recordRealtimeConnection(delta int64) {
	newValue := s.realtimeConnections.Add(delta)
	if newValue < 0 {
		s.realtimeConnections.Store(0)
	}
}

func (s *statStore) recordRealtimeBroadcast(stream string) {
	s.realtimeBroadcasts.Add(1)
}

func (s *statStore) recordRealtimeFailure(record FailureRecord) {
	s.realtimeFailures.Add(1)
	cloned := record
	s.realtimeLastFailure.Store(&cloned)
}

func (s *statStore) maintenanceEntry(job string) *maintenanceStats {
	value, ok := s.maintenance.Load(job)
	if ok {
		return value.(*maintenanceStats)
	}
	stats := &maintenanceStats{}
	actual, _ := s.maintenance.LoadOrStore(job, stats)
	return actual.(*maintenanceStats)
}

func (s *statStore) channelEntry(channel string) *channelStats {
	value, ok := s.channels.Load(channel)
	if ok {
		return value.(*channelStats)
	}
	stats := &channelStats{}
	actual, _ := s.channels.LoadOrStore(channel, stats)
	return actual.(*channelStats)
}

type maintenanceStats struct {
	lastStatus           atomic.Value // string
	lastError            atomic.Value // string
	lastRun              atomic.Int64 // unix nano
	lastDuration         atomic.Int64 // nanoseconds
	consecutiveFailures  atomic.Uint64
	totalRuns            atomic.Uint64
	lastSuccessfulRun    atomic.Int64
	consecutiveSuccesses atomic.Uint64
}

func (m *maintenanceStats) snapshot(job string) MaintenanceJobSummary {
	status, _ := m.lastStatus.Load().(string)
	errMsg, _ := m.lastError.Load().(string)
	lastRun := time.Unix(0, m.lastRun.Load())
	lastSuccess := time.Unix(0, m.lastSuccessfulRun.Load())

	return MaintenanceJobSummary{
		Job:                 job,
		LastStatus:          status,
		LastRunAt:           lastRun,
		LastDuration:        time.Duration(m.lastDuration.Load()),
		LastError:           errMsg,
		ConsecutiveFailures: m.consecutiveFailures.Load(),
		ConsecutiveSuccess:  m.consecutiveSuccesses.Load(),
		LastSuccessAt:       lastSuccess,
		TotalRuns:           m.totalRuns.Load(),
	}
}

func (m *maintenanceStats) record(result, message string, duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	now := time.Now()
	m.lastStatus.Store(result)
	m.lastError.Store(message)
	m.lastRun.Store(now.UnixNano())
	m.lastDuration.Store(int64(duration))
	m.totalRuns.Add(1)

	switch result {
	case "success":
		m.consecutiveFailures.Store(0)
		m.consecutiveSuccesses.Add(1)
		m.lastSuccessfulRun.Store(now.UnixNano())
	default:
		m.consecutiveFailures.Add(1)
		m.consecutiveSuccesses.Store(0)
	}
}

type channelStats struct {
	sent           atomic.Uint64
	delivered      atomic.Uint64
	failed         atomic.Uint64
	bounced        atomic.Uint64
	retries        atomic.Uint64
	lastStatus     atomic.Value // string
	lastUpdated    atomic.Int64
	totalLatencyNs atomic.Uint64
	sends          atomic.Uint64
}

func (c *channelStats) recordStatus(status string) {
	switch status {
	case "sent":
		c.sent.Add(1)
	case "delivered":
		c.delivered.Add(1)
	case "bounced":
		c.bounced.Add(1)
	default:
		c.failed.Add(1)
	}
	c.lastStatus.Store(status)
	c.lastUpdated.Store(time.Now().UnixNano())
}

func (c *channelStats) recordLatency(duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	c.sends.Add(1)
	c.totalLatencyNs.Add(uint64(duration))
}

func (c *channelStats) snapshot(channel string) ChannelSummary {
	status, _ := c.lastStatus.Load().(string)
	sends := c.sends.Load()

	var avg float64
	if sends > 0 {
		avg = float64(c.totalLatencyNs.Load()) / float64(sends) / float64(time.Second)
	}

	return ChannelSummary{
		Channel:               channel,
		Sent:                  c.sent.Load(),
		Delivered:             c.delivered.Load(),
		Failed:                c.failed.Load(),
		Bounced:               c.bounced.Load(),
		Retries:               c.retries.Load(),
		LastStatus:            status,
		LastUpdatedAt:         time.Unix(0, c.lastUpdated.Load()),
		AverageLatencySeconds: avg,
	}
}
