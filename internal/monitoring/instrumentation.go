package monitoring

import (
	"strings"
	"time"
)

// RecordTrigger counts one trigger evaluation by outcome.
func RecordTrigger(outcome string) {
	module := ensureModule()
	if module == nil {
		return
	}
	label := normalizeLabel(outcome)
	module.metrics.triggers.WithLabelValues(label).Inc()
	module.stats.recordTrigger(label)
}

// RecordDelivery counts a delivery attempt transition.
func RecordDelivery(channel, status string) {
	module := ensureModule()
	if module == nil {
		return
	}
	ch := normalizeLabel(channel)
	st := normalizeLabel(status)
	module.metrics.deliveries.WithLabelValues(ch, st).Inc()
	module.stats.channelEntry(ch).recordStatus(st)
}

// RecordDeliveryRetry counts a retry picked up by the sweeper.
func RecordDeliveryRetry(channel string) {
	module := ensureModule()
	if module == nil {
		return
	}
	ch := normalizeLabel(channel)
	module.metrics.deliveryRetries.WithLabelValues(ch).Inc()
	module.stats.channelEntry(ch).retries.Add(1)
}

// ObserveSendLatency records time spent inside a channel sender.
func ObserveSendLatency(channel string, duration time.Duration) {
	module := ensureModule()
	if module == nil {
		return
	}
	ch := normalizeLabel(channel)
	observeDuration(module.metrics.sendLatency.WithLabelValues(ch), duration)
	module.stats.channelEntry(ch).recordLatency(duration)
}

// RecordEventConsumed counts a message read from the bus.
func RecordEventConsumed(topic, result string) {
	module := ensureModule()
	if module == nil {
		return
	}
	label := normalizeLabel(result)
	module.metrics.eventsConsumed.WithLabelValues(normalizeLabel(topic), label).Inc()
	module.stats.recordConsumed(label)
}

// RecordEventPublished counts a message written to the bus.
func RecordEventPublished(topic, result string) {
	module := ensureModule()
	if module == nil {
		return
	}
	label := normalizeLabel(result)
	module.metrics.eventsPublished.WithLabelValues(normalizeLabel(topic), label).Inc()
	module.stats.recordPublished(label)
}

// ObserveAPILatency captures the HTTP request latency for the supplied route.
func ObserveAPILatency(method, path, status string, duration time.Duration) {
	module := ensureModule()
	if module == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = "UNKNOWN"
	}
	path = sanitizePath(path)
	if path == "" {
		path = "unknown"
	}
	status = strings.TrimSpace(status)
	if status == "" {
		status = "unknown"
	}
	module.metrics.apiLatency.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordRealtimeConnection adjusts the websocket connection gauge.
func RecordRealtimeConnection(delta int64) {
	module := ensureModule()
	if module == nil {
		return
	}
	if delta == 0 {
		return
	}
	module.metrics.realtimeConnections.Add(float64(delta))
	module.stats.recordRealtimeConnection(delta)
	if module.stats.realtimeConnections.Load() < 0 {
		module.stats.realtimeConnections.Store(0)
		module.metrics.realtimeConnections.Set(0)
	}
}

// RecordRealtimeSubscription tracks subscribe/unsubscribe events.
func RecordRealtimeSubscription(stream, action string) {
	module := ensureModule()
	if module == nil {
		return
	}
	stream = normalizePath(stream)
	if stream == "" {
		stream = "unknown"
	}
	action = normalizeLabel(action)
	module.metrics.realtimeSubscriptions.WithLabelValues(stream, action).Inc()
}

// RecordRealtimeBroadcast increments broadcast counters per stream.
func RecordRealtimeBroadcast(stream string) {
	module := ensureModule()
	if module == nil {
		return
	}
	stream = normalizePath(stream)
	if stream == "" {
		stream = "unknown"
	}
	module.metrics.realtimeBroadcasts.WithLabelValues(stream).Inc()
	module.stats.recordRealtimeBroadcast(stream)
}

// RecordRealtimeFailure snapshots a realtime failure occurrence.
func RecordRealtimeFailure(stream, failureType, message string) {
	module := ensureModule()
	if module == nil {
		return
	}
	stream = normalizePath(stream)
	if stream == "" {
		stream = "unknown"
	}
	failureType = normalizeLabel(failureType)
	if failureType == "" {
		failureType = "unknown"
	}
	module.metrics.realtimeFailures.WithLabelValues(stream, failureType).Inc()
	module.stats.recordRealtimeFailure(FailureRecord{
		Stream:   stream,
		Type:     failureType,
		Message:  strings.TrimSpace(message),
		Occurred: time.Now(),
	})
}

// RecordMaintenanceRun records the completion of a maintenance job.
func RecordMaintenanceRun(job, result, message string, duration time.Duration) {
	module := ensureModule()
	if module == nil {
		return
	}
	jobID := normalizeLabel(job)
	if jobID == "" {
		jobID = "unknown"
	}
	result = normalizeLabel(result)
	if result == "" {
		result = "unknown"
	}
	module.metrics.maintenanceRuns.WithLabelValues(jobID, result).Inc()
	observeDuration(module.metrics.maintenanceDuration.WithLabelValues(jobID), duration)
	if result == "success" {
		module.metrics.maintenanceLastRun.WithLabelValues(jobID).Set(float64(time.Now().Unix()))
	}
	stats := module.stats.maintenanceEntry(jobID)
	stats.record(result, strings.TrimSpace(message), duration)
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return "unknown"
	}
	return value
}

func sanitizePath(path string) string {
	if path == "" {
		return ""
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if path == "/" {
		return "root"
	}
	return normalizePath(path)
}

func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.Trim(path, "/")
	path = strings.ReplaceAll(path, " ", "_")
	if path == "" {
		return "root"
	}
	return path
}
