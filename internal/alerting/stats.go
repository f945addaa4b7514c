package alerting

import (
	"sort"
	"time"
)

const topSourceLimit = 5

// Stats is an aggregate view over one user's notifications.
type Stats struct {
	Total               int              `json:"total"`
	Unread              int              `json:"unread"`
	Critical            int              `json:"critical"`
	Today               int              `json:"today"`
	ByCategory          map[Category]int `json:"by_category"`
	ByPriority          map[Priority]int `json:"by_priority"`
	ByChannel           map[Channel]int  `json:"by_channel"`
	DeliverySuccessRate float64          `json:"delivery_success_rate"`
	TopSources          []SourceCount    `json:"top_sources"`
}

// SourceCount is the number of notifications produced by one source.
type SourceCount struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

// ComputeStats scans the notifications and their delivery attempts. Dismissed
// notifications count toward totals and breakdowns but not toward unread or critical.
func ComputeStats(notifications []Notification, now time.Time) Stats {
	stats := Stats{
		ByCategory: make(map[Category]int),
		ByPriority: make(map[Priority]int),
		ByChannel:  make(map[Channel]int),
		TopSources: []SourceCount{},
	}

	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	sources := make(map[string]int)
	var attempts, delivered int

	for _, n := range notifications {
		stats.Total++
		if !n.IsRead && !n.IsDismissed {
			stats.Unread++
		}
		if !n.IsDismissed && n.Priority.Rank() >= PriorityCritical.Rank() {
			stats.Critical++
		}
		if !n.CreatedAt.Before(startOfDay) {
			stats.Today++
		}
		stats.ByCategory[n.Category]++
		stats.ByPriority[n.Priority]++
		if n.Source != "" {
			sources[n.Source]++
		}
		for _, attempt := range n.DeliveryStatus {
			stats.ByChannel[attempt.Channel]++
			attempts++
			if attempt.Status == StatusDelivered {
				delivered++
			}
		}
	}

	if attempts > 0 {
		stats.DeliverySuccessRate = float64(delivered) / float64(attempts)
	}

	for source, count := range sources {
		stats.TopSources = append(stats.TopSources, SourceCount{Source: source, Count: count})
	}
	sort.Slice(stats.TopSources, func(i, j int) bool {
		if stats.TopSources[i].Count != stats.TopSources[j].Count {
			return stats.TopSources[i].Count > stats.TopSources[j].Count
		}
		return stats.TopSources[i].Source < stats.TopSources[j].Source
	})
	if len(stats.TopSources) > topSourceLimit {
		stats.TopSources = stats.TopSources[:topSourceLimit]
	}
	return stats
}
