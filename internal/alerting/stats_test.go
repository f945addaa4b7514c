package alerting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestComputeStats(t *testing.T) {
	now := time.Date(2024, 6, 3, 15, 0, 0, 0, time.UTC)
	yesterday := now.Add(-20 * time.Hour)

	notifications := []Notification{
		{
			Priority: PriorityUrgent, Category: CategoryCustomerSuccess, Source: "crm", CreatedAt: now.Add(-time.Hour),
			DeliveryStatus: []DeliveryAttempt{
				{Channel: ChannelInApp, Status: StatusDelivered},
				{Channel: ChannelEmail, Status: StatusFailed},
			},
		},
		{
			Priority: PriorityCritical, Category: CategorySales, Source: "crm", CreatedAt: now.Add(-2 * time.Hour),
			IsDismissed: true, IsRead: true,
			DeliveryStatus: []DeliveryAttempt{
				{Channel: ChannelInApp, Status: StatusDelivered},
			},
		},
		{
			Priority: PriorityMedium, Category: CategorySales, Source: "ai", CreatedAt: yesterday,
			IsRead: true,
			DeliveryStatus: []DeliveryAttempt{
				{Channel: ChannelEmail, Status: StatusBounced},
				{Channel: ChannelSMS, Status: StatusDelivered},
			},
		},
		{Priority: PriorityLow, Category: CategoryOperations, CreatedAt: now},
	}

	stats := ComputeStats(notifications, now)

	require.Equal(t, 4, stats.Total)
	require.Equal(t, 2, stats.Unread)
	require.Equal(t, 1, stats.Critical)
	require.Equal(t, 3, stats.Today)
	require.Equal(t, map[Category]int{
		CategoryCustomerSuccess: 1,
		CategorySales:           2,
		CategoryOperations:      1,
	}, stats.ByCategory)
	require.Equal(t, 1, stats.ByPriority[PriorityUrgent])
	require.Equal(t, 1, stats.ByPriority[PriorityCritical])
	require.Equal(t, map[Channel]int{
		ChannelInApp: 2,
		ChannelEmail: 2,
		ChannelSMS:   1,
	}, stats.ByChannel)
	require.InDelta(t, 0.6, stats.DeliverySuccessRate, 1e-9)
	require.Equal(t, []SourceCount{
		{Source: "crm", Count: 2},
		{Source: "ai", Count: 1},
	}, stats.TopSources)
}

func TestComputeStatsEmpty(t *testing.T) {
	stats := ComputeStats(nil, time.Now())
	require.Zero(t, stats.Total)
	require.Zero(t, stats.DeliverySuccessRate)
	require.NotNil(t, stats.TopSources)
	require.Empty(t, stats.ByChannel)
}

func TestComputeStatsTopSourcesLimit(t *testing.T) {
	now := time.Now()
	var notifications []Notification
	for i, source := range []string{"a", "b", "c", "d", "e", "f", "f"} {
		notifications = append(notifications, Notification{Source: source, CreatedAt: now.Add(-time.Duration(i) * time.Minute)})
	}

	stats := ComputeStats(notifications, now)
	require.Len(t, stats.TopSources, topSourceLimit)
	require.Equal(t, SourceCount{Source: "f", Count: 2}, stats.TopSources[0])
	require.Equal(t, "a", stats.TopSources[1].Source)
}
