package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/salesalert/internal/alerting"
)

func waitForSubscriber(t *testing.T, hub *Hub, stream, userID string) {
	t.Helper()
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.subscriptions[stream][userID]) > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNotificationHookBroadcastsRead(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub, "rep-1", []string{StreamNotifications})
	waitForConnections(t, hub, 1)

	hook := NotificationHook(hub)

	// Created is ignored; it reaches sockets through the in-app channel.
	hook(alerting.EventCreated, alerting.Notification{ID: "n-0", UserID: "rep-1"})

	waitForSubscriber(t, hub, StreamNotifications, "rep-1")
	hook(alerting.EventRead, alerting.Notification{ID: "n-1", UserID: "rep-1", IsRead: true})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, EventNotificationRead, msg.Event)
	data := msg.Data.(map[string]any)
	require.Equal(t, "n-1", data["id"])
	require.Equal(t, true, data["is_read"])
}

func TestTransitionHookStreamsDeliveries(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub, "rep-2", []string{StreamDeliveries})
	waitForConnections(t, hub, 1)

	hook := TransitionHook(hub)
	hook(alerting.DeliveryAttempt{NotificationID: "n-9", Channel: alerting.ChannelEmail})

	waitForSubscriber(t, hub, StreamDeliveries, "rep-2")
	hook(alerting.DeliveryAttempt{
		NotificationID: "n-9",
		UserID:         "rep-2",
		Channel:        alerting.ChannelEmail,
		Status:         alerting.StatusDelivered,
	})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, StreamDeliveries, msg.Stream)
	require.Equal(t, EventDeliveryUpdated, msg.Event)
	data := msg.Data.(map[string]any)
	require.Equal(t, "n-9", data["notification_id"])
	require.Equal(t, "delivered", data["status"])
}
