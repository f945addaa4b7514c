package realtime

import "github.com/charlesng35/salesalert/internal/alerting"

// NotificationHook pushes read and dismissed transitions to the owner's sockets
// so other open sessions can update their badge counts. Created notifications
// reach the socket through the in-app channel instead.
func NotificationHook(hub *Hub) alerting.EventHook {
	return func(event string, n alerting.Notification) {
		if hub == nil {
			return
		}
		var name string
		switch event {
		case alerting.EventRead:
			name = EventNotificationRead
		case alerting.EventDismissed:
			name = EventNotificationDismissed
		default:
			return
		}
		hub.BroadcastToUser(StreamNotifications, n.UserID, Message{
			Event: name,
			Data: map[string]any{
				"id":           n.ID,
				"is_read":      n.IsRead,
				"is_dismissed": n.IsDismissed,
			},
		})
	}
}

// TransitionHook streams delivery attempt status changes.
func TransitionHook(hub *Hub) alerting.TransitionHook {
	return func(attempt alerting.DeliveryAttempt) {
		if hub == nil || attempt.UserID == "" {
			return
		}
		hub.BroadcastToUser(StreamDeliveries, attempt.UserID, Message{
			Event: EventDeliveryUpdated,
			Data:  attempt,
		})
	}
}
