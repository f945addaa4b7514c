package realtime

// Named realtime streams.
const (
	StreamNotifications = "notifications"
	StreamDeliveries    = "deliveries"
	StreamStats         = "notifications.stats"
)

// Event names published on StreamNotifications.
const (
	EventNotificationCreated   = "notification.created"
	EventNotificationRead      = "notification.read"
	EventNotificationDismissed = "notification.dismissed"
	EventDeliveryUpdated       = "delivery.updated"
)

// DefaultStreams are subscribed on connect when the client names none.
func DefaultStreams() []string {
	return []string{StreamNotifications, StreamDeliveries}
}
