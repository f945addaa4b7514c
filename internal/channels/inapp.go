package channels

import (
	"context"
	"errors"

	"github.com/charlesng35/salesalert/internal/alerting"
	"github.com/charlesng35/salesalert/internal/realtime"
)

// Broadcaster pushes realtime messages to a user's open sockets.
type Broadcaster interface {
	BroadcastToUser(stream, userID string, message realtime.Message) int
}

// InApp delivers through the realtime hub. The stored notification is the in-app
// inbox, so delivery succeeds whether or not the user is connected.
type InApp struct {
	hub Broadcaster
}

// NewInApp constructs the in-app sender.
func NewInApp(hub Broadcaster) *InApp {
	return &InApp{hub: hub}
}

func (s *InApp) Channel() alerting.Channel { return alerting.ChannelInApp }

func (s *InApp) Send(ctx context.Context, n alerting.Notification, _ alerting.Preferences) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.hub != nil {
		s.hub.BroadcastToUser(realtime.StreamNotifications, n.UserID, realtime.Message{
			Event: realtime.EventNotificationCreated,
			Data:  n,
		})
	}
	return nil
}

func (s *InApp) Probe(context.Context) error {
	if s.hub == nil {
		return errors.New("realtime hub not attached")
	}
	return nil
}
