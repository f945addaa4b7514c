package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/charlesng35/salesalert/internal/alerting"
	"github.com/charlesng35/salesalert/internal/monitoring"
	"github.com/charlesng35/salesalert/pkg/logger"
)

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Lifecycle is the document published for every notification and delivery change.
type Lifecycle struct {
	Event          string                  `json:"event"`
	NotificationID string                  `json:"notification_id"`
	UserID         string                  `json:"user_id,omitempty"`
	Type           alerting.Type           `json:"type,omitempty"`
	Priority       alerting.Priority       `json:"priority,omitempty"`
	Channel        alerting.Channel        `json:"channel,omitempty"`
	Status         alerting.DeliveryStatus `json:"status,omitempty"`
	RetryCount     int                     `json:"retry_count,omitempty"`
	OccurredAt     time.Time               `json:"occurred_at"`
}

// EventDeliveryUpdated is published for delivery attempt transitions.
const EventDeliveryUpdated = "delivery.updated"

// Publisher writes lifecycle events keyed by user id so a user's events stay ordered.
type Publisher struct {
	writer  MessageWriter
	topic   string
	timeout time.Duration
	now     func() time.Time
	log     *zap.Logger
}

// NewPublisher constructs a publisher.
func NewPublisher(writer MessageWriter, topic string) *Publisher {
	return &Publisher{
		writer:  writer,
		topic:   topic,
		timeout: 5 * time.Second,
		now:     time.Now,
		log:     logger.WithModule("events"),
	}
}

// Publish writes one lifecycle document.
func (p *Publisher) Publish(ctx context.Context, event Lifecycle) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = p.now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: encode lifecycle: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.UserID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(event.Event)},
		},
	})
	if err != nil {
		monitoring.RecordEventPublished(p.topic, "error")
		return fmt.Errorf("events: publish %s: %w", event.Event, err)
	}
	monitoring.RecordEventPublished(p.topic, "ok")
	return nil
}

// NotificationHook adapts the publisher to alerting.EventHook. Failures are logged.
func (p *Publisher) NotificationHook() alerting.EventHook {
	return func(event string, n alerting.Notification) {
		err := p.Publish(context.Background(), Lifecycle{
			Event:          event,
			NotificationID: n.ID,
			UserID:         n.UserID,
			Type:           n.Type,
			Priority:       n.Priority,
		})
		if err != nil {
			p.log.Warn("lifecycle publish failed", zap.String("notification_id", n.ID), zap.Error(err))
		}
	}
}

// TransitionHook adapts the publisher to alerting.TransitionHook.
func (p *Publisher) TransitionHook() alerting.TransitionHook {
	return func(attempt alerting.DeliveryAttempt) {
		err := p.Publish(context.Background(), Lifecycle{
			Event:          EventDeliveryUpdated,
			NotificationID: attempt.NotificationID,
			UserID:         attempt.UserID,
			Channel:        attempt.Channel,
			Status:         attempt.Status,
			RetryCount:     attempt.RetryCount,
			OccurredAt:     attempt.Timestamp,
		})
		if err != nil {
			p.log.Warn("delivery publish failed", zap.String("notification_id", attempt.NotificationID), zap.Error(err))
		}
	}
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
