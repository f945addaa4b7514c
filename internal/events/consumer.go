package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/charlesng35/salesalert/internal/alerting"
	"github.com/charlesng35/salesalert/internal/cache"
	"github.com/charlesng35/salesalert/internal/monitoring"
	"github.com/charlesng35/salesalert/pkg/logger"
)

// IdempotencyHeader carries a producer supplied dedupe key. The message key is
// used when the header is absent.
const IdempotencyHeader = "idempotency-key"

const (
	resultFailed = "failed"

	maxRedeliveryBackoff = time.Minute
)

// MessageReader is satisfied by *kafka.Reader.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Triggerer is satisfied by *alerting.Engine.
type Triggerer interface {
	Trigger(ctx context.Context, event alerting.Event) (*alerting.TriggerResult, error)
}

// Consumer turns trigger messages into engine calls. Accepted, duplicate,
// malformed and invalid messages are committed so a poison message never blocks
// the partition. A message the engine could not accept is handled again until it
// succeeds or the consumer stops, and its offset is left uncommitted.
type Consumer struct {
	reader   MessageReader
	engine   Triggerer
	claims   cache.Claimer
	topic    string
	attempts int
	backoff  time.Duration
	ttl      time.Duration
	log      *zap.Logger
}

// ConsumerOption customises a Consumer.
type ConsumerOption func(*Consumer)

// WithRetry sets how many times a transient trigger failure is attempted.
func WithRetry(attempts int, backoff time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if attempts > 0 {
			c.attempts = attempts
		}
		if backoff >= 0 {
			c.backoff = backoff
		}
	}
}

// WithIdempotencyTTL sets how long consumed keys are remembered.
func WithIdempotencyTTL(ttl time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// NewConsumer constructs a consumer. claims may be nil to disable deduplication.
func NewConsumer(reader MessageReader, engine Triggerer, claims cache.Claimer, topic string, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		reader:   reader,
		engine:   engine,
		claims:   claims,
		topic:    topic,
		attempts: 3,
		backoff:  time.Second,
		ttl:      cache.DefaultIdempotencyTTL,
		log:      logger.WithModule("events"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info("trigger consumer started", zap.String("topic", c.topic))
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			monitoring.RecordEventConsumed(c.topic, "fetch_error")
			return fmt.Errorf("events: fetch message: %w", err)
		}

		if !c.handleUntilSettled(ctx, msg) {
			return nil
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("events: commit offset %d: %w", msg.Offset, err)
		}
	}
}

// handleUntilSettled re-handles msg with growing pauses while the engine keeps
// failing. It returns false when ctx ends first.
func (c *Consumer) handleUntilSettled(ctx context.Context, msg kafka.Message) bool {
	wait := c.backoff
	for round := 1; ; round++ {
		result := c.Handle(ctx, msg)
		monitoring.RecordEventConsumed(c.topic, result)
		if result != resultFailed {
			return true
		}
		if ctx.Err() != nil {
			return false
		}

		c.log.Warn("trigger not accepted, redelivering",
			zap.Int64("offset", msg.Offset),
			zap.Int("round", round),
			zap.Duration("wait", wait),
		)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
		wait = min(wait*2, maxRedeliveryBackoff)
	}
}

// Handle processes one message and returns the result label recorded in metrics.
func (c *Consumer) Handle(ctx context.Context, msg kafka.Message) string {
	var event alerting.Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		c.log.Warn("discarding malformed trigger", zap.Int64("offset", msg.Offset), zap.Error(err))
		return "malformed"
	}

	key := messageKey(msg)
	var result *alerting.TriggerResult
	err := cache.Once(ctx, c.claims, key, c.ttl, func(ctx context.Context) error {
		var err error
		result, err = c.trigger(ctx, event)
		return err
	})

	switch {
	case err == nil:
		c.log.Debug("trigger consumed",
			zap.String("notification_id", result.Notification.ID),
			zap.String("outcome", string(result.Outcome)),
		)
		return string(result.Outcome)
	case errors.Is(err, cache.ErrDuplicate):
		c.log.Debug("skipping duplicate trigger", zap.String("key", key))
		return "duplicate"
	case alerting.IsValidation(err):
		c.log.Warn("discarding invalid trigger", zap.Int64("offset", msg.Offset), zap.Error(err))
		return "invalid"
	default:
		c.log.Error("trigger failed", zap.Int64("offset", msg.Offset), zap.String("key", key), zap.Error(err))
		return resultFailed
	}
}

func (c *Consumer) trigger(ctx context.Context, event alerting.Event) (*alerting.TriggerResult, error) {
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		result, err := c.engine.Trigger(ctx, event)
		if err == nil || alerting.IsValidation(err) {
			return result, err
		}
		lastErr = err
		if attempt == c.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.backoff):
		}
	}
	return nil, lastErr
}

func messageKey(msg kafka.Message) string {
	for _, header := range msg.Headers {
		if header.Key == IdempotencyHeader && len(header.Value) > 0 {
			return string(header.Value)
		}
	}
	return string(msg.Key)
}

// Close closes the reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
