package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/salesalert/internal/alerting"
	"github.com/charlesng35/salesalert/internal/cache"
)

type fakeReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.messages) > 0 {
		msg := r.messages[0]
		r.messages = r.messages[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range msgs {
		r.committed = append(r.committed, msg.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type fakeEngine struct {
	mu     sync.Mutex
	events []alerting.Event
	errs   []error
	down   error
}

func (e *fakeEngine) Trigger(_ context.Context, event alerting.Event) (*alerting.TriggerResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	if e.down != nil {
		return nil, e.down
	}
	if len(e.errs) > 0 {
		err := e.errs[0]
		e.errs = e.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	return &alerting.TriggerResult{
		Notification: alerting.Notification{ID: "n-" + event.Title, UserID: event.UserID},
		Outcome:      alerting.OutcomeQueued,
	}, nil
}

func (e *fakeEngine) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.events)
}

func triggerMessage(t *testing.T, offset int64, key string, event alerting.Event) kafka.Message {
	t.Helper()
	value, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Key: []byte(key), Value: value}
}

func TestConsumerRunDeduplicatesAndCommits(t *testing.T) {
	event := alerting.Event{UserID: "rep-1", Type: alerting.TypeDealRisk, Title: "Deal slipping"}
	reader := &fakeReader{messages: []kafka.Message{
		triggerMessage(t, 1, "evt-1", event),
		triggerMessage(t, 2, "evt-1", event),
		{Offset: 3, Value: []byte("{not json")},
		triggerMessage(t, 4, "evt-2", alerting.Event{UserID: "rep-1"}),
	}}
	engine := &fakeEngine{}
	consumer := NewConsumer(reader, engine, cache.NewMemoryStore(), "alerts.triggers", WithRetry(1, 0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	require.Eventually(t, func() bool { return len(reader.commits()) == 4 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	require.Equal(t, []int64{1, 2, 3, 4}, reader.commits())
	require.Equal(t, 2, engine.calls())
}

func TestConsumerRunLeavesUnacceptedOffsetUncommitted(t *testing.T) {
	event := alerting.Event{UserID: "rep-1", Type: alerting.TypeChurnRisk, Title: "Usage drop"}
	reader := &fakeReader{messages: []kafka.Message{triggerMessage(t, 7, "evt-7", event)}}
	engine := &fakeEngine{down: errors.New("database unavailable")}
	consumer := NewConsumer(reader, engine, cache.NewMemoryStore(), "alerts.triggers", WithRetry(3, 0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	require.Eventually(t, func() bool { return engine.calls() >= 9 }, 2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	require.Empty(t, reader.commits())
}

func TestConsumerRunCommitsOnceEngineRecovers(t *testing.T) {
	event := alerting.Event{UserID: "rep-1", Type: alerting.TypeChurnRisk, Title: "Usage drop"}
	reader := &fakeReader{messages: []kafka.Message{triggerMessage(t, 7, "evt-7", event)}}
	down := errors.New("database unavailable")
	engine := &fakeEngine{errs: []error{down, down, down, down, down}}
	consumer := NewConsumer(reader, engine, cache.NewMemoryStore(), "alerts.triggers", WithRetry(2, 0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	require.Eventually(t, func() bool { return len(reader.commits()) == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	require.Equal(t, []int64{7}, reader.commits())
	require.Equal(t, 6, engine.calls())
}

func TestHandleRetriesTransientFailures(t *testing.T) {
	engine := &fakeEngine{errs: []error{errors.New("db locked"), nil}}
	consumer := NewConsumer(&fakeReader{}, engine, cache.NewMemoryStore(), "alerts.triggers", WithRetry(3, 0))

	msg := triggerMessage(t, 1, "evt-1", alerting.Event{UserID: "rep-1", Type: alerting.TypeChurnRisk, Title: "Usage drop"})
	require.Equal(t, string(alerting.OutcomeQueued), consumer.Handle(context.Background(), msg))
	require.Equal(t, 2, engine.calls())
}

func TestHandleReleasesKeyAfterFailure(t *testing.T) {
	engine := &fakeEngine{errs: []error{errors.New("down"), errors.New("down")}}
	consumer := NewConsumer(&fakeReader{}, engine, cache.NewMemoryStore(), "alerts.triggers", WithRetry(2, 0))
	msg := triggerMessage(t, 1, "evt-1", alerting.Event{UserID: "rep-1", Type: alerting.TypeChurnRisk, Title: "Usage drop"})

	require.Equal(t, "failed", consumer.Handle(context.Background(), msg))
	require.Equal(t, string(alerting.OutcomeQueued), consumer.Handle(context.Background(), msg))
}

func TestMessageKeyPrefersHeader(t *testing.T) {
	msg := kafka.Message{Key: []byte("partition-key"), Headers: []kafka.Header{{Key: IdempotencyHeader, Value: []byte("evt-9")}}}
	require.Equal(t, "evt-9", messageKey(msg))
	require.Equal(t, "partition-key", messageKey(kafka.Message{Key: []byte("partition-key")}))
}

type fakeWriter struct {
	messages []kafka.Message
	err      error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestPublisherHooks(t *testing.T) {
	writer := &fakeWriter{}
	publisher := NewPublisher(writer, "alerts.lifecycle")

	publisher.NotificationHook()(alerting.EventCreated, alerting.Notification{ID: "n-1", UserID: "rep-1", Type: alerting.TypeDealRisk})
	publisher.TransitionHook()(alerting.DeliveryAttempt{NotificationID: "n-1", UserID: "rep-1", Channel: alerting.ChannelEmail, Status: alerting.StatusDelivered})

	require.Len(t, writer.messages, 2)
	require.Equal(t, "rep-1", string(writer.messages[0].Key))

	var lifecycle Lifecycle
	require.NoError(t, json.Unmarshal(writer.messages[1].Value, &lifecycle))
	require.Equal(t, EventDeliveryUpdated, lifecycle.Event)
	require.Equal(t, alerting.StatusDelivered, lifecycle.Status)
	require.False(t, lifecycle.OccurredAt.IsZero())
}

func TestPublishReportsWriterErrors(t *testing.T) {
	publisher := NewPublisher(&fakeWriter{err: errors.New("broker down")}, "alerts.lifecycle")
	require.Error(t, publisher.Publish(context.Background(), Lifecycle{Event: alerting.EventRead, NotificationID: "n-1"}))
}

func TestConfigValidation(t *testing.T) {
	_, err := NewReader(Config{})
	require.Error(t, err)
	_, err = NewWriter(Config{Brokers: []string{"localhost:9092"}})
	require.Error(t, err)

	writer, err := NewWriter(Config{Brokers: []string{"localhost:9092"}, LifecycleTopic: "alerts.lifecycle"})
	require.NoError(t, err)
	require.Equal(t, "alerts.lifecycle", writer.Topic)
}
