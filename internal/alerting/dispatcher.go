package alerting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/charlesng35/salesalert/internal/monitoring"
	"github.com/charlesng35/salesalert/pkg/logger"
)

const (
	// DefaultMaxRetries caps re-sends after the first attempt. An attempt that fails
	// again once RetryCount exceeds the cap ends in terminal failed status.
	DefaultMaxRetries  = 5
	DefaultBackoff     = 5 * time.Minute
	defaultWorkers     = 16
	defaultStaleAfter  = 15 * time.Minute
	defaultSendTimeout = 30 * time.Second
	defaultRetryBatch  = 100

	// NoRetries disables re-sends: the first transient failure is terminal.
	NoRetries = -1
)

var tracer trace.Tracer = otel.Tracer("github.com/charlesng35/salesalert/internal/alerting")

// Sender delivers a notification over one channel. Returning an error wrapping
// ErrPermanent marks the attempt bounced; any other error schedules a retry.
type Sender interface {
	Channel() Channel
	Send(ctx context.Context, n Notification, prefs Preferences) error
}

// TransitionHook observes every delivery attempt status change.
type TransitionHook func(attempt DeliveryAttempt)

// DispatcherStore is the persistence the dispatcher reads and mutates.
type DispatcherStore interface {
	AttemptRepository
	Get(ctx context.Context, userID, id string) (*Notification, error)
	GetPreferences(ctx context.Context, userID string) (*Preferences, error)
}

// DispatcherConfig tunes retry and concurrency behaviour. A zero MaxRetries
// selects DefaultMaxRetries; use NoRetries to turn retries off.
type DispatcherConfig struct {
	MaxRetries  int
	Backoff     time.Duration
	Workers     int
	StaleAfter  time.Duration
	SendTimeout time.Duration
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	switch {
	case c.MaxRetries == 0:
		c.MaxRetries = DefaultMaxRetries
	case c.MaxRetries < 0:
		c.MaxRetries = 0
	}
	if c.Backoff <= 0 {
		c.Backoff = DefaultBackoff
	}
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = defaultStaleAfter
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = defaultSendTimeout
	}
	return c
}

// Dispatcher fans notifications out to channel senders and owns every
// delivery attempt mutation.
type Dispatcher struct {
	store   DispatcherStore
	senders map[Channel]Sender
	hooks   []TransitionHook
	cfg     DispatcherConfig
	now     func() time.Time
	log     *zap.Logger

	sem      chan struct{}
	wg       sync.WaitGroup
	locks    keyedMutex
	inflight sync.Map

	baseCtx context.Context
	cancel  context.CancelFunc
}

// DispatcherOption customises a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithTransitionHook registers a status change observer.
func WithTransitionHook(hook TransitionHook) DispatcherOption {
	return func(d *Dispatcher) {
		if hook != nil {
			d.hooks = append(d.hooks, hook)
		}
	}
}

// WithDispatcherClock overrides the dispatcher clock.
func WithDispatcherClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDispatcher builds a dispatcher over the given senders.
func NewDispatcher(store DispatcherStore, senders []Sender, cfg DispatcherConfig, opts ...DispatcherOption) (*Dispatcher, error) {
	if store == nil {
		return nil, errors.New("alerting: dispatcher store is required")
	}
	cfg = cfg.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		store:   store,
		senders: make(map[Channel]Sender, len(senders)),
		cfg:     cfg,
		now:     time.Now,
		log:     logger.WithModule("dispatcher"),
		sem:     make(chan struct{}, cfg.Workers),
		baseCtx: ctx,
		cancel:  cancel,
	}
	for _, sender := range senders {
		if sender == nil {
			continue
		}
		d.senders[sender.Channel()] = sender
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Dispatch records a pending attempt per channel and starts delivery in the
// background. It returns once the attempts are persisted.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification, prefs Preferences) ([]DeliveryAttempt, error) {
	if len(n.Channels) == 0 {
		return nil, nil
	}

	now := d.now()
	attempts := make([]DeliveryAttempt, 0, len(n.Channels))
	for _, ch := range n.Channels {
		attempts = append(attempts, DeliveryAttempt{
			NotificationID: n.ID,
			UserID:         n.UserID,
			Channel:        ch,
			Status:         StatusPending,
			Timestamp:      now,
		})
	}

	saved, err := d.store.SaveAttempts(ctx, attempts)
	if err != nil {
		return nil, fmt.Errorf("alerting: save delivery attempts: %w", err)
	}

	for _, attempt := range saved {
		d.notify(attempt)
		d.start(n, prefs, attempt)
	}
	return saved, nil
}

// ProcessDueRetries re-sends failed attempts whose retry time has passed and
// pending or sent attempts left behind by an interrupted process. It returns the number
// of attempts started.
func (d *Dispatcher) ProcessDueRetries(ctx context.Context) (int, error) {
	now := d.now()
	due, err := d.store.DueAttempts(ctx, now, now.Add(-d.cfg.StaleAfter), defaultRetryBatch)
	if err != nil {
		return 0, fmt.Errorf("alerting: load due attempts: %w", err)
	}

	started := 0
	for _, attempt := range due {
		if _, busy := d.inflight.Load(attempt.ID); busy {
			continue
		}

		n, err := d.store.Get(ctx, attempt.UserID, attempt.NotificationID)
		if errors.Is(err, ErrNotFound) {
			d.finish(ctx, attempt, StatusFailed, "notification no longer exists")
			continue
		}
		if err != nil {
			return started, fmt.Errorf("alerting: load notification %s: %w", attempt.NotificationID, err)
		}
		if n.IsDismissed || n.Expired(now) {
			d.finish(ctx, attempt, StatusFailed, "notification dismissed or expired")
			continue
		}

		prefs := DefaultPreferences(n.UserID)
		if stored, err := d.store.GetPreferences(ctx, n.UserID); err == nil {
			prefs = *stored
		} else if !errors.Is(err, ErrNotFound) {
			return started, fmt.Errorf("alerting: load preferences: %w", err)
		}

		d.start(*n, prefs, attempt)
		monitoring.RecordDeliveryRetry(string(attempt.Channel))
		started++
	}
	return started, nil
}

// CancelRetries stops future retries for a notification's failed attempts.
func (d *Dispatcher) CancelRetries(ctx context.Context, notificationID string) error {
	if _, err := d.store.CancelRetries(ctx, notificationID); err != nil {
		return fmt.Errorf("alerting: cancel retries: %w", err)
	}
	return nil
}

// Wait blocks until all in-flight deliveries finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close waits for in-flight deliveries until ctx is done, then cancels the rest.
func (d *Dispatcher) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		return ctx.Err()
	}
}

func (d *Dispatcher) start(n Notification, prefs Preferences, attempt DeliveryAttempt) {
	if attempt.ID != "" {
		if _, loaded := d.inflight.LoadOrStore(attempt.ID, struct{}{}); loaded {
			return
		}
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if attempt.ID != "" {
				d.inflight.Delete(attempt.ID)
			}
		}()

		select {
		case d.sem <- struct{}{}:
		case <-d.baseCtx.Done():
			return
		}
		defer func() { <-d.sem }()

		d.deliver(n, prefs, attempt)
	}()
}

func (d *Dispatcher) deliver(n Notification, prefs Preferences, attempt DeliveryAttempt) {
	ctx := d.baseCtx

	attempt.Status = StatusSent
	attempt.Timestamp = d.now()
	attempt.Error = ""
	attempt.NextRetry = nil
	if !d.persist(ctx, attempt) {
		return
	}

	sendErr := d.send(ctx, n, prefs, attempt)

	now := d.now()
	attempt.Timestamp = now
	switch {
	case sendErr == nil:
		attempt.Status = StatusDelivered
	case errors.Is(sendErr, ErrPermanent):
		attempt.Status = StatusBounced
		attempt.Error = sendErr.Error()
	default:
		attempt.Status = StatusFailed
		attempt.Error = sendErr.Error()
		attempt.RetryCount++
		if attempt.RetryCount <= d.cfg.MaxRetries {
			next := now.Add(d.cfg.Backoff)
			attempt.NextRetry = &next
		}
	}

	if sendErr != nil {
		d.log.Warn("delivery failed",
			zap.String("notification_id", attempt.NotificationID),
			zap.String("channel", string(attempt.Channel)),
			zap.String("status", string(attempt.Status)),
			zap.Int("retry_count", attempt.RetryCount),
			zap.Error(sendErr),
		)
	}
	d.persist(ctx, attempt)
}

func (d *Dispatcher) send(ctx context.Context, n Notification, prefs Preferences, attempt DeliveryAttempt) (err error) {
	ctx, span := tracer.Start(ctx, "alerting.deliver", trace.WithAttributes(
		attribute.String("notification.id", n.ID),
		attribute.String("delivery.channel", string(attempt.Channel)),
		attribute.Int("delivery.retry_count", attempt.RetryCount),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	sender, ok := d.senders[attempt.Channel]
	if !ok {
		return Permanent(fmt.Errorf("no sender registered for channel %s", attempt.Channel))
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()

	started := time.Now()
	defer func() {
		monitoring.ObserveSendLatency(string(attempt.Channel), time.Since(started))
	}()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sender panic: %v", r)
		}
	}()
	return sender.Send(ctx, n, prefs)
}

// finish moves an attempt to a terminal state without sending.
func (d *Dispatcher) finish(ctx context.Context, attempt DeliveryAttempt, status DeliveryStatus, reason string) {
	attempt.Status = status
	attempt.Error = reason
	attempt.NextRetry = nil
	attempt.Timestamp = d.now()
	d.persist(ctx, attempt)
}

func (d *Dispatcher) persist(ctx context.Context, attempt DeliveryAttempt) bool {
	unlock := d.locks.Lock(attempt.NotificationID)
	defer unlock()

	if err := d.store.UpdateAttempt(ctx, attempt); err != nil {
		d.log.Error("update delivery attempt",
			zap.String("notification_id", attempt.NotificationID),
			zap.String("channel", string(attempt.Channel)),
			zap.Error(err),
		)
		return false
	}
	monitoring.RecordDelivery(string(attempt.Channel), string(attempt.Status))
	d.notify(attempt)
	return true
}

func (d *Dispatcher) notify(attempt DeliveryAttempt) {
	for _, hook := range d.hooks {
		hook(attempt)
	}
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
