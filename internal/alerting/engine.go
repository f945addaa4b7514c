package alerting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/charlesng35/salesalert/internal/monitoring"
	"github.com/charlesng35/salesalert/pkg/logger"
)

// Outcome summarises what happened to a triggered notification.
type Outcome string

const (
	OutcomeQueued      Outcome = "queued"
	OutcomeFiltered    Outcome = "filtered"
	OutcomeRateLimited Outcome = "rate_limited"
)

// ReasonNoChannels is reported when filtering passes but no enabled channel remains.
const ReasonNoChannels FilterReason = "no_channels"

// Lifecycle events passed to EventHook.
const (
	EventCreated   = "notification.created"
	EventRead      = "notification.read"
	EventDismissed = "notification.dismissed"
)

// EventHook observes notification lifecycle changes.
type EventHook func(event string, n Notification)

// TriggerResult reports the notification created by Trigger and its fate.
type TriggerResult struct {
	Notification Notification `json:"notification"`
	RuleID       string       `json:"rule_id,omitempty"`
	Outcome      Outcome      `json:"outcome"`
	Reason       FilterReason `json:"reason,omitempty"`
	Scores       Scores       `json:"scores"`
}

// Engine runs events through matching, scoring, filtering, rate limiting,
// persistence and dispatch.
type Engine struct {
	repo       Repository
	dispatcher *Dispatcher
	scorer     *Scorer
	limiter    *RateLimiter
	hooks      []EventHook
	now        func() time.Time
	log        *zap.Logger
}

// EngineOption customises an Engine.
type EngineOption func(*Engine)

// WithScorer replaces the default scorer.
func WithScorer(scorer *Scorer) EngineOption {
	return func(e *Engine) {
		if scorer != nil {
			e.scorer = scorer
		}
	}
}

// WithRateLimiter replaces the default in-memory limiter.
func WithRateLimiter(limiter *RateLimiter) EngineOption {
	return func(e *Engine) {
		if limiter != nil {
			e.limiter = limiter
		}
	}
}

// WithClock overrides the engine clock.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithEventHook registers a lifecycle observer.
func WithEventHook(hook EventHook) EngineOption {
	return func(e *Engine) {
		if hook != nil {
			e.hooks = append(e.hooks, hook)
		}
	}
}

// NewEngine constructs an Engine.
func NewEngine(repo Repository, dispatcher *Dispatcher, opts ...EngineOption) (*Engine, error) {
	if repo == nil {
		return nil, errors.New("alerting: repository is required")
	}
	if dispatcher == nil {
		return nil, errors.New("alerting: dispatcher is required")
	}

	e := &Engine{
		repo:       repo,
		dispatcher: dispatcher,
		now:        time.Now,
		log:        logger.WithModule("alerting"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.scorer == nil {
		e.scorer = NewScorer(WithScorerClock(e.now))
	}
	if e.limiter == nil {
		e.limiter = NewRateLimiter(nil)
	}
	return e, nil
}

// Trigger turns an event into a persisted notification and queues delivery when
// preferences and rate limits allow. Filter and limiter rejections are reported
// through the outcome; only validation and store failures return an error.
func (e *Engine) Trigger(ctx context.Context, event Event) (result *TriggerResult, err error) {
	ctx, span := tracer.Start(ctx, "alerting.trigger", trace.WithAttributes(
		attribute.String("notification.type", string(event.Type)),
		attribute.String("event.source", event.Source),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.String("trigger.outcome", string(result.Outcome)))
		}
		span.End()
	}()

	if err := event.Validate(); err != nil {
		monitoring.RecordTrigger("invalid")
		return nil, err
	}
	event.UserID = strings.TrimSpace(event.UserID)
	now := e.now()

	prefs, err := e.Preferences(ctx, event.UserID)
	if err != nil {
		return nil, err
	}

	rule, matched, err := e.matchRule(ctx, event, now)
	if err != nil {
		return nil, err
	}

	n := buildNotification(event, rule, matched, now)
	scores := e.scorer.Apply(&n)

	result = &TriggerResult{Scores: scores, Outcome: OutcomeFiltered}
	if matched {
		result.RuleID = rule.ID
	}

	decision := ShouldDeliver(n, prefs, now)
	if decision.Deliver {
		channels := resolveChannels(rule, matched, prefs)
		switch {
		case len(channels) == 0:
			result.Reason = ReasonNoChannels
		default:
			allowed, err := e.limiter.Allow(ctx, event.UserID, prefs, now)
			if err != nil {
				return nil, err
			}
			if allowed {
				n.Channels = channels
				result.Outcome = OutcomeQueued
			} else {
				result.Outcome = OutcomeRateLimited
			}
		}
	} else {
		result.Reason = decision.Reason
	}

	if err := e.repo.Create(ctx, &n); err != nil {
		return nil, fmt.Errorf("alerting: persist notification: %w", err)
	}
	if matched {
		if err := e.repo.RecordExecution(ctx, RuleExecution{
			RuleID:         rule.ID,
			UserID:         n.UserID,
			NotificationID: n.ID,
			ExecutedAt:     now,
		}); err != nil {
			return nil, fmt.Errorf("alerting: record rule execution: %w", err)
		}
	}
	e.emit(EventCreated, n)

	if result.Outcome == OutcomeQueued {
		attempts, err := e.dispatcher.Dispatch(ctx, n, prefs)
		if err != nil {
			return nil, err
		}
		n.DeliveryStatus = attempts
	}

	result.Notification = n
	monitoring.RecordTrigger(string(result.Outcome))
	e.log.Debug("notification triggered",
		zap.String("notification_id", n.ID),
		zap.String("user_id", n.UserID),
		zap.String("type", string(n.Type)),
		zap.String("priority", string(n.Priority)),
		zap.String("outcome", string(result.Outcome)),
		zap.String("reason", string(result.Reason)),
	)
	return result, nil
}

// matchRule returns the highest priority active rule that matches the event and
// is neither cooling down nor over its daily cap for the user.
func (e *Engine) matchRule(ctx context.Context, event Event, now time.Time) (Rule, bool, error) {
	rules, err := e.repo.ListRules(ctx, true)
	if err != nil {
		return Rule{}, false, fmt.Errorf("alerting: list rules: %w", err)
	}

	var candidates []Rule
	for _, rule := range rules {
		if !rule.Matches(event) {
			continue
		}
		if rule.CooldownMinutes > 0 {
			last, err := e.repo.LastExecution(ctx, rule.ID, event.UserID)
			if err != nil {
				return Rule{}, false, fmt.Errorf("alerting: last execution: %w", err)
			}
			if last != nil && now.Sub(*last) < time.Duration(rule.CooldownMinutes)*time.Minute {
				continue
			}
		}
		if rule.MaxPerDay > 0 {
			count, err := e.repo.CountExecutionsSince(ctx, rule.ID, event.UserID, now.Add(-24*time.Hour))
			if err != nil {
				return Rule{}, false, fmt.Errorf("alerting: count executions: %w", err)
			}
			if count >= int64(rule.MaxPerDay) {
				continue
			}
		}
		candidates = append(candidates, rule)
	}

	rule, ok := SelectRule(candidates)
	return rule, ok, nil
}

func buildNotification(event Event, rule Rule, matched bool, now time.Time) Notification {
	n := Notification{
		ID:             uuid.NewString(),
		UserID:         event.UserID,
		Type:           event.Type,
		Title:          strings.TrimSpace(event.Title),
		Message:        strings.TrimSpace(event.Message),
		Data:           copyData(event.Data),
		Source:         strings.TrimSpace(event.Source),
		CreatedAt:      now,
		Channels:       []Channel{},
		DeliveryStatus: []DeliveryAttempt{},
	}

	expiresIn := time.Duration(0)
	if matched {
		n.RuleID = rule.ID
		n.Priority = rule.Priority
		tmpl := rule.Actions
		if tmpl.Type != "" {
			n.Type = tmpl.Type
		}
		if tmpl.Title != "" {
			n.Title = interpolate(tmpl.Title, event)
		}
		if tmpl.Message != "" {
			n.Message = interpolate(tmpl.Message, event)
		}
		if tmpl.Category != "" {
			n.Category = tmpl.Category
		}
		if len(tmpl.Actions) > 0 {
			n.Actions = append([]Action(nil), tmpl.Actions...)
		}
		if tmpl.ExpiresInMinutes > 0 {
			expiresIn = time.Duration(tmpl.ExpiresInMinutes) * time.Minute
		}
	}

	profile, _ := n.Type.profile()
	if n.Category == "" {
		n.Category = profile.category
	}
	if len(n.Actions) == 0 && len(profile.actions) > 0 {
		n.Actions = append([]Action(nil), profile.actions...)
	}
	if expiresIn == 0 {
		expiresIn = profile.expiresIn
	}
	if expiresIn > 0 {
		expires := now.Add(expiresIn)
		n.ExpiresAt = &expires
	}
	return n
}

// resolveChannels intersects the rule's channels, or the user's enabled channels
// when no rule matched, with the channels the user has enabled.
func resolveChannels(rule Rule, matched bool, prefs Preferences) []Channel {
	requested := prefs.EnabledChannels()
	if matched && len(rule.Channels) > 0 {
		requested = rule.Channels
	}

	seen := make(map[Channel]struct{}, len(requested))
	out := make([]Channel, 0, len(requested))
	for _, ch := range requested {
		if _, dup := seen[ch]; dup || !prefs.Channels[ch] {
			continue
		}
		seen[ch] = struct{}{}
		out = append(out, ch)
	}
	return out
}

func copyData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

// List returns a page of the user's notifications, newest first, and the total
// count matching the filter.
func (e *Engine) List(ctx context.Context, userID string, filter ListFilter) ([]Notification, int64, error) {
	items, total, err := e.repo.List(ctx, userID, filter.Normalized())
	if err != nil {
		return nil, 0, fmt.Errorf("alerting: list notifications: %w", err)
	}
	return items, total, nil
}

// MarkRead flags a notification as read. It is idempotent.
func (e *Engine) MarkRead(ctx context.Context, userID, id string) (*Notification, error) {
	n, err := e.repo.MarkRead(ctx, userID, id)
	if err != nil {
		return nil, wrapStoreErr("mark read", err)
	}
	e.emit(EventRead, *n)
	return n, nil
}

// MarkAllRead flags every unread notification of the user as read.
func (e *Engine) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	count, err := e.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, wrapStoreErr("mark all read", err)
	}
	return count, nil
}

// Dismiss hides a notification, marks it read and cancels pending retries.
// Dismissing an already dismissed notification succeeds without changes.
func (e *Engine) Dismiss(ctx context.Context, userID, id string) (*Notification, error) {
	n, err := e.repo.Dismiss(ctx, userID, id)
	if err != nil {
		return nil, wrapStoreErr("dismiss", err)
	}
	if err := e.dispatcher.CancelRetries(ctx, n.ID); err != nil {
		return nil, err
	}
	e.emit(EventDismissed, *n)
	return n, nil
}

// Stats aggregates the user's notifications.
func (e *Engine) Stats(ctx context.Context, userID string) (Stats, error) {
	items, err := e.repo.ListAll(ctx, userID)
	if err != nil {
		return Stats{}, fmt.Errorf("alerting: stats: %w", err)
	}
	return ComputeStats(items, e.now()), nil
}

// Preferences returns the user's settings, creating them on first use from the
// global template or the built-in defaults.
func (e *Engine) Preferences(ctx context.Context, userID string) (Preferences, error) {
	stored, err := e.repo.GetPreferences(ctx, userID)
	if err == nil {
		return *stored, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Preferences{}, fmt.Errorf("alerting: load preferences: %w", err)
	}

	prefs := DefaultPreferences(userID)
	if userID != GlobalPreferencesID {
		global, err := e.repo.GetPreferences(ctx, GlobalPreferencesID)
		switch {
		case err == nil:
			prefs = global.Clone()
			prefs.UserID = userID
			prefs.Contacts = Contacts{}
		case !errors.Is(err, ErrNotFound):
			return Preferences{}, fmt.Errorf("alerting: load global preferences: %w", err)
		}
	}
	prefs.UpdatedAt = e.now()

	if err := e.repo.SavePreferences(ctx, prefs); err != nil {
		return Preferences{}, fmt.Errorf("alerting: save default preferences: %w", err)
	}
	return prefs, nil
}

// UpdatePreferences merges patch onto the user's current settings.
func (e *Engine) UpdatePreferences(ctx context.Context, userID string, patch PreferencesPatch) (Preferences, error) {
	current, err := e.Preferences(ctx, userID)
	if err != nil {
		return Preferences{}, err
	}
	updated, err := patch.Apply(current)
	if err != nil {
		return Preferences{}, err
	}
	updated.UserID = userID
	updated.UpdatedAt = e.now()
	if err := e.repo.SavePreferences(ctx, updated); err != nil {
		return Preferences{}, fmt.Errorf("alerting: save preferences: %w", err)
	}
	return updated, nil
}

// CreateRule validates and stores a rule.
func (e *Engine) CreateRule(ctx context.Context, rule Rule) (*Rule, error) {
	if err := rule.Normalize(); err != nil {
		return nil, err
	}
	now := e.now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	if err := e.repo.CreateRule(ctx, &rule); err != nil {
		return nil, wrapStoreErr("create rule", err)
	}
	return &rule, nil
}

// ListRules returns rules in creation order.
func (e *Engine) ListRules(ctx context.Context, activeOnly bool) ([]Rule, error) {
	rules, err := e.repo.ListRules(ctx, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("alerting: list rules: %w", err)
	}
	return rules, nil
}

// GetRule loads a single rule.
func (e *Engine) GetRule(ctx context.Context, id string) (*Rule, error) {
	rule, err := e.repo.GetRule(ctx, id)
	if err != nil {
		return nil, wrapStoreErr("get rule", err)
	}
	return rule, nil
}

// SetRuleActive toggles whether a rule participates in matching.
func (e *Engine) SetRuleActive(ctx context.Context, id string, active bool) (*Rule, error) {
	rule, err := e.repo.SetRuleActive(ctx, id, active)
	if err != nil {
		return nil, wrapStoreErr("set rule active", err)
	}
	return rule, nil
}

// DeleteRule removes a rule.
func (e *Engine) DeleteRule(ctx context.Context, id string) error {
	if err := e.repo.DeleteRule(ctx, id); err != nil {
		return wrapStoreErr("delete rule", err)
	}
	return nil
}

// ProcessDueRetries forwards to the dispatcher.
func (e *Engine) ProcessDueRetries(ctx context.Context) (int, error) {
	return e.dispatcher.ProcessDueRetries(ctx)
}

// PurgeExpired deletes notifications whose expiry has passed.
func (e *Engine) PurgeExpired(ctx context.Context) (int64, error) {
	count, err := e.repo.DeleteExpired(ctx, e.now())
	if err != nil {
		return 0, fmt.Errorf("alerting: purge expired: %w", err)
	}
	return count, nil
}

// PruneExecutions drops rule execution history older than retention.
func (e *Engine) PruneExecutions(ctx context.Context, retention time.Duration) (int64, error) {
	if retention < 24*time.Hour {
		retention = 24 * time.Hour
	}
	count, err := e.repo.DeleteExecutionsBefore(ctx, e.now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("alerting: prune executions: %w", err)
	}
	return count, nil
}

func (e *Engine) emit(event string, n Notification) {
	for _, hook := range e.hooks {
		hook(event, n)
	}
}

func wrapStoreErr(op string, err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicateRule) || IsValidation(err) {
		return err
	}
	return fmt.Errorf("alerting: %s: %w", op, err)
}
