package alerting

import (
	"context"
	"time"
)

// ListFilter narrows a notification listing. Nil pointers do not filter.
type ListFilter struct {
	Category         *Category
	Priority         *Priority
	IsRead           *bool
	IncludeDismissed bool
	Limit            int
	Offset           int
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Normalized clamps the paging values.
func (f ListFilter) Normalized() ListFilter {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// NotificationRepository persists notifications. Implementations return ErrNotFound
// for missing rows and rows owned by another user.
type NotificationRepository interface {
	Create(ctx context.Context, n *Notification) error
	Get(ctx context.Context, userID, id string) (*Notification, error)
	List(ctx context.Context, userID string, filter ListFilter) ([]Notification, int64, error)
	// ListAll returns every notification for the user, used for stats.
	ListAll(ctx context.Context, userID string) ([]Notification, error)
	MarkRead(ctx context.Context, userID, id string) (*Notification, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Dismiss(ctx context.Context, userID, id string) (*Notification, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// AttemptRepository persists delivery attempts.
type AttemptRepository interface {
	SaveAttempts(ctx context.Context, attempts []DeliveryAttempt) ([]DeliveryAttempt, error)
	UpdateAttempt(ctx context.Context, attempt DeliveryAttempt) error
	ListAttempts(ctx context.Context, notificationIDs ...string) ([]DeliveryAttempt, error)
	// DueAttempts returns failed attempts with NextRetry at or before now and
	// pending or sent attempts last touched before staleBefore.
	DueAttempts(ctx context.Context, now, staleBefore time.Time, limit int) ([]DeliveryAttempt, error)
	CancelRetries(ctx context.Context, notificationID string) (int64, error)
}

// RuleRepository persists rules in creation order.
type RuleRepository interface {
	CreateRule(ctx context.Context, rule *Rule) error
	GetRule(ctx context.Context, id string) (*Rule, error)
	ListRules(ctx context.Context, activeOnly bool) ([]Rule, error)
	SetRuleActive(ctx context.Context, id string, active bool) (*Rule, error)
	DeleteRule(ctx context.Context, id string) error
}

// ExecutionRepository records rule firings for cooldown and daily caps.
type ExecutionRepository interface {
	RecordExecution(ctx context.Context, exec RuleExecution) error
	LastExecution(ctx context.Context, ruleID, userID string) (*time.Time, error)
	CountExecutionsSince(ctx context.Context, ruleID, userID string, since time.Time) (int64, error)
	DeleteExecutionsBefore(ctx context.Context, before time.Time) (int64, error)
}

// PreferenceRepository persists per-user preferences.
type PreferenceRepository interface {
	GetPreferences(ctx context.Context, userID string) (*Preferences, error)
	SavePreferences(ctx context.Context, prefs Preferences) error
}

// Repository groups every store the engine needs.
type Repository interface {
	NotificationRepository
	AttemptRepository
	RuleRepository
	ExecutionRepository
	PreferenceRepository
}
