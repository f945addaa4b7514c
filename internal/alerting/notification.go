package alerting

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Notification is a scored alert owned by a single user.
type Notification struct {
	ID             string            `json:"id"`
	UserID         string            `json:"user_id"`
	Type           Type              `json:"type"`
	Priority       Priority          `json:"priority"`
	Category       Category          `json:"category"`
	Title          string            `json:"title"`
	Message        string            `json:"message"`
	Data           map[string]any    `json:"data,omitempty"`
	Source         string            `json:"source,omitempty"`
	RuleID         string            `json:"rule_id,omitempty"`
	IsRead         bool              `json:"is_read"`
	IsDismissed    bool              `json:"is_dismissed"`
	CreatedAt      time.Time         `json:"created_at"`
	ExpiresAt      *time.Time        `json:"expires_at,omitempty"`
	Actions        []Action          `json:"actions,omitempty"`
	Channels       []Channel         `json:"channels"`
	DeliveryStatus []DeliveryAttempt `json:"delivery_status"`
	Metadata       Metadata          `json:"metadata"`
}

// Action is a suggested follow-up shown alongside a notification.
type Action struct {
	ID     string     `json:"id" yaml:"id"`
	Label  string     `json:"label" yaml:"label"`
	Type   ActionType `json:"type" yaml:"type"`
	Action string     `json:"action" yaml:"action"`
	URL    string     `json:"url,omitempty" yaml:"url,omitempty"`
}

// Metadata carries the scoring output attached to a notification.
type Metadata struct {
	UrgencyScore       int             `json:"urgency_score"`
	RelevanceScore     int             `json:"relevance_score"`
	ActionabilityScore int             `json:"actionability_score"`
	TimeSensitivity    TimeSensitivity `json:"time_sensitivity"`
	BusinessImpact     BusinessImpact  `json:"business_impact"`
	Confidence         int             `json:"confidence"`
	RelatedEntities    []EntityRef     `json:"related_entities,omitempty"`
}

// EntityRef points at a CRM record referenced by the notification payload.
type EntityRef struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// DeliveryAttempt tracks one notification's delivery on one channel.
type DeliveryAttempt struct {
	ID             string         `json:"id,omitempty"`
	NotificationID string         `json:"notification_id"`
	UserID         string         `json:"user_id,omitempty"`
	Channel        Channel        `json:"channel"`
	Status         DeliveryStatus `json:"status"`
	Timestamp      time.Time      `json:"timestamp"`
	Error          string         `json:"error,omitempty"`
	RetryCount     int            `json:"retry_count"`
	NextRetry      *time.Time     `json:"next_retry,omitempty"`
}

// Terminal reports whether no further transitions are scheduled for the attempt.
func (a DeliveryAttempt) Terminal() bool {
	switch a.Status {
	case StatusDelivered, StatusBounced:
		return true
	case StatusFailed:
		return a.NextRetry == nil
	}
	return false
}

// Expired reports whether the notification has passed its expiry at now.
func (n Notification) Expired(now time.Time) bool {
	return n.ExpiresAt != nil && !now.Before(*n.ExpiresAt)
}

// Event is an inbound domain occurrence that may produce a notification.
type Event struct {
	UserID  string         `json:"user_id"`
	Type    Type           `json:"type"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
	Source  string         `json:"source"`
}

const maxTitleLength = 200

// Validate checks the required trigger fields.
func (e Event) Validate() error {
	var problems []string
	if strings.TrimSpace(e.UserID) == "" {
		problems = append(problems, "user_id is required")
	}
	if strings.TrimSpace(string(e.Type)) == "" {
		problems = append(problems, "type is required")
	}
	title := strings.TrimSpace(e.Title)
	if title == "" {
		problems = append(problems, "title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		problems = append(problems, "title must be at most 200 characters")
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
