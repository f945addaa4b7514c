package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/charlesng35/salesalert/internal/alerting"
)

// Memory is a process-local alerting.Repository. It is safe for concurrent use
// and intended for tests and single-node development.
type Memory struct {
	mu sync.RWMutex

	notifications map[string]*alerting.Notification
	order         []string
	attempts      map[string]*alerting.DeliveryAttempt
	attemptOrder  []string
	rules         map[string]*alerting.Rule
	ruleOrder     []string
	executions    []alerting.RuleExecution
	preferences   map[string]alerting.Preferences

	err error
}

var _ alerting.Repository = (*Memory)(nil)

// NewMemory constructs an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{
		notifications: make(map[string]*alerting.Notification),
		attempts:      make(map[string]*alerting.DeliveryAttempt),
		rules:         make(map[string]*alerting.Rule),
		preferences:   make(map[string]alerting.Preferences),
	}
}

// FailWith makes every subsequent call return err until reset with nil.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Create stores a copy of n.
func (m *Memory) Create(_ context.Context, n *alerting.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	stored := cloneNotification(*n)
	stored.DeliveryStatus = nil
	if _, exists := m.notifications[n.ID]; !exists {
		m.order = append(m.order, n.ID)
	}
	m.notifications[n.ID] = &stored
	return nil
}

// Get returns the user's notification with its delivery attempts.
func (m *Memory) Get(_ context.Context, userID, id string) (*alerting.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	n, ok := m.notifications[id]
	if !ok || n.UserID != userID {
		return nil, alerting.ErrNotFound
	}
	out := m.withAttemptsLocked(*n)
	return &out, nil
}

// List filters and pages the user's notifications, newest first.
func (m *Memory) List(_ context.Context, userID string, filter alerting.ListFilter) ([]alerting.Notification, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, 0, m.err
	}

	filter = filter.Normalized()
	var matched []alerting.Notification
	for _, n := range m.sortedLocked(userID) {
		if n.IsDismissed && !filter.IncludeDismissed {
			continue
		}
		if filter.Category != nil && n.Category != *filter.Category {
			continue
		}
		if filter.Priority != nil && n.Priority != *filter.Priority {
			continue
		}
		if filter.IsRead != nil && n.IsRead != *filter.IsRead {
			continue
		}
		matched = append(matched, n)
	}

	total := int64(len(matched))
	if filter.Offset >= len(matched) {
		return []alerting.Notification{}, total, nil
	}
	end := filter.Offset + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	page := make([]alerting.Notification, 0, end-filter.Offset)
	for _, n := range matched[filter.Offset:end] {
		page = append(page, m.withAttemptsLocked(n))
	}
	return page, total, nil
}

// ListAll returns every notification owned by the user.
func (m *Memory) ListAll(_ context.Context, userID string) ([]alerting.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	sorted := m.sortedLocked(userID)
	out := make([]alerting.Notification, 0, len(sorted))
	for _, n := range sorted {
		out = append(out, m.withAttemptsLocked(n))
	}
	return out, nil
}

// MarkRead flags the notification read.
func (m *Memory) MarkRead(_ context.Context, userID, id string) (*alerting.Notification, error) {
	return m.mutate(userID, id, func(n *alerting.Notification) {
		n.IsRead = true
	})
}

// Dismiss flags the notification dismissed and read.
func (m *Memory) Dismiss(_ context.Context, userID, id string) (*alerting.Notification, error) {
	return m.mutate(userID, id, func(n *alerting.Notification) {
		n.IsDismissed = true
		n.IsRead = true
	})
}

func (m *Memory) mutate(userID, id string, fn func(*alerting.Notification)) (*alerting.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	n, ok := m.notifications[id]
	if !ok || n.UserID != userID {
		return nil, alerting.ErrNotFound
	}
	fn(n)
	out := m.withAttemptsLocked(*n)
	return &out, nil
}

// MarkAllRead flags all of the user's unread notifications.
func (m *Memory) MarkAllRead(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	var count int64
	for _, n := range m.notifications {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			count++
		}
	}
	return count, nil
}

// DeleteExpired removes notifications expired at now, with their attempts.
func (m *Memory) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	var count int64
	order := m.order[:0]
	for _, id := range m.order {
		if m.notifications[id].Expired(now) {
			delete(m.notifications, id)
			count++
			continue
		}
		order = append(order, id)
	}
	m.order = order
	kept := m.attemptOrder[:0]
	for _, attemptID := range m.attemptOrder {
		if _, ok := m.notifications[m.attempts[attemptID].NotificationID]; ok {
			kept = append(kept, attemptID)
			continue
		}
		delete(m.attempts, attemptID)
	}
	m.attemptOrder = kept
	return count, nil
}

// SaveAttempts assigns ids and stores the attempts.
func (m *Memory) SaveAttempts(_ context.Context, attempts []alerting.DeliveryAttempt) ([]alerting.DeliveryAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]alerting.DeliveryAttempt, 0, len(attempts))
	for _, attempt := range attempts {
		if attempt.ID == "" {
			attempt.ID = uuid.NewString()
		}
		stored := attempt
		m.attempts[attempt.ID] = &stored
		m.attemptOrder = append(m.attemptOrder, attempt.ID)
		out = append(out, attempt)
	}
	return out, nil
}

// UpdateAttempt overwrites a stored attempt.
func (m *Memory) UpdateAttempt(_ context.Context, attempt alerting.DeliveryAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.attempts[attempt.ID]; !ok {
		return alerting.ErrNotFound
	}
	stored := attempt
	m.attempts[attempt.ID] = &stored
	return nil
}

// ListAttempts returns attempts for the given notifications in creation order.
func (m *Memory) ListAttempts(_ context.Context, notificationIDs ...string) ([]alerting.DeliveryAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	wanted := make(map[string]struct{}, len(notificationIDs))
	for _, id := range notificationIDs {
		wanted[id] = struct{}{}
	}
	var out []alerting.DeliveryAttempt
	for _, attemptID := range m.attemptOrder {
		attempt := m.attempts[attemptID]
		if _, ok := wanted[attempt.NotificationID]; ok {
			out = append(out, *attempt)
		}
	}
	return out, nil
}

// DueAttempts returns retryable failed attempts and stale pending or sent ones.
func (m *Memory) DueAttempts(_ context.Context, now, staleBefore time.Time, limit int) ([]alerting.DeliveryAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []alerting.DeliveryAttempt
	for _, attemptID := range m.attemptOrder {
		attempt := m.attempts[attemptID]
		due := attempt.Status == alerting.StatusFailed && attempt.NextRetry != nil && !attempt.NextRetry.After(now)
		stale := (attempt.Status == alerting.StatusPending || attempt.Status == alerting.StatusSent) &&
			attempt.Timestamp.Before(staleBefore)
		if due || stale {
			out = append(out, *attempt)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// CancelRetries clears scheduled retries for the notification.
func (m *Memory) CancelRetries(_ context.Context, notificationID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	var count int64
	for _, attempt := range m.attempts {
		if attempt.NotificationID == notificationID && attempt.NextRetry != nil {
			attempt.NextRetry = nil
			count++
		}
	}
	return count, nil
}

// CreateRule stores a rule, rejecting duplicate names.
func (m *Memory) CreateRule(_ context.Context, rule *alerting.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, existing := range m.rules {
		if existing.Name == rule.Name {
			return alerting.ErrDuplicateRule
		}
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	stored := *rule
	m.rules[rule.ID] = &stored
	m.ruleOrder = append(m.ruleOrder, rule.ID)
	return nil
}

// GetRule loads a rule by id.
func (m *Memory) GetRule(_ context.Context, id string) (*alerting.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	rule, ok := m.rules[id]
	if !ok {
		return nil, alerting.ErrNotFound
	}
	out := *rule
	return &out, nil
}

// ListRules returns rules in creation order.
func (m *Memory) ListRules(_ context.Context, activeOnly bool) ([]alerting.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]alerting.Rule, 0, len(m.ruleOrder))
	for _, id := range m.ruleOrder {
		rule := m.rules[id]
		if activeOnly && !rule.IsActive {
			continue
		}
		out = append(out, *rule)
	}
	return out, nil
}

// SetRuleActive toggles a rule.
func (m *Memory) SetRuleActive(_ context.Context, id string, active bool) (*alerting.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	rule, ok := m.rules[id]
	if !ok {
		return nil, alerting.ErrNotFound
	}
	rule.IsActive = active
	rule.UpdatedAt = time.Now()
	out := *rule
	return &out, nil
}

// DeleteRule removes a rule.
func (m *Memory) DeleteRule(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.rules[id]; !ok {
		return alerting.ErrNotFound
	}
	delete(m.rules, id)
	for i, ruleID := range m.ruleOrder {
		if ruleID == id {
			m.ruleOrder = append(m.ruleOrder[:i], m.ruleOrder[i+1:]...)
			break
		}
	}
	return nil
}

// RecordExecution appends to the execution log.
func (m *Memory) RecordExecution(_ context.Context, exec alerting.RuleExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.executions = append(m.executions, exec)
	return nil
}

// LastExecution returns the latest firing of the rule for the user.
func (m *Memory) LastExecution(_ context.Context, ruleID, userID string) (*time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	var last *time.Time
	for _, exec := range m.executions {
		if exec.RuleID != ruleID || exec.UserID != userID {
			continue
		}
		if last == nil || exec.ExecutedAt.After(*last) {
			at := exec.ExecutedAt
			last = &at
		}
	}
	return last, nil
}

// CountExecutionsSince counts firings of the rule for the user after since.
func (m *Memory) CountExecutionsSince(_ context.Context, ruleID, userID string, since time.Time) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return 0, m.err
	}
	var count int64
	for _, exec := range m.executions {
		if exec.RuleID == ruleID && exec.UserID == userID && exec.ExecutedAt.After(since) {
			count++
		}
	}
	return count, nil
}

// DeleteExecutionsBefore drops old execution records.
func (m *Memory) DeleteExecutionsBefore(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	kept := m.executions[:0]
	var removed int64
	for _, exec := range m.executions {
		if exec.ExecutedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, exec)
	}
	m.executions = kept
	return removed, nil
}

// GetPreferences returns stored preferences or ErrNotFound.
func (m *Memory) GetPreferences(_ context.Context, userID string) (*alerting.Preferences, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	prefs, ok := m.preferences[userID]
	if !ok {
		return nil, alerting.ErrNotFound
	}
	out := prefs.Clone()
	return &out, nil
}

// SavePreferences upserts preferences.
func (m *Memory) SavePreferences(_ context.Context, prefs alerting.Preferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.preferences[prefs.UserID] = prefs.Clone()
	return nil
}

func (m *Memory) sortedLocked(userID string) []alerting.Notification {
	var out []alerting.Notification
	for i := len(m.order) - 1; i >= 0; i-- {
		if n := m.notifications[m.order[i]]; n.UserID == userID {
			out = append(out, *n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (m *Memory) withAttemptsLocked(n alerting.Notification) alerting.Notification {
	out := cloneNotification(n)
	out.DeliveryStatus = []alerting.DeliveryAttempt{}
	for _, attemptID := range m.attemptOrder {
		attempt := m.attempts[attemptID]
		if attempt.NotificationID == n.ID {
			out.DeliveryStatus = append(out.DeliveryStatus, *attempt)
		}
	}
	return out
}

func cloneNotification(n alerting.Notification) alerting.Notification {
	out := n
	out.Channels = append([]alerting.Channel{}, n.Channels...)
	out.Actions = append([]alerting.Action(nil), n.Actions...)
	if n.Data != nil {
		out.Data = make(map[string]any, len(n.Data))
		for k, v := range n.Data {
			out.Data[k] = v
		}
	}
	return out
}
