package alerting

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Window is one sliding cap: at most Max events within Span. Max <= 0 disables it.
type Window struct {
	Span time.Duration
	Max  int
}

// RateStore atomically checks every window for key and, only when all pass,
// records an event at now. Implementations must make check and record a single step.
type RateStore interface {
	Reserve(ctx context.Context, key string, now time.Time, windows []Window) (bool, error)
}

// RateLimiter enforces per-user hourly and daily delivery caps.
type RateLimiter struct {
	store RateStore
}

// NewRateLimiter wraps store. A nil store falls back to an in-process store.
func NewRateLimiter(store RateStore) *RateLimiter {
	if store == nil {
		store = NewMemoryRateStore()
	}
	return &RateLimiter{store: store}
}

// Allow reserves one delivery slot for the user. Rejections record nothing.
func (l *RateLimiter) Allow(ctx context.Context, userID string, prefs Preferences, now time.Time) (bool, error) {
	windows := []Window{
		{Span: time.Hour, Max: prefs.Frequency.MaxPerHour},
		{Span: 24 * time.Hour, Max: prefs.Frequency.MaxPerDay},
	}
	ok, err := l.store.Reserve(ctx, "notify:"+userID, now, windows)
	if err != nil {
		return false, fmt.Errorf("alerting: rate limit: %w", err)
	}
	return ok, nil
}

// MemoryRateStore keeps event timestamps in process, one lock per key.
type MemoryRateStore struct {
	mu   sync.Mutex
	logs map[string]*eventLog
}

type eventLog struct {
	mu      sync.Mutex
	events  []time.Time
	removed bool
}

// NewMemoryRateStore constructs an empty in-memory store.
func NewMemoryRateStore() *MemoryRateStore {
	return &MemoryRateStore{logs: make(map[string]*eventLog)}
}

func (s *MemoryRateStore) log(key string) *eventLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.logs[key]
	if !ok {
		entry = &eventLog{}
		s.logs[key] = entry
	}
	return entry
}

// Reserve implements RateStore.
func (s *MemoryRateStore) Reserve(_ context.Context, key string, now time.Time, windows []Window) (bool, error) {
	entry := s.log(key)
	entry.mu.Lock()
	for entry.removed {
		// Prune dropped the log between lookup and lock.
		entry.mu.Unlock()
		entry = s.log(key)
		entry.mu.Lock()
	}
	defer entry.mu.Unlock()

	var longest time.Duration
	for _, w := range windows {
		if w.Span > longest {
			longest = w.Span
		}
	}
	entry.prune(now.Add(-longest))

	for _, w := range windows {
		if w.Max <= 0 {
			continue
		}
		if entry.countSince(now.Add(-w.Span)) >= w.Max {
			return false, nil
		}
	}
	entry.events = append(entry.events, now)
	return true, nil
}

// Prune drops events older than before across all keys.
func (s *MemoryRateStore) Prune(before time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, entry := range s.logs {
		entry.mu.Lock()
		entry.prune(before)
		if len(entry.events) == 0 {
			entry.removed = true
			delete(s.logs, key)
		}
		entry.mu.Unlock()
	}
}

func (l *eventLog) prune(before time.Time) {
	idx := 0
	for idx < len(l.events) && !l.events[idx].After(before) {
		idx++
	}
	if idx > 0 {
		l.events = append(l.events[:0], l.events[idx:]...)
	}
}

func (l *eventLog) countSince(since time.Time) int {
	count := 0
	for i := len(l.events) - 1; i >= 0; i-- {
		if !l.events[i].After(since) {
			break
		}
		count++
	}
	return count
}
