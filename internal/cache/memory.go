package cache

import (
	"context"
	"sync"
	"time"

	"github.com/charlesng35/salesalert/internal/alerting"
)

// MemoryStore keeps rate buckets and claims in process. It is only correct
// for a single engine instance.
type MemoryStore struct {
	rates *alerting.MemoryRateStore

	mu     sync.Mutex
	claims map[string]time.Time
	now    func() time.Time
}

// NewMemoryStore constructs an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rates:  alerting.NewMemoryRateStore(),
		claims: make(map[string]time.Time),
		now:    time.Now,
	}
}

// Reserve implements alerting.RateStore.
func (s *MemoryStore) Reserve(ctx context.Context, key string, now time.Time, windows []alerting.Window) (bool, error) {
	return s.rates.Reserve(ctx, key, now, windows)
}

// Claim implements Store.
func (s *MemoryStore) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if expires, ok := s.claims[key]; ok && now.Before(expires) {
		return false, nil
	}
	s.claims[key] = now.Add(ttl)
	return true, nil
}

// Release implements Store.
func (s *MemoryStore) Release(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.claims, key)
	}
	return nil
}

// Ping implements Store.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Prune drops rate events older than before and expired claims.
func (s *MemoryStore) Prune(_ context.Context, before time.Time) (int64, error) {
	s.rates.Prune(before)

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var removed int64
	for key, expires := range s.claims {
		if !now.Before(expires) {
			delete(s.claims, key)
			removed++
		}
	}
	return removed, nil
}
