package cache

import (
	"context"
	"time"

	"github.com/charlesng35/salesalert/internal/alerting"
)

// Store backs delivery rate limits and idempotency claims shared by every
// engine instance.
type Store interface {
	alerting.RateStore

	// Claim records key until ttl elapses. It returns false when the key is
	// already held.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release drops claims so the keys can be reused.
	Release(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
}

// Pruner is implemented by stores that need periodic cleanup of expired state.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

func longestSpan(windows []alerting.Window) time.Duration {
	var longest time.Duration
	for _, w := range windows {
		if w.Span > longest {
			longest = w.Span
		}
	}
	if longest <= 0 {
		longest = time.Hour
	}
	return longest
}
