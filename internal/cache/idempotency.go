package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrDuplicate is returned by Once when the key was already claimed.
var ErrDuplicate = errors.New("cache: duplicate idempotency key")

// DefaultIdempotencyTTL bounds how long a trigger key is remembered.
const DefaultIdempotencyTTL = 24 * time.Hour

// Claimer is the subset of Store used for idempotency.
type Claimer interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, keys ...string) error
}

// Once runs fn at most once per key within ttl. A failing fn releases the claim so
// the caller may retry. An empty key always runs fn.
func Once(ctx context.Context, claims Claimer, key string, ttl time.Duration, fn func(context.Context) error) error {
	key = strings.TrimSpace(key)
	if key == "" || claims == nil {
		return fn(ctx)
	}
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}

	claimKey := "idem:" + key
	ok, err := claims.Claim(ctx, claimKey, ttl)
	if err != nil {
		return fmt.Errorf("cache: claim idempotency key: %w", err)
	}
	if !ok {
		return ErrDuplicate
	}

	if err := fn(ctx); err != nil {
		if releaseErr := claims.Release(context.WithoutCancel(ctx), claimKey); releaseErr != nil {
			return errors.Join(err, releaseErr)
		}
		return err
	}
	return nil
}
