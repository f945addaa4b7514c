package cache

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/charlesng35/salesalert/internal/alerting"
)

const (
	defaultRedisTimeout = 5 * time.Second
	defaultKeyPrefix    = "salesalert:"
)

// RedisConfig describes how to connect to Redis.
type RedisConfig struct {
	Address  string
	URL      string
	Username string
	Password string
	DB       int
	TLS      bool
	Timeout  time.Duration
	Prefix   string
}

// reserveScript trims the bucket to the longest window, checks every window
// and records the event only when all pass.
//
// KEYS[1] bucket; ARGV[1] now (ms); ARGV[2] member; ARGV[3] longest span (ms);
// ARGV[4..] pairs of span (ms) and max.
var reserveScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local longest = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - longest)
for i = 4, #ARGV, 2 do
  local span = tonumber(ARGV[i])
  local max = tonumber(ARGV[i + 1])
  if max > 0 then
    local count = redis.call('ZCOUNT', KEYS[1], '(' .. (now - span), '+inf')
    if count >= max then
      return 0
    end
  end
end
redis.call('ZADD', KEYS[1], now, ARGV[2])
redis.call('PEXPIRE', KEYS[1], longest)
return 1
`)

// RedisStore implements Store on a go-redis client.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisClient dials Redis and verifies the connection.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	opts, err := redisOptions(cfg)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", opts.Addr, err)
	}
	return client, nil
}

func redisOptions(cfg RedisConfig) (*redis.Options, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRedisTimeout
	}

	var opts *redis.Options
	if url := strings.TrimSpace(cfg.URL); url != "" {
		parsed, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("redis: parse url: %w", err)
		}
		opts = parsed
	} else {
		address := strings.TrimSpace(cfg.Address)
		if address == "" {
			return nil, errors.New("redis: address is required")
		}
		opts = &redis.Options{
			Addr:     address,
			Username: cfg.Username,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
		if cfg.TLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
	}
	opts.DialTimeout = timeout
	opts.ReadTimeout = timeout
	opts.WriteTimeout = timeout
	return opts, nil
}

// NewRedisStore wraps client. An empty prefix uses "salesalert:".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Client exposes the underlying client for health checks.
func (s *RedisStore) Client() redis.UniversalClient {
	return s.client
}

// Reserve implements alerting.RateStore with a sorted set per bucket.
func (s *RedisStore) Reserve(ctx context.Context, key string, now time.Time, windows []alerting.Window) (bool, error) {
	args := reserveArgs(now, uuid.NewString(), windows)
	result, err := reserveScript.Run(ctx, s.client, []string{s.key("rate:" + key)}, args...).Int()
	if err != nil {
		return false, fmt.Errorf("redis: reserve %s: %w", key, err)
	}
	return result == 1, nil
}

func reserveArgs(now time.Time, member string, windows []alerting.Window) []any {
	args := []any{
		strconv.FormatInt(now.UnixMilli(), 10),
		member,
		strconv.FormatInt(longestSpan(windows).Milliseconds(), 10),
	}
	for _, w := range windows {
		args = append(args, strconv.FormatInt(w.Span.Milliseconds(), 10), strconv.Itoa(w.Max))
	}
	return args
}

// Claim implements Store with SET NX.
func (s *RedisStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.key("claim:"+key), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: claim %s: %w", key, err)
	}
	return ok, nil
}

// Release implements Store.
func (s *RedisStore) Release(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = s.key("claim:" + key)
	}
	if err := s.client.Del(ctx, prefixed...).Err(); err != nil {
		return fmt.Errorf("redis: release: %w", err)
	}
	return nil
}

// Ping implements Store.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(key string) string {
	return s.prefix + key
}
