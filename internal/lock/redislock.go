package lock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/toko-fulfillment/internal/resilience"
)

// ErrNotConfigured is returned when the locker has no Redis client.
var ErrNotConfigured = errors.New("lock: redis client not configured")

// ErrTimeout is returned when a key could not be acquired before the context ended.
// The context error is wrapped alongside it.
var ErrTimeout = errors.New("lock: acquire timed out")

const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`

// Locker provides a Redis-backed distributed lock. Contended keys are retried
// with jittered exponential backoff starting at RetryBackoff, capped at RetryMax.
type Locker struct {
	R            *redis.Client
	RetryBackoff time.Duration
	RetryMax     time.Duration
}

// WithLock executes fn while holding a lock for the provided key. The lock is
// released automatically even if fn returns an error. When the lock cannot be
// acquired before the context is cancelled an error is returned.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	return l.WithLocks(ctx, []string{key}, ttl, fn)
}

// WithLocks acquires every key before running fn. Keys are deduplicated and taken in
// sorted order so that callers locking overlapping sets cannot deadlock each other.
// Locks already held are released if a later key cannot be acquired.
func (l Locker) WithLocks(ctx context.Context, keys []string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return ErrNotConfigured
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	ordered := normalise(keys)
	if len(ordered) == 0 {
		return errors.New("lock: no keys provided")
	}
	token := uuid.NewString()
	held := make([]string, 0, len(ordered))
	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.release(context.Background(), held[i], token)
		}
	}()
	for _, key := range ordered {
		if err := l.acquire(ctx, key, token, ttl); err != nil {
			return err
		}
		held = append(held, key)
	}
	return fn(ctx)
}

func (l Locker) acquire(ctx context.Context, key, token string, ttl time.Duration) error {
	base := l.RetryBackoff
	if base <= 0 {
		base = 50 * time.Millisecond
	}
	ceiling := l.RetryMax
	if ceiling <= 0 {
		ceiling = 8 * base
	}
	for attempt := 1; ; attempt++ {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %s: %w", ErrTimeout, key, ctx.Err())
			}
			return err
		}
		if ok {
			return nil
		}
		timer := time.NewTimer(resilience.Backoff(base, ceiling, attempt, 0.2))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %s: %w", ErrTimeout, key, ctx.Err())
		case <-timer.C:
		}
	}
}

func (l Locker) release(ctx context.Context, key, token string) {
	if err := l.R.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unknown command") {
			_ = l.R.Del(ctx, key).Err()
		}
	}
}

func normalise(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
