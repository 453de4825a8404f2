// Package lockout implements brute-force lockout for login attempts: a
// rolling failure counter plus an independent hard-lock flag, both kept in
// Redis with TTLs. Callers must fail closed when the store is unreachable;
// every method reports store failures as ErrUnavailable.
package lockout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrUnavailable wraps Redis failures. The login path treats it the
	// same as a locked account.
	ErrUnavailable = errors.New("lockout store unavailable")
)

// Config tunes the lockout policy.
type Config struct {
	// Threshold is the number of failures that triggers a hard lock.
	Threshold int
	// Window is the rolling-counter lifetime.
	Window time.Duration
	// LockDuration is the hard-lock lifetime, independent of Window so
	// the lock survives the counter expiring first.
	LockDuration time.Duration
	// Prefix namespaces the Redis keys.
	Prefix string
}

// Limiter decides whether login attempts for an account are blocked.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// The increment and the first-hit TTL must be one atomic unit, otherwise
// concurrent failures can each re-arm the window and it never closes.
var incrExpireScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// New creates a Limiter backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "lk"
	}
	return &Limiter{redis: redisClient, config: cfg}
}

// RecordFailure increments the rolling counter for the account, arming the
// window TTL only on the first increment, and sets the hard lock once the
// threshold is reached. Returns the attempt count.
func (l *Limiter) RecordFailure(ctx context.Context, accountID string) (int64, error) {
	count, err := incrExpireScript.Run(ctx, l.redis,
		[]string{l.counterKey(accountID)},
		l.config.Window.Milliseconds(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if count >= int64(l.config.Threshold) {
		if err := l.redis.Set(ctx, l.lockKey(accountID), "1", l.config.LockDuration).Err(); err != nil {
			return count, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return count, nil
}

// IsLocked reports whether the account is currently hard-locked. On store
// failure it returns true together with ErrUnavailable so the caller
// cannot accidentally fail open.
func (l *Limiter) IsLocked(ctx context.Context, accountID string) (bool, error) {
	locked, err := l.redis.Exists(ctx, l.lockKey(accountID)).Result()
	if err != nil {
		return true, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if locked > 0 {
		return true, nil
	}

	count, err := l.redis.Get(ctx, l.counterKey(accountID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return true, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return count >= int64(l.config.Threshold), nil
}

// Clear removes both the rolling counter and the hard lock. Called after a
// successful login.
func (l *Limiter) Clear(ctx context.Context, accountID string) error {
	if err := l.redis.Del(ctx, l.counterKey(accountID), l.lockKey(accountID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Attempts returns the current rolling counter value. Missing keys return
// zero and do not reveal account existence.
func (l *Limiter) Attempts(ctx context.Context, accountID string) (int64, error) {
	count, err := l.redis.Get(ctx, l.counterKey(accountID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return count, nil
}

func (l *Limiter) counterKey(accountID string) string {
	return l.config.Prefix + ":fail:" + accountID
}

func (l *Limiter) lockKey(accountID string) string {
	return l.config.Prefix + ":lock:" + accountID
}
