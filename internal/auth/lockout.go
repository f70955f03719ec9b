package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockoutConfig controls failed PIN attempt handling.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

// Lockout counts failed PIN attempts per phone number.
type Lockout interface {
	Locked(ctx context.Context, key string) (bool, error)
	// RecordFailure returns true once the threshold is reached.
	RecordFailure(ctx context.Context, key string) (bool, error)
	Reset(ctx context.Context, key string) error
}

const lockoutPrefix = "pin:fail:"

// recordFailureScript increments the counter and starts its window in one
// step, so a counter can never be left without a TTL.
var recordFailureScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 or redis.call('PTTL', KEYS[1]) < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return count
`)

type redisLockout struct {
	cache *redis.Client
	cfg   LockoutConfig
}

// NewRedisLockout keeps failure counters in Redis. The counter expires
// Duration after the first failure in a window.
func NewRedisLockout(cache *redis.Client, cfg LockoutConfig) Lockout {
	return &redisLockout{cache: cache, cfg: cfg}
}

func (l *redisLockout) Locked(ctx context.Context, key string) (bool, error) {
	if l.cfg.Threshold <= 0 {
		return false, nil
	}
	count, err := l.cache.Get(ctx, lockoutPrefix+key).Int64()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read lockout: %w", err)
	}
	return count >= int64(l.cfg.Threshold), nil
}

func (l *redisLockout) RecordFailure(ctx context.Context, key string) (bool, error) {
	if l.cfg.Threshold <= 0 {
		return false, nil
	}
	count, err := recordFailureScript.Run(ctx, l.cache, []string{lockoutPrefix + key}, l.cfg.Duration.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("record failure: %w", err)
	}
	return count >= int64(l.cfg.Threshold), nil
}

func (l *redisLockout) Reset(ctx context.Context, key string) error {
	return l.cache.Del(ctx, lockoutPrefix+key).Err()
}

type failureWindow struct {
	count   int
	expires time.Time
}

type memoryLockout struct {
	mu       sync.Mutex
	cfg      LockoutConfig
	now      func() time.Time
	failures map[string]failureWindow
}

// NewMemoryLockout keeps failure counters in process memory.
func NewMemoryLockout(cfg LockoutConfig) Lockout {
	return &memoryLockout{cfg: cfg, now: time.Now, failures: make(map[string]failureWindow)}
}

func (l *memoryLockout) Locked(_ context.Context, key string) (bool, error) {
	if l.cfg.Threshold <= 0 {
		return false, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.window(key).count >= l.cfg.Threshold, nil
}

func (l *memoryLockout) RecordFailure(_ context.Context, key string) (bool, error) {
	if l.cfg.Threshold <= 0 {
		return false, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	w := l.window(key)
	if w.count == 0 {
		w.expires = l.now().Add(l.cfg.Duration)
	}
	w.count++
	l.failures[key] = w
	return w.count >= l.cfg.Threshold, nil
}

func (l *memoryLockout) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.failures, key)
	return nil
}

// window must be called with l.mu held.
func (l *memoryLockout) window(key string) failureWindow {
	w, ok := l.failures[key]
	if ok && !l.now().Before(w.expires) {
		delete(l.failures, key)
		return failureWindow{}
	}
	return w
}
