package notification

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const debugSlotPrefix = "debug:verification:"

// ErrNoDebugCode is returned when the debug slot holds nothing for a phone.
var ErrNoDebugCode = errors.New("no debug code recorded")

// DebugSlot keeps the last verification code per phone so developers can
// read it without receiving the real message. Never wired in production.
type DebugSlot interface {
	Record(ctx context.Context, phone, code string) error
	Read(ctx context.Context, phone string) (string, error)
}

type redisDebugSlot struct {
	cache *redis.Client
	ttl   time.Duration
}

// NewRedisDebugSlot stores debug codes in Redis with the given ttl.
func NewRedisDebugSlot(cache *redis.Client, ttl time.Duration) DebugSlot {
	return &redisDebugSlot{cache: cache, ttl: ttl}
}

func (s *redisDebugSlot) Record(ctx context.Context, phone, code string) error {
	return s.cache.Set(ctx, debugSlotPrefix+phone, code, s.ttl).Err()
}

func (s *redisDebugSlot) Read(ctx context.Context, phone string) (string, error) {
	code, err := s.cache.Get(ctx, debugSlotPrefix+phone).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoDebugCode
	}
	return code, err
}

type memoryDebugSlot struct {
	mu    sync.Mutex
	codes map[string]string
}

// NewMemoryDebugSlot keeps debug codes in process memory.
func NewMemoryDebugSlot() DebugSlot {
	return &memoryDebugSlot{codes: make(map[string]string)}
}

func (s *memoryDebugSlot) Record(_ context.Context, phone, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[phone] = code
	return nil
}

func (s *memoryDebugSlot) Read(_ context.Context, phone string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.codes[phone]
	if !ok {
		return "", ErrNoDebugCode
	}
	return code, nil
}
