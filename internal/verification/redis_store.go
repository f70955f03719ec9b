package verification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "verification:v1:"

// consumeScript atomically returns and deletes the record.
var consumeScript = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return false
end
redis.call('DEL', KEYS[1])
return data
`)

// discardScript deletes the record only if it still holds ARGV[1].
var discardScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

type redisStore struct {
	cache *redis.Client
	opts  storeOptions
}

// NewRedisStore builds a Store backed by Redis. Keys carry a TTL so abandoned
// verifications are evicted by Redis itself.
func NewRedisStore(cache *redis.Client, opts ...StoreOption) Store {
	return &redisStore{cache: cache, opts: buildOptions(opts)}
}

func (s *redisStore) key(phone string) string {
	return redisKeyPrefix + phone
}

func (s *redisStore) Put(ctx context.Context, phone, code, name string) (PendingVerification, error) {
	p := s.opts.newPending(phone, code, name)
	payload, err := json.Marshal(p)
	if err != nil {
		return PendingVerification{}, err
	}
	if err := s.cache.Set(ctx, s.key(phone), payload, s.opts.ttl).Err(); err != nil {
		return PendingVerification{}, fmt.Errorf("store verification: %w", err)
	}
	return p, nil
}

func (s *redisStore) Get(ctx context.Context, phone string) (PendingVerification, error) {
	data, err := s.cache.Get(ctx, s.key(phone)).Result()
	if errors.Is(err, redis.Nil) {
		return PendingVerification{}, ErrNotFoundOrExpired
	}
	if err != nil {
		return PendingVerification{}, fmt.Errorf("load verification: %w", err)
	}
	return s.decode(data)
}

func (s *redisStore) Consume(ctx context.Context, phone string) (PendingVerification, error) {
	data, err := consumeScript.Run(ctx, s.cache, []string{s.key(phone)}).Text()
	if errors.Is(err, redis.Nil) {
		return PendingVerification{}, ErrNotFoundOrExpired
	}
	if err != nil {
		return PendingVerification{}, fmt.Errorf("consume verification: %w", err)
	}
	return s.decode(data)
}

func (s *redisStore) Discard(ctx context.Context, p PendingVerification) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := discardScript.Run(ctx, s.cache, []string{s.key(p.Phone)}, string(payload)).Err(); err != nil {
		return fmt.Errorf("discard verification: %w", err)
	}
	return nil
}

func (s *redisStore) decode(data string) (PendingVerification, error) {
	var p PendingVerification
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return PendingVerification{}, fmt.Errorf("decode verification: %w", err)
	}
	if p.Expired(s.opts.now()) {
		return PendingVerification{}, ErrNotFoundOrExpired
	}
	return p, nil
}
