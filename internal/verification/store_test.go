package verification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type storeFactory func(t *testing.T, clock *fakeClock) Store

func stores() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(_ *testing.T, clock *fakeClock) Store {
			return NewMemoryStore(WithTTL(time.Minute), WithClock(clock.Now))
		},
		"redis": func(t *testing.T, clock *fakeClock) Store {
			mr := miniredis.RunT(t)
			cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { cache.Close() })
			return NewRedisStore(cache, WithTTL(time.Minute), WithClock(clock.Now))
		},
	}
}

func TestStorePutGetConsume(t *testing.T) {
	for name, factory := range stores() {
		t.Run(name, func(t *testing.T) {
			clock := &fakeClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
			s := factory(t, clock)
			ctx := context.Background()

			put, err := s.Put(ctx, "+15551234567", "4821", "Asha")
			if err != nil {
				t.Fatalf("put: %v", err)
			}
			if !put.ExpiresAt.Equal(put.CreatedAt.Add(time.Minute)) {
				t.Fatalf("unexpected expiry %s", put.ExpiresAt)
			}

			got, err := s.Get(ctx, "+15551234567")
			if err != nil || got.Code != "4821" || got.Name != "Asha" {
				t.Fatalf("get: %+v (%v)", got, err)
			}

			consumed, err := s.Consume(ctx, "+15551234567")
			if err != nil || consumed.Code != "4821" {
				t.Fatalf("consume: %+v (%v)", consumed, err)
			}
			if _, err := s.Consume(ctx, "+15551234567"); !errors.Is(err, ErrNotFoundOrExpired) {
				t.Fatalf("expected second consume to fail, got %v", err)
			}
			if _, err := s.Get(ctx, "+15551234567"); !errors.Is(err, ErrNotFoundOrExpired) {
				t.Fatalf("expected get after consume to fail, got %v", err)
			}
		})
	}
}

func TestStoreOverwrite(t *testing.T) {
	for name, factory := range stores() {
		t.Run(name, func(t *testing.T) {
			clock := &fakeClock{now: time.Now()}
			s := factory(t, clock)
			ctx := context.Background()

			first, _ := s.Put(ctx, "+1555", "1111", "A")
			if _, err := s.Put(ctx, "+1555", "2222", "A"); err != nil {
				t.Fatalf("put: %v", err)
			}

			// Discarding a superseded entry must not remove the newer one.
			if err := s.Discard(ctx, first); err != nil {
				t.Fatalf("discard: %v", err)
			}
			got, err := s.Get(ctx, "+1555")
			if err != nil || got.Code != "2222" {
				t.Fatalf("expected newest code, got %+v (%v)", got, err)
			}
		})
	}
}

func TestStoreDiscardCurrent(t *testing.T) {
	for name, factory := range stores() {
		t.Run(name, func(t *testing.T) {
			clock := &fakeClock{now: time.Now()}
			s := factory(t, clock)
			ctx := context.Background()

			p, _ := s.Put(ctx, "+1555", "1111", "A")
			if err := s.Discard(ctx, p); err != nil {
				t.Fatalf("discard: %v", err)
			}
			if _, err := s.Get(ctx, "+1555"); !errors.Is(err, ErrNotFoundOrExpired) {
				t.Fatalf("expected entry gone, got %v", err)
			}
		})
	}
}

func TestStoreExpiry(t *testing.T) {
	for name, factory := range stores() {
		t.Run(name, func(t *testing.T) {
			clock := &fakeClock{now: time.Now()}
			s := factory(t, clock)
			ctx := context.Background()

			if _, err := s.Put(ctx, "+1555", "1234", "A"); err != nil {
				t.Fatalf("put: %v", err)
			}
			clock.Advance(time.Minute)

			if _, err := s.Get(ctx, "+1555"); !errors.Is(err, ErrNotFoundOrExpired) {
				t.Fatalf("expected expired get, got %v", err)
			}
			if _, err := s.Consume(ctx, "+1555"); !errors.Is(err, ErrNotFoundOrExpired) {
				t.Fatalf("expected expired consume, got %v", err)
			}
		})
	}
}

func TestStoreConcurrentConsumeSingleWinner(t *testing.T) {
	for name, factory := range stores() {
		t.Run(name, func(t *testing.T) {
			clock := &fakeClock{now: time.Now()}
			s := factory(t, clock)
			ctx := context.Background()
			if _, err := s.Put(ctx, "+1555", "1234", "A"); err != nil {
				t.Fatalf("put: %v", err)
			}

			const workers = 8
			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				wins int
			)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := s.Consume(ctx, "+1555"); err == nil {
						mu.Lock()
						wins++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			if wins != 1 {
				t.Fatalf("expected exactly one consumer to win, got %d", wins)
			}
		})
	}
}

func TestStoreConcurrentPutNoTornRead(t *testing.T) {
	for name, factory := range stores() {
		t.Run(name, func(t *testing.T) {
			clock := &fakeClock{now: time.Now()}
			s := factory(t, clock)
			ctx := context.Background()

			var wg sync.WaitGroup
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					code := fmt.Sprintf("%d", 1000+i)
					if _, err := s.Put(ctx, "+1555", code, "name-"+code); err != nil {
						t.Errorf("put: %v", err)
					}
				}(i)
			}
			wg.Wait()

			got, err := s.Get(ctx, "+1555")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Name != "name-"+got.Code {
				t.Fatalf("torn entry: %+v", got)
			}
		})
	}
}
