package verification

import (
	"context"
	"time"
)

// DefaultTTL is how long a code stays valid unless configured otherwise.
const DefaultTTL = 10 * time.Minute

// Store keeps at most one pending verification per phone. Put overwrites,
// Consume atomically reads and deletes, and expired entries are never returned.
type Store interface {
	Put(ctx context.Context, phone, code, name string) (PendingVerification, error)
	Get(ctx context.Context, phone string) (PendingVerification, error)
	Consume(ctx context.Context, phone string) (PendingVerification, error)
	// Discard removes p only if it is still the current entry for its phone.
	Discard(ctx context.Context, p PendingVerification) error
}

// StoreOption configures a Store.
type StoreOption func(*storeOptions)

type storeOptions struct {
	ttl time.Duration
	now func() time.Time
}

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) StoreOption {
	return func(o *storeOptions) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) StoreOption {
	return func(o *storeOptions) { o.now = now }
}

func buildOptions(opts []StoreOption) storeOptions {
	o := storeOptions{ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o storeOptions) newPending(phone, code, name string) PendingVerification {
	now := o.now().UTC()
	return PendingVerification{
		Phone:     phone,
		Code:      code,
		Name:      name,
		CreatedAt: now,
		ExpiresAt: now.Add(o.ttl),
	}
}
