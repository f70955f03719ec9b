package verification

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu      sync.Mutex
	opts    storeOptions
	pending map[string]PendingVerification
}

// NewMemoryStore builds a process-local Store.
func NewMemoryStore(opts ...StoreOption) Store {
	return &memoryStore{opts: buildOptions(opts), pending: make(map[string]PendingVerification)}
}

func (s *memoryStore) Put(_ context.Context, phone, code, name string) (PendingVerification, error) {
	p := s.opts.newPending(phone, code, name)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[phone] = p
	return p, nil
}

func (s *memoryStore) Get(_ context.Context, phone string) (PendingVerification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(phone, false)
}

func (s *memoryStore) Consume(_ context.Context, phone string) (PendingVerification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(phone, true)
}

func (s *memoryStore) Discard(_ context.Context, p PendingVerification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.pending[p.Phone]; ok && cur.Code == p.Code && cur.CreatedAt.Equal(p.CreatedAt) {
		delete(s.pending, p.Phone)
	}
	return nil
}

// lookup must be called with s.mu held.
func (s *memoryStore) lookup(phone string, remove bool) (PendingVerification, error) {
	p, ok := s.pending[phone]
	if !ok {
		return PendingVerification{}, ErrNotFoundOrExpired
	}
	if p.Expired(s.opts.now()) {
		delete(s.pending, phone)
		return PendingVerification{}, ErrNotFoundOrExpired
	}
	if remove {
		delete(s.pending, phone)
	}
	return p, nil
}
