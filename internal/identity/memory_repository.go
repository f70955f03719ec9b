package identity

import (
	"context"
	"sync"
	"time"
)

type memoryRepository struct {
	mu       sync.RWMutex
	accounts map[string]Account
}

// NewMemoryRepository builds an in-memory account store for tests and local development.
func NewMemoryRepository() Repository {
	return &memoryRepository{accounts: make(map[string]Account)}
}

func (r *memoryRepository) Create(_ context.Context, account Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.accounts[account.Phone]; exists {
		return ErrPhoneTaken
	}
	r.accounts[account.Phone] = account
	return nil
}

func (r *memoryRepository) FindByPhone(_ context.Context, phone string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	account, ok := r.accounts[phone]
	if !ok {
		return Account{}, ErrNotFound
	}
	return account, nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, account := range r.accounts {
		if account.ID == id {
			return account, nil
		}
	}
	return Account{}, ErrNotFound
}

func (r *memoryRepository) SetPINHash(_ context.Context, id string, hash []byte) error {
	return r.update(id, func(a *Account) error {
		if a.HasPIN() {
			return ErrPINAlreadySet
		}
		a.PINHash = hash
		return nil
	})
}

func (r *memoryRepository) BumpTokenVersion(_ context.Context, id string) error {
	return r.update(id, func(a *Account) error {
		a.TokenVersion++
		return nil
	})
}

func (r *memoryRepository) TouchLogin(_ context.Context, id string, at time.Time) error {
	return r.update(id, func(a *Account) error {
		at := at.UTC()
		a.LastLogin = &at
		return nil
	})
}

func (r *memoryRepository) update(id string, fn func(*Account) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for phone, account := range r.accounts {
		if account.ID == id {
			if err := fn(&account); err != nil {
				return err
			}
			r.accounts[phone] = account
			return nil
		}
	}
	return ErrNotFound
}
