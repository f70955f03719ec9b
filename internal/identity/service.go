package identity

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var pinPattern = regexp.MustCompile(`^\d{4}$`)

// ValidPIN reports whether pin is exactly four ASCII digits.
func ValidPIN(pin string) bool {
	return pinPattern.MatchString(pin)
}

// Service manages the account lifecycle.
type Service struct {
	repo Repository
	cost int
}

// NewService creates a new identity service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, cost: bcrypt.DefaultCost}
}

// WithHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func (s *Service) WithHashCost(cost int) *Service {
	s.cost = cost
	return s
}

// Create registers an account for a verified phone. No PIN is set.
func (s *Service) Create(ctx context.Context, name, phone string) (Account, error) {
	account := Account{
		ID:        uuid.New().String(),
		Name:      strings.TrimSpace(name),
		Phone:     phone,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, account); err != nil {
		return Account{}, err
	}
	return account, nil
}

// Get returns the account with the given id.
func (s *Service) Get(ctx context.Context, id string) (Account, error) {
	return s.repo.FindByID(ctx, id)
}

// FindByPhone returns the account registered for phone.
func (s *Service) FindByPhone(ctx context.Context, phone string) (Account, error) {
	return s.repo.FindByPhone(ctx, phone)
}

// SetPIN hashes and stores the account PIN. A PIN can only be set once.
func (s *Service) SetPIN(ctx context.Context, id, pin string) error {
	if !ValidPIN(pin) {
		return ErrInvalidPIN
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), s.cost)
	if err != nil {
		return err
	}
	return s.repo.SetPINHash(ctx, id, hash)
}

// VerifyPIN compares pin against the stored hash.
func (s *Service) VerifyPIN(account Account, pin string) bool {
	if !account.HasPIN() {
		return false
	}
	return bcrypt.CompareHashAndPassword(account.PINHash, []byte(pin)) == nil
}

// RecordLogin stamps the last login time.
func (s *Service) RecordLogin(ctx context.Context, id string) error {
	return s.repo.TouchLogin(ctx, id, time.Now())
}

// RevokeSessions bumps the token version so issued tokens stop validating.
func (s *Service) RevokeSessions(ctx context.Context, id string) error {
	return s.repo.BumpTokenVersion(ctx, id)
}
