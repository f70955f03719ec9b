package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aquadrop/aquadrop/internal/identity"
	"github.com/aquadrop/aquadrop/internal/metrics"
)

// Session is a signed token handed to the client.
type Session struct {
	AccountID string
	Token     string
	Scope     string
	ExpiresAt time.Time
}

// Config wires a Service.
type Config struct {
	SessionTTL    time.Duration
	SetupTokenTTL time.Duration
	FailureDelay  time.Duration
}

// Service authenticates returning users by PIN and manages session tokens.
type Service struct {
	accounts *identity.Service
	tokens   *TokenManager
	lockout  Lockout
	cfg      Config
	logger   *slog.Logger
	metrics  metrics.Recorder
}

// NewService builds the PIN session manager.
func NewService(accounts *identity.Service, tokens *TokenManager, lockout Lockout, cfg Config, logger *slog.Logger, rec metrics.Recorder) *Service {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Service{accounts: accounts, tokens: tokens, lockout: lockout, cfg: cfg, logger: logger, metrics: rec}
}

// Login validates a 4-digit PIN for phone and issues a session token.
// Malformed PINs are rejected without touching the account store.
func (s *Service) Login(ctx context.Context, phone, pin string) (Session, error) {
	if !identity.ValidPIN(pin) {
		s.metrics.RecordLogin("invalid_input")
		return Session{}, ErrInvalidPIN
	}
	phone = identity.NormalizePhone(phone)

	locked, err := s.lockout.Locked(ctx, phone)
	if err != nil {
		return Session{}, err
	}
	if locked {
		s.metrics.RecordLogin("locked")
		return Session{}, ErrLockedOut
	}

	account, err := s.accounts.FindByPhone(ctx, phone)
	if errors.Is(err, identity.ErrNotFound) {
		return Session{}, s.fail(ctx, phone)
	}
	if err != nil {
		return Session{}, err
	}
	// An account without a PIN fails like a wrong PIN so responses do not
	// reveal which phones are registered.
	if !s.accounts.VerifyPIN(account, pin) {
		return Session{}, s.fail(ctx, phone)
	}

	if err := s.lockout.Reset(ctx, phone); err != nil {
		s.logger.Warn("reset lockout counter", slog.String("phone", phone), slog.Any("error", err))
	}
	if err := s.accounts.RecordLogin(ctx, account.ID); err != nil {
		s.logger.Warn("record login time", slog.String("account_id", account.ID), slog.Any("error", err))
	}

	session, err := s.issue(account, ScopeSession, s.cfg.SessionTTL)
	if err != nil {
		return Session{}, err
	}
	s.metrics.RecordLogin("success")
	s.logger.Info("login succeeded", slog.String("account_id", account.ID))
	return session, nil
}

func (s *Service) fail(ctx context.Context, phone string) error {
	s.metrics.RecordLogin("failure")
	locked, err := s.lockout.RecordFailure(ctx, phone)
	if err != nil {
		s.logger.Warn("record pin failure", slog.String("phone", phone), slog.Any("error", err))
	}
	if locked {
		s.metrics.RecordLockout()
		s.logger.Warn("phone locked after repeated PIN failures", slog.String("phone", phone))
	}
	if err := sleepCtx(ctx, s.cfg.FailureDelay); err != nil {
		return err
	}
	return ErrInvalidCredentials
}

// IssueSetupToken grants a freshly verified account the right to set its PIN.
func (s *Service) IssueSetupToken(account identity.Account) (Session, error) {
	return s.issue(account, ScopePINSetup, s.cfg.SetupTokenTTL)
}

// SetPIN stores the initial PIN for the account.
func (s *Service) SetPIN(ctx context.Context, accountID, pin string) error {
	if err := s.accounts.SetPIN(ctx, accountID, pin); err != nil {
		return err
	}
	s.logger.Info("pin set", slog.String("account_id", accountID))
	return nil
}

// ResetPIN is a placeholder until a recovery flow exists.
func (s *Service) ResetPIN(context.Context, string) error {
	return ErrPINResetUnsupported
}

// Logout invalidates every session issued to the account.
func (s *Service) Logout(ctx context.Context, accountID string) error {
	return s.accounts.RevokeSessions(ctx, accountID)
}

// Authenticate resolves a bearer token with the required scope to its account.
func (s *Service) Authenticate(ctx context.Context, token, scope string) (identity.Account, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return identity.Account{}, err
	}
	if claims.Scope != scope {
		return identity.Account{}, ErrInvalidToken
	}
	account, err := s.accounts.Get(ctx, claims.Subject)
	if errors.Is(err, identity.ErrNotFound) {
		return identity.Account{}, ErrInvalidToken
	}
	if err != nil {
		return identity.Account{}, err
	}
	if account.TokenVersion != claims.Version {
		return identity.Account{}, ErrInvalidToken
	}
	return account, nil
}

func (s *Service) issue(account identity.Account, scope string, ttl time.Duration) (Session, error) {
	token, exp, err := s.tokens.Issue(account, scope, ttl)
	if err != nil {
		return Session{}, err
	}
	return Session{AccountID: account.ID, Token: token, Scope: scope, ExpiresAt: exp}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
