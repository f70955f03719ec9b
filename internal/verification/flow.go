package verification

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/aquadrop/aquadrop/internal/identity"
	"github.com/aquadrop/aquadrop/internal/metrics"
	"github.com/aquadrop/aquadrop/internal/notification"
)

// Sender delivers a verification code to a phone.
type Sender interface {
	SendVerification(ctx context.Context, phone, code string) (notification.DispatchResult, error)
}

// AccountStore creates an account once the phone is verified and looks up
// existing registrations.
type AccountStore interface {
	Create(ctx context.Context, name, phone string) (identity.Account, error)
	FindByPhone(ctx context.Context, phone string) (identity.Account, error)
}

// FlowConfig wires a Flow.
type FlowConfig struct {
	Store        Store
	Sender       Sender
	Accounts     AccountStore
	PhonePattern string
	Logger       *slog.Logger
	Metrics      metrics.Recorder
	// Generate overrides GenerateCode. Tests only.
	Generate func() (string, error)
}

// Flow runs phone registration: request a code, then confirm it to create
// the account.
type Flow struct {
	store    Store
	sender   Sender
	accounts AccountStore
	phone    *regexp.Regexp
	logger   *slog.Logger
	metrics  metrics.Recorder
	generate func() (string, error)
}

// NewFlow validates cfg and builds a Flow.
func NewFlow(cfg FlowConfig) (*Flow, error) {
	if cfg.Store == nil || cfg.Sender == nil || cfg.Accounts == nil {
		return nil, errors.New("verification flow requires a store, sender and account creator")
	}
	pattern, err := regexp.Compile(cfg.PhonePattern)
	if err != nil {
		return nil, fmt.Errorf("compile phone pattern: %w", err)
	}
	f := &Flow{
		store:    cfg.Store,
		sender:   cfg.Sender,
		accounts: cfg.Accounts,
		phone:    pattern,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		generate: cfg.Generate,
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	if f.metrics == nil {
		f.metrics = metrics.Nop{}
	}
	if f.generate == nil {
		f.generate = GenerateCode
	}
	return f, nil
}

// RequestCode issues a new code for phone, replacing any earlier one, and
// sends it. If delivery fails the new code is discarded.
func (f *Flow) RequestCode(ctx context.Context, name, phone string) (notification.DispatchResult, error) {
	name = strings.TrimSpace(name)
	phone = identity.NormalizePhone(phone)
	if name == "" {
		f.metrics.RecordVerification("request", "invalid")
		return notification.DispatchResult{}, ErrInvalidName
	}
	if !f.phone.MatchString(phone) {
		f.metrics.RecordVerification("request", "invalid")
		return notification.DispatchResult{}, ErrInvalidPhone
	}
	if err := f.ensureRegistrable(ctx, phone); err != nil {
		f.metrics.RecordVerification("request", "registered")
		return notification.DispatchResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return notification.DispatchResult{}, err
	}

	code, err := f.generate()
	if err != nil {
		return notification.DispatchResult{}, fmt.Errorf("generate code: %w", err)
	}

	pending, err := f.store.Put(ctx, phone, code, name)
	if err != nil {
		return notification.DispatchResult{}, err
	}

	res, err := f.sender.SendVerification(ctx, phone, code)
	if err != nil {
		// The caller may have gone away; the cleanup must still run.
		if derr := f.store.Discard(context.WithoutCancel(ctx), pending); derr != nil {
			f.logger.Warn("discard undelivered verification", slog.String("phone", phone), slog.Any("error", derr))
		}
		f.metrics.RecordVerification("request", "dispatch_failed")
		return res, err
	}

	f.metrics.RecordVerification("request", "sent")
	f.logger.Info("verification code sent", slog.String("phone", phone), slog.String("channel", res.Channel))
	return res, nil
}

// ConfirmCode checks code against the pending verification for phone and
// creates the account on a match. The pending entry is consumed by every
// attempt, so a wrong code requires a new request.
func (f *Flow) ConfirmCode(ctx context.Context, phone, code, name string) (identity.Account, error) {
	phone = identity.NormalizePhone(phone)

	pending, err := f.store.Consume(ctx, phone)
	if err != nil {
		if errors.Is(err, ErrNotFoundOrExpired) {
			f.metrics.RecordVerification("confirm", "not_found")
		}
		return identity.Account{}, err
	}

	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(code)), []byte(pending.Code)) != 1 {
		f.metrics.RecordVerification("confirm", "mismatch")
		f.logger.Info("verification code mismatch", slog.String("phone", phone))
		return identity.Account{}, ErrCodeMismatch
	}

	if name = strings.TrimSpace(name); name == "" {
		name = pending.Name
	}
	account, err := f.accounts.Create(ctx, name, phone)
	if errors.Is(err, identity.ErrPhoneTaken) {
		return f.resumeSetup(ctx, phone)
	}
	if err != nil {
		f.metrics.RecordVerification("confirm", "create_failed")
		return identity.Account{}, err
	}

	f.metrics.RecordVerification("confirm", "verified")
	f.logger.Info("account created", slog.String("account_id", account.ID), slog.String("phone", phone))
	return account, nil
}

// ensureRegistrable rejects phones whose account already has a PIN, before
// any code is generated or sent. Accounts still waiting for a PIN may verify
// again to recover their setup token.
func (f *Flow) ensureRegistrable(ctx context.Context, phone string) error {
	existing, err := f.accounts.FindByPhone(ctx, phone)
	if errors.Is(err, identity.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup account: %w", err)
	}
	if existing.HasPIN() {
		return identity.ErrPhoneTaken
	}
	return nil
}

// resumeSetup returns the existing account for a verified phone that never
// got a PIN, so the caller can issue a fresh setup token.
func (f *Flow) resumeSetup(ctx context.Context, phone string) (identity.Account, error) {
	existing, err := f.accounts.FindByPhone(ctx, phone)
	if err != nil {
		f.metrics.RecordVerification("confirm", "create_failed")
		return identity.Account{}, fmt.Errorf("lookup account: %w", err)
	}
	if existing.HasPIN() {
		f.metrics.RecordVerification("confirm", "registered")
		return identity.Account{}, identity.ErrPhoneTaken
	}
	f.metrics.RecordVerification("confirm", "resumed")
	f.logger.Info("verification resumed pin setup", slog.String("account_id", existing.ID), slog.String("phone", phone))
	return existing, nil
}
