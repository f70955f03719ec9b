package auth

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/aquadrop/aquadrop/internal/identity"
	"github.com/aquadrop/aquadrop/internal/logging"
)

// countingRepo records how often accounts are looked up.
type countingRepo struct {
	identity.Repository
	lookups atomic.Int32
}

func (r *countingRepo) FindByPhone(ctx context.Context, phone string) (identity.Account, error) {
	r.lookups.Add(1)
	return r.Repository.FindByPhone(ctx, phone)
}

type fixture struct {
	svc  *Service
	ids  *identity.Service
	repo *countingRepo
}

func newFixture(t *testing.T, lockout Lockout) fixture {
	t.Helper()
	repo := &countingRepo{Repository: identity.NewMemoryRepository()}
	ids := identity.NewService(repo).WithHashCost(bcrypt.MinCost)
	if lockout == nil {
		lockout = NewMemoryLockout(LockoutConfig{Threshold: 3, Duration: time.Minute})
	}
	svc := NewService(ids, NewTokenManager("test-secret", "aquadrop"), lockout, Config{
		SessionTTL:    time.Hour,
		SetupTokenTTL: time.Minute,
	}, logging.Discard(), nil)
	return fixture{svc: svc, ids: ids, repo: repo}
}

func (f fixture) account(t *testing.T, phone, pin string) identity.Account {
	t.Helper()
	ctx := context.Background()
	account, err := f.ids.Create(ctx, "Asha", phone)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if pin != "" {
		if err := f.svc.SetPIN(ctx, account.ID, pin); err != nil {
			t.Fatalf("set pin: %v", err)
		}
	}
	return account
}

func TestLoginSuccessIssuesSession(t *testing.T) {
	fx := newFixture(t, nil)
	account := fx.account(t, "+15551234567", "4821")
	ctx := context.Background()

	session, err := fx.svc.Login(ctx, "+1 555 123 4567", "4821")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if session.AccountID != account.ID || session.Scope != ScopeSession {
		t.Fatalf("unexpected session %+v", session)
	}

	authed, err := fx.svc.Authenticate(ctx, session.Token, ScopeSession)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if authed.ID != account.ID || authed.LastLogin == nil {
		t.Fatalf("unexpected account %+v", authed)
	}
}

func TestLoginShortPINSkipsLookup(t *testing.T) {
	fx := newFixture(t, nil)
	fx.account(t, "+15551234567", "4821")

	for _, pin := range []string{"", "4", "48", "482", "48a1", "48211"} {
		if _, err := fx.svc.Login(context.Background(), "+15551234567", pin); !errors.Is(err, ErrInvalidPIN) {
			t.Fatalf("pin %q: expected ErrInvalidPIN, got %v", pin, err)
		}
	}
	if n := fx.repo.lookups.Load(); n != 0 {
		t.Fatalf("expected no lookups, got %d", n)
	}
}

func TestLoginWrongPINAndUnknownPhone(t *testing.T) {
	fx := newFixture(t, nil)
	fx.account(t, "+15551234567", "4821")
	ctx := context.Background()

	if _, err := fx.svc.Login(ctx, "+15551234567", "1111"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := fx.svc.Login(ctx, "+15550000000", "4821"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown phone, got %v", err)
	}
}

func TestLoginRequiresPINToBeSet(t *testing.T) {
	fx := newFixture(t, nil)
	account := fx.account(t, "+15551234567", "")
	ctx := context.Background()

	if _, err := fx.svc.Login(ctx, "+15551234567", "4821"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials before pin is set, got %v", err)
	}

	setup, err := fx.svc.IssueSetupToken(account)
	if err != nil {
		t.Fatalf("setup token: %v", err)
	}
	authed, err := fx.svc.Authenticate(ctx, setup.Token, ScopePINSetup)
	if err != nil {
		t.Fatalf("authenticate setup token: %v", err)
	}
	if err := fx.svc.SetPIN(ctx, authed.ID, "4821"); err != nil {
		t.Fatalf("set pin: %v", err)
	}
	if _, err := fx.svc.Login(ctx, "+15551234567", "4821"); err != nil {
		t.Fatalf("login after pin set: %v", err)
	}
}

func TestLockoutAfterRepeatedFailures(t *testing.T) {
	fx := newFixture(t, nil)
	fx.account(t, "+15551234567", "4821")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := fx.svc.Login(ctx, "+15551234567", "0000"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}
	if _, err := fx.svc.Login(ctx, "+15551234567", "4821"); !errors.Is(err, ErrLockedOut) {
		t.Fatalf("expected ErrLockedOut even with correct PIN, got %v", err)
	}
}

func TestSuccessfulLoginResetsFailures(t *testing.T) {
	fx := newFixture(t, nil)
	fx.account(t, "+15551234567", "4821")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _ = fx.svc.Login(ctx, "+15551234567", "0000")
	}
	if _, err := fx.svc.Login(ctx, "+15551234567", "4821"); err != nil {
		t.Fatalf("login: %v", err)
	}
	for i := 0; i < 2; i++ {
		_, _ = fx.svc.Login(ctx, "+15551234567", "0000")
	}
	if _, err := fx.svc.Login(ctx, "+15551234567", "4821"); err != nil {
		t.Fatalf("expected counter reset after success, got %v", err)
	}
}

func TestRedisLockout(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	l := NewRedisLockout(cache, LockoutConfig{Threshold: 2, Duration: time.Minute})
	ctx := context.Background()

	if locked, _ := l.RecordFailure(ctx, "+1555"); locked {
		t.Fatal("locked after one failure")
	}
	if locked, _ := l.RecordFailure(ctx, "+1555"); !locked {
		t.Fatal("expected lock at threshold")
	}
	if locked, err := l.Locked(ctx, "+1555"); err != nil || !locked {
		t.Fatalf("expected locked, got %v (%v)", locked, err)
	}

	mr.FastForward(2 * time.Minute)
	if locked, _ := l.Locked(ctx, "+1555"); locked {
		t.Fatal("expected lock to expire")
	}
}

func TestRedisLockoutCounterAlwaysExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	ctx := context.Background()
	// A counter left behind without a TTL picks one up on the next failure.
	if err := cache.Set(ctx, lockoutPrefix+"+1555", 3, 0).Err(); err != nil {
		t.Fatalf("seed: %v", err)
	}

	l := NewRedisLockout(cache, LockoutConfig{Threshold: 10, Duration: time.Minute})
	if _, err := l.RecordFailure(ctx, "+1555"); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if ttl := mr.TTL(lockoutPrefix + "+1555"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("expected counter ttl within window, got %s", ttl)
	}

	if _, err := l.RecordFailure(ctx, "+1777"); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if ttl := mr.TTL(lockoutPrefix + "+1777"); ttl != time.Minute {
		t.Fatalf("expected fresh counter ttl of 1m, got %s", ttl)
	}
}

func TestLogoutRevokesSessions(t *testing.T) {
	fx := newFixture(t, nil)
	fx.account(t, "+15551234567", "4821")
	ctx := context.Background()

	session, err := fx.svc.Login(ctx, "+15551234567", "4821")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := fx.svc.Logout(ctx, session.AccountID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := fx.svc.Authenticate(ctx, session.Token, ScopeSession); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected revoked token, got %v", err)
	}
}

func TestAuthenticateRejectsWrongScopeAndTampering(t *testing.T) {
	fx := newFixture(t, nil)
	account := fx.account(t, "+15551234567", "")
	ctx := context.Background()

	setup, _ := fx.svc.IssueSetupToken(account)
	if _, err := fx.svc.Authenticate(ctx, setup.Token, ScopeSession); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("setup token must not act as session, got %v", err)
	}
	if _, err := fx.svc.Authenticate(ctx, setup.Token+"x", ScopePINSetup); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected tampered token rejected, got %v", err)
	}

	other := NewTokenManager("other-secret", "aquadrop")
	forged, _, _ := other.Issue(account, ScopeSession, time.Hour)
	if _, err := fx.svc.Authenticate(ctx, forged, ScopeSession); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected forged token rejected, got %v", err)
	}
}

func TestTokenExpiry(t *testing.T) {
	tm := NewTokenManager("secret", "aquadrop")
	now := time.Now()
	tm.now = func() time.Time { return now }

	token, _, err := tm.Issue(identity.Account{ID: "a"}, ScopeSession, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	tm.now = func() time.Time { return now.Add(2 * time.Minute) }
	if _, err := tm.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token rejected, got %v", err)
	}
}

func TestFailureDelayHonoursContext(t *testing.T) {
	fx := newFixture(t, nil)
	fx.svc.cfg.FailureDelay = time.Hour
	fx.account(t, "+15551234567", "4821")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := fx.svc.Login(ctx, "+15551234567", "0000"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestLoginWithoutPINCountsTowardsLockout(t *testing.T) {
	fx := newFixture(t, nil)
	account := fx.account(t, "+15551234567", "")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := fx.svc.Login(ctx, "+15551234567", "4821"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}
	if err := fx.svc.SetPIN(ctx, account.ID, "4821"); err != nil {
		t.Fatalf("set pin: %v", err)
	}
	if _, err := fx.svc.Login(ctx, "+15551234567", "4821"); !errors.Is(err, ErrLockedOut) {
		t.Fatalf("expected ErrLockedOut, got %v", err)
	}
}
