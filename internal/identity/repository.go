package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// Repository persists accounts.
type Repository interface {
	Create(ctx context.Context, account Account) error
	FindByPhone(ctx context.Context, phone string) (Account, error)
	FindByID(ctx context.Context, id string) (Account, error)
	SetPINHash(ctx context.Context, id string, hash []byte) error
	BumpTokenVersion(ctx context.Context, id string) error
	TouchLogin(ctx context.Context, id string, at time.Time) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed account repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectAccount = `SELECT id, name, phone, pin_hash, token_version, created_at, last_login FROM accounts`

// Create inserts a new account.
func (r *PostgresRepository) Create(ctx context.Context, account Account) error {
	accountID, err := uuid.Parse(account.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO accounts (id, name, phone, pin_hash, token_version, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`, accountID, account.Name, account.Phone, account.PINHash, account.TokenVersion, account.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrPhoneTaken
	}
	return err
}

// FindByPhone fetches an account by phone number.
func (r *PostgresRepository) FindByPhone(ctx context.Context, phone string) (Account, error) {
	return scanAccount(r.db.QueryRow(ctx, selectAccount+` WHERE phone = $1`, phone))
}

// FindByID fetches an account by identifier.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (Account, error) {
	accountID, err := uuid.Parse(id)
	if err != nil {
		return Account{}, ErrNotFound
	}
	return scanAccount(r.db.QueryRow(ctx, selectAccount+` WHERE id = $1`, accountID))
}

// SetPINHash stores the PIN hash if none is set yet.
func (r *PostgresRepository) SetPINHash(ctx context.Context, id string, hash []byte) error {
	accountID, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, `UPDATE accounts SET pin_hash = $1 WHERE id = $2 AND pin_hash IS NULL`, hash, accountID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		if _, err := r.FindByID(ctx, id); err != nil {
			return err
		}
		return ErrPINAlreadySet
	}
	return nil
}

// BumpTokenVersion invalidates all outstanding session tokens.
func (r *PostgresRepository) BumpTokenVersion(ctx context.Context, id string) error {
	return r.execByID(ctx, `UPDATE accounts SET token_version = token_version + 1 WHERE id = $1`, id)
}

// TouchLogin records the time of the last successful login.
func (r *PostgresRepository) TouchLogin(ctx context.Context, id string, at time.Time) error {
	return r.execByID(ctx, `UPDATE accounts SET last_login = $2 WHERE id = $1`, id, at.UTC())
}

func (r *PostgresRepository) execByID(ctx context.Context, query, id string, args ...any) error {
	accountID, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, query, append([]any{accountID}, args...)...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var (
		id        uuid.UUID
		createdAt time.Time
		lastLogin *time.Time
		account   Account
	)
	if err := row.Scan(&id, &account.Name, &account.Phone, &account.PINHash, &account.TokenVersion, &createdAt, &lastLogin); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	account.ID = id.String()
	account.CreatedAt = createdAt.UTC()
	if lastLogin != nil {
		utc := lastLogin.UTC()
		account.LastLogin = &utc
	}
	return account, nil
}
