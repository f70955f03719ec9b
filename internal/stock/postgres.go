package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLedger persists stock movements in PostgreSQL as double-entry postings.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger constructs a Postgres-backed stock ledger.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// Move records a balanced posting between two locations.
func (l *PostgresLedger) Move(ctx context.Context, m Movement) (Movement, error) {
	if m.Quantity <= 0 {
		return Movement{}, ErrInvalidQuantity
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Movement{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	fromID, err := lockLocation(ctx, tx, locationCode(m.From, m.SKU))
	if err != nil {
		return Movement{}, err
	}
	toID, err := lockLocation(ctx, tx, locationCode(m.To, m.SKU))
	if err != nil {
		return Movement{}, err
	}

	const existingQuery = `SELECT id, created_at FROM stock_movements WHERE client_ref = $1 AND kind = $2`
	var existingID uuid.UUID
	var existingAt time.Time
	if err := tx.QueryRow(ctx, existingQuery, m.ClientRef, m.Kind).Scan(&existingID, &existingAt); err == nil {
		fromLevel, err := levelForLocation(ctx, tx, fromID)
		if err != nil {
			return Movement{}, err
		}
		toLevel, err := levelForLocation(ctx, tx, toID)
		if err != nil {
			return Movement{}, err
		}
		m.ID, m.CreatedAt, m.FromLevel, m.ToLevel = existingID.String(), existingAt, fromLevel, toLevel
		return m, ErrDuplicateMovement
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return Movement{}, err
	}

	fromLevel, err := levelForLocation(ctx, tx, fromID)
	if err != nil {
		return Movement{}, err
	}
	if m.From != LocationProduction && fromLevel < m.Quantity {
		return Movement{}, ErrInsufficientStock
	}

	var createdBy *uuid.UUID
	if id, err := uuid.Parse(m.CreatedBy); err == nil {
		createdBy = &id
	}

	movementID := uuid.New()
	if err := tx.QueryRow(ctx, `INSERT INTO stock_movements (id, client_ref, kind, created_by) VALUES ($1, $2, $3, $4) RETURNING created_at`,
		movementID, m.ClientRef, m.Kind, createdBy).Scan(&m.CreatedAt); err != nil {
		return Movement{}, err
	}

	const entryQuery = `INSERT INTO stock_entries (id, movement_id, location_id, quantity) VALUES ($1, $2, $3, $4)`
	if _, err := tx.Exec(ctx, entryQuery, uuid.New(), movementID, fromID, -m.Quantity); err != nil {
		return Movement{}, err
	}
	if _, err := tx.Exec(ctx, entryQuery, uuid.New(), movementID, toID, m.Quantity); err != nil {
		return Movement{}, err
	}

	toLevel, err := levelForLocation(ctx, tx, toID)
	if err != nil {
		return Movement{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Movement{}, err
	}

	m.ID = movementID.String()
	m.FromLevel = fromLevel - m.Quantity
	m.ToLevel = toLevel
	return m, nil
}

// Level returns the summed quantity for a location and SKU.
func (l *PostgresLedger) Level(ctx context.Context, location, sku string) (int64, error) {
	const query = `
        SELECT COALESCE(SUM(e.quantity), 0)
        FROM stock_entries e
        INNER JOIN stock_locations l ON l.id = e.location_id
        WHERE l.code = $1`
	var level int64
	if err := l.db.QueryRow(ctx, query, locationCode(location, sku)).Scan(&level); err != nil {
		return 0, err
	}
	return level, nil
}

// Levels returns the quantity held at every known location.
func (l *PostgresLedger) Levels(ctx context.Context) ([]Level, error) {
	const query = `
        SELECT l.code, COALESCE(SUM(e.quantity), 0)
        FROM stock_locations l
        LEFT JOIN stock_entries e ON e.location_id = l.id
        GROUP BY l.code`
	rows, err := l.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Level
	for rows.Next() {
		var code string
		var qty int64
		if err := rows.Scan(&code, &qty); err != nil {
			return nil, err
		}
		location, sku := splitLocationCode(code)
		out = append(out, Level{Location: location, SKU: sku, Quantity: qty})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortLevels(out)
	return out, nil
}

// lockLocation creates the location row on first use and locks it for the
// rest of the transaction.
func lockLocation(ctx context.Context, tx pgx.Tx, code string) (uuid.UUID, error) {
	if _, err := tx.Exec(ctx, `INSERT INTO stock_locations (id, code) VALUES ($1, $2) ON CONFLICT (code) DO NOTHING`, uuid.New(), code); err != nil {
		return uuid.Nil, fmt.Errorf("ensure location %s: %w", code, err)
	}
	var id uuid.UUID
	if err := tx.QueryRow(ctx, `SELECT id FROM stock_locations WHERE code = $1 FOR UPDATE`, code).Scan(&id); err != nil {
		return uuid.Nil, fmt.Errorf("lock location %s: %w", code, err)
	}
	return id, nil
}

func levelForLocation(ctx context.Context, tx pgx.Tx, locationID uuid.UUID) (int64, error) {
	const query = `SELECT COALESCE(SUM(quantity), 0) FROM stock_entries WHERE location_id = $1`
	var level int64
	if err := tx.QueryRow(ctx, query, locationID).Scan(&level); err != nil {
		return 0, err
	}
	return level, nil
}
