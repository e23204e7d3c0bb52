package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/shopping-request-api/internal/sequence"
)

// SequenceRepository is the Postgres-backed counter behind request numbers.
type SequenceRepository struct {
	db *sqlx.DB
}

// NewSequenceRepository constructs the repository.
func NewSequenceRepository(db *sqlx.DB) *SequenceRepository {
	return &SequenceRepository{db: db}
}

// Increment creates the year row when absent, then bumps it in a single statement.
// The row lock taken by the UPDATE serialises concurrent callers.
func (r *SequenceRepository) Increment(ctx context.Context, year int) (int64, error) {
	const ensure = `INSERT INTO request_sequences (year, last_value, updated_at) VALUES ($1, 0, NOW()) ON CONFLICT (year) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, ensure, year); err != nil {
		return 0, fmt.Errorf("ensure sequence row: %w", err)
	}

	const bump = `UPDATE request_sequences SET last_value = last_value + 1, updated_at = NOW()
	WHERE year = $1 AND last_value < $2 RETURNING last_value`
	var value int64
	if err := r.db.GetContext(ctx, &value, bump, year, sequence.MaxPerYear); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%w: %d", sequence.ErrExhausted, year)
		}
		return 0, fmt.Errorf("increment sequence: %w", err)
	}
	return value, nil
}

// Last returns the last issued value for a year, zero when none was issued.
func (r *SequenceRepository) Last(ctx context.Context, year int) (int64, error) {
	const query = `SELECT last_value FROM request_sequences WHERE year = $1`
	var value int64
	if err := r.db.GetContext(ctx, &value, query, year); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("read sequence: %w", err)
	}
	return value, nil
}

// Save records a value handed out by another counter so the table never lags behind it.
func (r *SequenceRepository) Save(ctx context.Context, year int, value int64) error {
	const query = `INSERT INTO request_sequences (year, last_value, updated_at) VALUES ($1, $2, NOW())
	ON CONFLICT (year) DO UPDATE SET last_value = GREATEST(request_sequences.last_value, EXCLUDED.last_value), updated_at = NOW()`
	if _, err := r.db.ExecContext(ctx, query, year, value); err != nil {
		return fmt.Errorf("save sequence: %w", err)
	}
	return nil
}
