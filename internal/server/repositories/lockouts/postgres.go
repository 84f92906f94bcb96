package lockouts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/formvault/formvault/internal/common"
	"github.com/formvault/formvault/internal/dbx"
	"github.com/formvault/formvault/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Find returns the lockout row for identity.
// If not found, it returns common.ErrorNotFound.
func (r *PostgresRepository) Find(ctx context.Context, identity string) (*models.LockoutRecord, error) {
	query := `
		SELECT first_attempt, count, locked_until
		FROM lockout_records
		WHERE identity = $1
	`
	rec := &models.LockoutRecord{Identity: identity}
	var lockedUntil sql.NullTime
	if err := r.db.QueryRowContext(ctx, query, identity).Scan(&rec.FirstAttempt, &rec.Count, &lockedUntil); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if lockedUntil.Valid {
		rec.LockedUntil = lockedUntil.Time
	}
	return rec, nil
}

// Save upserts the lockout row. A zero LockedUntil is stored as NULL.
func (r *PostgresRepository) Save(ctx context.Context, rec *models.LockoutRecord) error {
	query := `
		INSERT INTO lockout_records (identity, first_attempt, count, locked_until)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (identity) DO UPDATE
		SET first_attempt = EXCLUDED.first_attempt, count = EXCLUDED.count, locked_until = EXCLUDED.locked_until
	`
	var lockedUntil sql.NullTime
	if !rec.LockedUntil.IsZero() {
		lockedUntil = sql.NullTime{Time: rec.LockedUntil, Valid: true}
	}
	if _, err := r.db.ExecContext(ctx, query, rec.Identity, rec.FirstAttempt, rec.Count, lockedUntil); err != nil {
		return fmt.Errorf("error performing sql request: %v", err)
	}
	return nil
}

// Delete removes the lockout row.
func (r *PostgresRepository) Delete(ctx context.Context, identity string) error {
	query := `
		DELETE FROM lockout_records
		WHERE identity = $1
	`
	if _, err := r.db.ExecContext(ctx, query, identity); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
