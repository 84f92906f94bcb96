package idempotency

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/formvault/formvault/internal/common"
	"github.com/formvault/formvault/internal/dbx"
	"github.com/formvault/formvault/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX (satisfied by
// *sql.DB or *sql.Tx). The insert relies on the primary key on
// (scope, key) for its conditional semantics.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert performs the conditional insert. ON CONFLICT DO NOTHING makes the
// outcome atomic against a concurrent identical request.
func (r *PostgresRepository) Insert(ctx context.Context, rec *models.IdempotencyRecord) (bool, error) {
	query := `
		INSERT INTO idempotency_records (scope, key, response, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (scope, key) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query, rec.Scope, rec.Key, rec.Response, rec.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("error performing sql request: %v", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return affected == 1, nil
}

// Find returns the cached record for (scope, key).
// If not found, it returns common.ErrorNotFound.
func (r *PostgresRepository) Find(ctx context.Context, scope, key string) (*models.IdempotencyRecord, error) {
	query := `
		SELECT response, created_at
		FROM idempotency_records
		WHERE scope = $1 AND key = $2
	`
	rec := &models.IdempotencyRecord{Scope: scope, Key: key}
	if err := r.db.QueryRowContext(ctx, query, scope, key).Scan(&rec.Response, &rec.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

// Delete removes a single record by (scope, key).
func (r *PostgresRepository) Delete(ctx context.Context, scope, key string) error {
	query := `
		DELETE FROM idempotency_records
		WHERE scope = $1 AND key = $2
	`
	if _, err := r.db.ExecContext(ctx, query, scope, key); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// TrimScope evicts the oldest records of a scope beyond keep entries.
func (r *PostgresRepository) TrimScope(ctx context.Context, scope string, keep int) error {
	query := `
		DELETE FROM idempotency_records
		WHERE scope = $1 AND key NOT IN (
			SELECT key FROM idempotency_records
			WHERE scope = $1
			ORDER BY created_at DESC
			LIMIT $2
		)
	`
	if _, err := r.db.ExecContext(ctx, query, scope, keep); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// DeleteOlderThan removes every record in the scope created before cutoff.
func (r *PostgresRepository) DeleteOlderThan(ctx context.Context, scope string, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM idempotency_records
		WHERE scope = $1 AND created_at < $2
	`
	res, err := r.db.ExecContext(ctx, query, scope, cutoff)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return affected, nil
}
