package revocation

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

// PostgresRepository implements Repository over dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert stores the revocation entry, refreshing it on re-revocation.
func (r *PostgresRepository) Insert(ctx context.Context, entry *models.RevokedTokenEntry) error {
	query := `
		INSERT INTO revoked_tokens (token_hash, revoked_at, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE
		SET revoked_at = EXCLUDED.revoked_at, expires_at = EXCLUDED.expires_at
	`
	if _, err := r.db.ExecContext(ctx, query, entry.TokenHash, entry.RevokedAt, entry.ExpiresAt); err != nil {
		return fmt.Errorf("error performing sql request: %v", err)
	}
	return nil
}

// Find returns the entry for tokenHash.
// If not found, it returns common.ErrorNotFound.
func (r *PostgresRepository) Find(ctx context.Context, tokenHash string) (*models.RevokedTokenEntry, error) {
	query := `
		SELECT revoked_at, expires_at
		FROM revoked_tokens
		WHERE token_hash = $1
	`
	entry := &models.RevokedTokenEntry{TokenHash: tokenHash}
	if err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(&entry.RevokedAt, &entry.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return entry, nil
}

// DeleteExpired prunes entries whose expiry has passed.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		DELETE FROM revoked_tokens
		WHERE expires_at <= $1
	`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return affected, nil
}
