package ratelimit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/formvault/formvault/internal/common"
	"github.com/formvault/formvault/internal/dbx"
	"github.com/formvault/formvault/internal/server/models"
)

// PostgresBackend implements Backend over dbx.DBTX.
type PostgresBackend struct {
	db dbx.DBTX
}

// NewPostgresBackend constructs a backend bound to the given DBTX.
func NewPostgresBackend(db dbx.DBTX) *PostgresBackend {
	return &PostgresBackend{db: db}
}

// Get returns the window row for (identity, endpoint).
// If not found, it returns common.ErrorNotFound.
func (b *PostgresBackend) Get(ctx context.Context, identity, endpoint string) (*models.RateLimitWindow, error) {
	query := `
		SELECT window_start, count
		FROM rate_limit_windows
		WHERE identity = $1 AND endpoint = $2
	`
	w := &models.RateLimitWindow{Identity: identity, Endpoint: endpoint}
	if err := b.db.QueryRowContext(ctx, query, identity, endpoint).Scan(&w.WindowStart, &w.Count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return w, nil
}

// Put upserts the window row.
func (b *PostgresBackend) Put(ctx context.Context, w *models.RateLimitWindow) error {
	query := `
		INSERT INTO rate_limit_windows (identity, endpoint, window_start, count)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (identity, endpoint) DO UPDATE
		SET window_start = EXCLUDED.window_start, count = EXCLUDED.count
	`
	if _, err := b.db.ExecContext(ctx, query, w.Identity, w.Endpoint, w.WindowStart, w.Count); err != nil {
		return fmt.Errorf("error performing sql request: %v", err)
	}
	return nil
}

// Delete removes the window row.
func (b *PostgresBackend) Delete(ctx context.Context, identity, endpoint string) error {
	query := `
		DELETE FROM rate_limit_windows
		WHERE identity = $1 AND endpoint = $2
	`
	if _, err := b.db.ExecContext(ctx, query, identity, endpoint); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
