// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"

	"github.com/formvault/formvault/internal/dbx"
	"github.com/formvault/formvault/internal/server/migrations"
	"github.com/formvault/formvault/internal/server/repositories/idempotency"
	"github.com/formvault/formvault/internal/server/repositories/lockouts"
	"github.com/formvault/formvault/internal/server/repositories/ratelimit"
	"github.com/formvault/formvault/internal/server/repositories/revocation"
	"github.com/formvault/formvault/internal/server/repositories/submissions"
	"github.com/formvault/formvault/internal/server/repositories/webhooks"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository
// implementations and exposes a schema migration hook.
type PostgresRepositoryManager struct{}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager() (RepositoryManager, error) {
	return &PostgresRepositoryManager{}, nil
}

// Submissions returns a submissions.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Submissions(db dbx.DBTX) submissions.Repository {
	return submissions.NewPostgresRepository(db)
}

// Idempotency returns an idempotency.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Idempotency(db dbx.DBTX) idempotency.Repository {
	return idempotency.NewPostgresRepository(db)
}

// RateLimits returns a ratelimit.Backend bound to the provided DBTX.
func (m *PostgresRepositoryManager) RateLimits(db dbx.DBTX) ratelimit.Backend {
	return ratelimit.NewPostgresBackend(db)
}

// Lockouts returns a lockouts.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Lockouts(db dbx.DBTX) lockouts.Repository {
	return lockouts.NewPostgresRepository(db)
}

// Revocations returns a revocation.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Revocations(db dbx.DBTX) revocation.Repository {
	return revocation.NewPostgresRepository(db)
}

// Webhooks returns a webhooks.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Webhooks(db dbx.DBTX) webhooks.Repository {
	return webhooks.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetDialect("pgx")
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}
