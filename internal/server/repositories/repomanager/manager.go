package repomanager

import (
	"context"
	"database/sql"

	"github.com/formvault/formvault/internal/dbx"
	"github.com/formvault/formvault/internal/server/repositories/idempotency"
	"github.com/formvault/formvault/internal/server/repositories/lockouts"
	"github.com/formvault/formvault/internal/server/repositories/ratelimit"
	"github.com/formvault/formvault/internal/server/repositories/revocation"
	"github.com/formvault/formvault/internal/server/repositories/submissions"
	"github.com/formvault/formvault/internal/server/repositories/webhooks"
)

// RepositoryManager vends repository implementations bound to a DBTX, so
// services can run several repositories inside one transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Submissions(db dbx.DBTX) submissions.Repository
	Idempotency(db dbx.DBTX) idempotency.Repository
	RateLimits(db dbx.DBTX) ratelimit.Backend
	Lockouts(db dbx.DBTX) lockouts.Repository
	Revocations(db dbx.DBTX) revocation.Repository
	Webhooks(db dbx.DBTX) webhooks.Repository
}
