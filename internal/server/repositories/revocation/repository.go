// Package revocation declares the repository contract for the blocklist of
// invalidated session credentials.
package revocation

import (
	"context"
	"time"

	"github.com/formvault/formvault/internal/server/models"
)

// Repository stores revoked-token entries keyed by SHA-256 hash. Raw
// tokens never reach storage. Entries are kept until the underlying token
// would have expired anyway; pruning them earlier would let a revoked
// token be replayed.
type Repository interface {
	// Insert stores the entry. Re-revoking the same token refreshes the
	// existing row.
	Insert(ctx context.Context, entry *models.RevokedTokenEntry) error

	// Find returns the entry for tokenHash, or common.ErrorNotFound.
	Find(ctx context.Context, tokenHash string) (*models.RevokedTokenEntry, error)

	// DeleteExpired prunes entries past their expiry and reports how many
	// were removed. Defensive sweep on top of the TTL semantics.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
