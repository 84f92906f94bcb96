// Package idempotency declares the server-side repository contract for
// deduplicating submissions by client-supplied idempotency key.
package idempotency

import (
	"context"
	"time"

	"github.com/formvault/formvault/internal/server/models"
)

// Repository defines operations over idempotency records.
//
// At-most-once processing holds only when Insert is a conditional insert
// in the backing store (compare-and-swap semantics); a read-then-write
// emulation reopens the check-then-act race under concurrent duplicates.
type Repository interface {
	// Insert stores the record unless one already exists for its
	// (scope, key). It returns true when the record was newly created and
	// false when a prior record won the race.
	Insert(ctx context.Context, rec *models.IdempotencyRecord) (bool, error)

	// Find returns the record for (scope, key), or common.ErrorNotFound.
	Find(ctx context.Context, scope, key string) (*models.IdempotencyRecord, error)

	// Delete removes a single record. Deleting a non-existent record is
	// not an error.
	Delete(ctx context.Context, scope, key string) error

	// TrimScope evicts the oldest records of a scope beyond keep entries,
	// bounding the per-scope index.
	TrimScope(ctx context.Context, scope string, keep int) error

	// DeleteOlderThan removes every record in the scope created before
	// cutoff and reports how many were deleted. Used by the periodic
	// cleanup sweep.
	DeleteOlderThan(ctx context.Context, scope string, cutoff time.Time) (int64, error)
}
