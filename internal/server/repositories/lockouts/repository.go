// Package lockouts declares the server-side repository contract for
// failed-authentication tracking and progressive account lockout.
package lockouts

import (
	"context"

	"github.com/formvault/formvault/internal/server/models"
)

// Repository defines operations over lockout records. Records self-heal:
// the service deletes them once the lock window has elapsed or on a
// successful authentication.
type Repository interface {
	// Find returns the lockout record for identity, or
	// common.ErrorNotFound.
	Find(ctx context.Context, identity string) (*models.LockoutRecord, error)

	// Save upserts the record.
	Save(ctx context.Context, rec *models.LockoutRecord) error

	// Delete removes the record entirely. Deleting a non-existent record
	// is not an error.
	Delete(ctx context.Context, identity string) error
}
