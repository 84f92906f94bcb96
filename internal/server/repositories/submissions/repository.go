// Package submissions declares the repository contract for submission
// metadata rows. The envelope body itself lives in object storage; these
// rows never contain plaintext or ciphertext.
package submissions

import (
	"context"

	"github.com/formvault/formvault/internal/server/models"
)

// Repository persists submission records. Records are immutable once
// created.
type Repository interface {
	// Create inserts the record.
	Create(ctx context.Context, s *models.Submission) error

	// Find returns the record for (formID, id), or common.ErrorNotFound.
	Find(ctx context.Context, formID, id string) (*models.Submission, error)
}
