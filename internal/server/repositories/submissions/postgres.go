package submissions

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

// Create inserts the submission row.
func (r *PostgresRepository) Create(ctx context.Context, s *models.Submission) error {
	query := `
		INSERT INTO submissions (id, form_id, storage_key, received_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.db.ExecContext(ctx, query, s.ID, s.FormID, s.StorageKey, s.ReceivedAt); err != nil {
		return fmt.Errorf("error performing sql request: %v", err)
	}
	return nil
}

// Find returns the submission row for (formID, id).
// If not found, it returns common.ErrorNotFound.
func (r *PostgresRepository) Find(ctx context.Context, formID, id string) (*models.Submission, error) {
	query := `
		SELECT storage_key, received_at
		FROM submissions
		WHERE form_id = $1 AND id = $2
	`
	s := &models.Submission{ID: id, FormID: formID}
	if err := r.db.QueryRowContext(ctx, query, formID, id).Scan(&s.StorageKey, &s.ReceivedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}
