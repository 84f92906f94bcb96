package webhooks

import (
	"context"
	"fmt"

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

// AppendAttempt records one delivery try in the per-submission log.
func (r *PostgresRepository) AppendAttempt(ctx context.Context, a *models.WebhookDeliveryAttempt) error {
	query := `
		INSERT INTO webhook_delivery_attempts (submission_id, target_url, attempt, status_code, outcome, error, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := r.db.ExecContext(ctx, query, a.SubmissionID, a.TargetURL, a.Attempt, a.StatusCode, a.Outcome, a.Error, a.AttemptedAt); err != nil {
		return fmt.Errorf("error performing sql request: %v", err)
	}
	return nil
}

// ListAttempts returns the delivery log for a submission in attempt order.
func (r *PostgresRepository) ListAttempts(ctx context.Context, submissionID string) ([]*models.WebhookDeliveryAttempt, error) {
	query := `
		SELECT target_url, attempt, status_code, outcome, error, attempted_at
		FROM webhook_delivery_attempts
		WHERE submission_id = $1
		ORDER BY attempt
	`
	rows, err := r.db.QueryContext(ctx, query, submissionID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	attempts := make([]*models.WebhookDeliveryAttempt, 0)
	for rows.Next() {
		a := &models.WebhookDeliveryAttempt{SubmissionID: submissionID}
		if err := rows.Scan(&a.TargetURL, &a.Attempt, &a.StatusCode, &a.Outcome, &a.Error, &a.AttemptedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return attempts, nil
}

// SaveFailed persists a webhook whose retries were exhausted.
func (r *PostgresRepository) SaveFailed(ctx context.Context, f *models.FailedWebhook) error {
	query := `
		INSERT INTO failed_webhooks (submission_id, target_url, payload, attempts, last_error, failed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := r.db.ExecContext(ctx, query, f.SubmissionID, f.TargetURL, f.Payload, f.Attempts, f.LastError, f.FailedAt); err != nil {
		return fmt.Errorf("error performing sql request: %v", err)
	}
	return nil
}

// ListFailed returns up to limit failed webhooks, oldest first.
func (r *PostgresRepository) ListFailed(ctx context.Context, limit int) ([]*models.FailedWebhook, error) {
	query := `
		SELECT submission_id, target_url, payload, attempts, last_error, failed_at
		FROM failed_webhooks
		ORDER BY failed_at
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	failed := make([]*models.FailedWebhook, 0)
	for rows.Next() {
		f := &models.FailedWebhook{}
		if err := rows.Scan(&f.SubmissionID, &f.TargetURL, &f.Payload, &f.Attempts, &f.LastError, &f.FailedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		failed = append(failed, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return failed, nil
}
