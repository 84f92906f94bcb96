// Package webhooks declares the repository contract for the webhook
// delivery log and the failed-webhook queue.
package webhooks

import (
	"context"

	"github.com/formvault/formvault/internal/server/models"
)

// Repository persists delivery observability data. Attempts are
// append-only; failed webhooks are written once per exhausted delivery for
// later manual or batch retry.
type Repository interface {
	// AppendAttempt records one delivery try.
	AppendAttempt(ctx context.Context, a *models.WebhookDeliveryAttempt) error

	// ListAttempts returns the delivery log for a submission in attempt
	// order.
	ListAttempts(ctx context.Context, submissionID string) ([]*models.WebhookDeliveryAttempt, error)

	// SaveFailed persists a webhook whose retries were exhausted.
	SaveFailed(ctx context.Context, f *models.FailedWebhook) error

	// ListFailed returns up to limit failed webhooks, oldest first.
	ListFailed(ctx context.Context, limit int) ([]*models.FailedWebhook, error)
}
