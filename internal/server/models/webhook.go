package models

import "time"

// Delivery attempt outcomes.
const (
	DeliveryOutcomeSuccess   = "success"
	DeliveryOutcomeTransient = "transient_failure"
	DeliveryOutcomePermanent = "permanent_failure"
)

// WebhookDeliveryAttempt records one delivery try for a submission's
// webhook. Appended to the per-submission delivery log for observability.
type WebhookDeliveryAttempt struct {
	SubmissionID string
	TargetURL    string
	Attempt      int
	StatusCode   int
	Outcome      string
	Error        string
	AttemptedAt  time.Time
}

// FailedWebhook is persisted when a delivery exhausts its retries, for
// later manual or batch retry. It is never surfaced to the submitter.
type FailedWebhook struct {
	SubmissionID string
	TargetURL    string
	Payload      []byte
	Attempts     int
	LastError    string
	FailedAt     time.Time
}
