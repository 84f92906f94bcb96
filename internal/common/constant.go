package common

// Header names understood by the submission boundary.
const (
	// IdempotencyKeyHeader is the primary request header carrying the
	// client-supplied idempotency key. IdempotencyKeyHeaderAlt is the
	// accepted fallback spelling.
	IdempotencyKeyHeader    = "X-Idempotency-Key"
	IdempotencyKeyHeaderAlt = "Idempotency-Key"

	// Replay response headers.
	IdempotentReplayHeader   = "X-Idempotent-Replay"
	IdempotencyAgeHeader     = "X-Idempotency-Age"
	IdempotencyCreatedHeader = "X-Idempotency-Created"

	// Rate limiting response headers.
	RateLimitRemainingHeader = "X-RateLimit-Remaining"
	RetryAfterHeader         = "Retry-After"

	// WebhookSignatureHeader carries the hex HMAC-SHA256 of the raw
	// webhook body.
	WebhookSignatureHeader = "X-Signature"
)
