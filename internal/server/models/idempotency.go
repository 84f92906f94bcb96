package models

import (
	"regexp"
	"time"

	"github.com/formvault/formvault/internal/common"
)

// IdempotencyTTL is how long a cached response remains a valid replay
// target after creation.
const IdempotencyTTL = 24 * time.Hour

// IdempotencyIndexCap bounds the per-scope index used for enumeration and
// bulk cleanup; the oldest entries are evicted past it.
const IdempotencyIndexCap = 1000

// idempotencyKeyPattern is the client-facing key contract: 16–128
// characters, alphanumeric plus '-' and '_'.
var idempotencyKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{16,128}$`)

// IdempotencyRecord caches the response of the first submission carrying a
// given (scope, key) pair. Unique per (scope, key).
type IdempotencyRecord struct {
	Scope     string
	Key       string
	Response  []byte
	CreatedAt time.Time
}

// NewIdempotencyRecord validates the key contract and builds a record.
// Validation failures happen before any storage access.
func NewIdempotencyRecord(scope, key string, response []byte) (*IdempotencyRecord, error) {
	if err := ValidateIdempotencyKey(key); err != nil {
		return nil, err
	}
	if scope == "" {
		return nil, common.ErrorValidation
	}
	return &IdempotencyRecord{
		Scope:     scope,
		Key:       key,
		Response:  response,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// ValidateIdempotencyKey enforces the key format contract.
func ValidateIdempotencyKey(key string) error {
	if !idempotencyKeyPattern.MatchString(key) {
		return common.ErrorValidation
	}
	return nil
}

// Expired reports whether the record is past its TTL at the given moment.
func (r *IdempotencyRecord) Expired(now time.Time) bool {
	return now.Sub(r.CreatedAt) > IdempotencyTTL
}

// Age returns how long ago the record was created.
func (r *IdempotencyRecord) Age(now time.Time) time.Duration {
	return now.Sub(r.CreatedAt)
}
