// Package ratelimit declares the backend contract for fixed-window
// request counters. The backend is injected per deployment: Postgres in
// production, the in-memory backend for development and tests. Production
// code never depends on process-local state directly.
package ratelimit

import (
	"context"

	"github.com/formvault/formvault/internal/server/models"
)

// Backend stores one window counter per (identity, endpoint) pair.
// Counters are mutated read-modify-write; the layer accepts that two
// concurrent requests from the same client may both observe the same
// count.
type Backend interface {
	// Get returns the current window for (identity, endpoint), or
	// common.ErrorNotFound when the client has no open window.
	Get(ctx context.Context, identity, endpoint string) (*models.RateLimitWindow, error)

	// Put upserts the window.
	Put(ctx context.Context, w *models.RateLimitWindow) error

	// Delete removes the window. Deleting a non-existent window is not an
	// error.
	Delete(ctx context.Context, identity, endpoint string) error
}
