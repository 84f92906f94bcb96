package services

import (
	"context"
	"errors"
	"time"

	"github.com/formvault/formvault/internal/common"
	"github.com/formvault/formvault/internal/logging"
	"github.com/formvault/formvault/internal/server/config"
	"github.com/formvault/formvault/internal/server/models"
	"github.com/formvault/formvault/internal/server/repositories/ratelimit"
)

// Endpoint classes sharing one throttle cap each.
const (
	EndpointSubmit = "submit"
	EndpointAuth   = "auth"
)

// UnknownIdentity is the shared bucket for requests whose client identity
// cannot be derived. Anonymous traffic throttles collectively rather than
// bypassing the limiter.
const UnknownIdentity = "unknown"

// RateLimitDecision is the outcome of one admission check.
type RateLimitDecision struct {
	Allowed    bool
	Remaining  int
	RetryAfter int
}

// RateLimitService enforces fixed-window request caps per (identity,
// endpoint class). The backend is injected per deployment; when it is
// unreachable the check fails open with a logged warning, because
// throttling is a protection layer and must not become an outage.
type RateLimitService struct {
	backend ratelimit.Backend
	logger  logging.Logger
	window  time.Duration
	limits  map[string]int
}

// NewRateLimitService builds the limiter from server config.
func NewRateLimitService(backend ratelimit.Backend, logger logging.Logger, cfg *config.Config) *RateLimitService {
	return &RateLimitService{
		backend: backend,
		logger:  logger.With("module", "ratelimit_service"),
		window:  cfg.RateLimitWindow,
		limits: map[string]int{
			EndpointSubmit: cfg.SubmitRateLimit,
			EndpointAuth:   cfg.AuthRateLimit,
		},
	}
}

// Check admits or denies one request. Denied requests do not consume the
// counter, so a client hammering a closed window cannot push its own reset
// further away. Unknown endpoint classes are admitted unthrottled.
func (s *RateLimitService) Check(ctx context.Context, identity, endpoint string) *RateLimitDecision {
	limit, ok := s.limits[endpoint]
	if !ok {
		return &RateLimitDecision{Allowed: true, Remaining: -1}
	}
	if identity == "" {
		identity = UnknownIdentity
	}

	now := time.Now().UTC()

	w, err := s.backend.Get(ctx, identity, endpoint)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		s.logger.Warn(ctx, "rate limit backend unreachable, failing open", "identity", identity, "endpoint", endpoint, "error", err)
		return &RateLimitDecision{Allowed: true, Remaining: limit - 1}
	}

	if err != nil || w.Stale(now, s.window) {
		w = &models.RateLimitWindow{Identity: identity, Endpoint: endpoint, WindowStart: now, Count: 1}
		s.put(ctx, w)
		return &RateLimitDecision{Allowed: true, Remaining: limit - 1}
	}

	if w.Count >= limit {
		return &RateLimitDecision{
			Remaining:  0,
			RetryAfter: w.RetryAfter(now, s.window),
		}
	}

	w.Count++
	s.put(ctx, w)
	return &RateLimitDecision{Allowed: true, Remaining: limit - w.Count}
}

// Reset drops the window for (identity, endpoint).
func (s *RateLimitService) Reset(ctx context.Context, identity, endpoint string) error {
	if identity == "" {
		identity = UnknownIdentity
	}
	return s.backend.Delete(ctx, identity, endpoint)
}

// put persists the counter, failing open on error: a lost increment is a
// throttle undercount, not a denial of service.
func (s *RateLimitService) put(ctx context.Context, w *models.RateLimitWindow) {
	if err := s.backend.Put(ctx, w); err != nil {
		s.logger.Warn(ctx, "failed to persist rate limit window, failing open", "identity", w.Identity, "endpoint", w.Endpoint, "error", err)
	}
}
