package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/formvault/formvault/internal/common"
	"github.com/formvault/formvault/internal/logging"
	"github.com/formvault/formvault/internal/server/auth"
	"github.com/formvault/formvault/internal/server/config"
)

// CredentialVerifier checks a username/password pair against the user
// store, which lives outside this layer. Verify returns the user id on
// success and common.ErrorUnauthorized on bad credentials.
type CredentialVerifier interface {
	Verify(ctx context.Context, username, password string) (string, error)
}

// AuthService gates authentication with lockout tracking, mints access
// tokens, and invalidates them on logout.
type AuthService struct {
	verifier    CredentialVerifier
	lockouts    *LockoutService
	revocations *RevocationService
	logger      logging.Logger
	jwtSecret   []byte
	validity    time.Duration
}

// NewAuthService wires the authentication flow from server config.
func NewAuthService(verifier CredentialVerifier, lockouts *LockoutService, revocations *RevocationService, logger logging.Logger, cfg *config.Config) *AuthService {
	return &AuthService{
		verifier:    verifier,
		lockouts:    lockouts,
		revocations: revocations,
		logger:      logger.With("module", "auth_service"),
		jwtSecret:   []byte(cfg.SecretKey),
		validity:    cfg.AccessTokenValidityDuration,
	}
}

// Login verifies credentials behind the lockout gate and mints an access
// token. Failed verifications feed the lockout counter; a success clears
// it. A locked identity is rejected before credentials are even checked,
// so a brute-forcer learns nothing while locked.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	if locked, remaining := s.lockouts.IsLocked(ctx, username); locked {
		return "", fmt.Errorf("%w: retry in %s", common.ErrorAccountLocked, remaining.Round(time.Second))
	}

	if s.verifier == nil {
		return "", common.ErrorUnauthorized
	}

	userID, err := s.verifier.Verify(ctx, username, password)
	if err != nil {
		if recErr := s.lockouts.RecordFailure(ctx, username); recErr != nil {
			s.logger.Warn(ctx, "failed to record auth failure", "identity", username, "error", recErr)
		}
		if errors.Is(err, common.ErrorUnauthorized) {
			return "", common.ErrorUnauthorized
		}
		return "", fmt.Errorf("error verifying credentials: %v", err)
	}

	if err := s.lockouts.Clear(ctx, username); err != nil {
		s.logger.Warn(ctx, "failed to clear lockout record", "identity", username, "error", err)
	}

	token, err := auth.GenerateToken(userID, s.jwtSecret, s.validity)
	if err != nil {
		return "", fmt.Errorf("error generating token: %v", err)
	}
	return token, nil
}

// Logout blocklists the presented token. Logging out with an expired token
// succeeds: the session is gone either way.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	return s.revocations.Revoke(ctx, token)
}

// Authenticate validates a bearer token for request handling: signature
// and expiry first, blocklist second. Returns the user id.
func (s *AuthService) Authenticate(ctx context.Context, token string) (string, error) {
	userID, err := auth.GetUserIDFromToken(token, s.jwtSecret)
	if err != nil {
		return "", err
	}
	if s.revocations.IsRevoked(ctx, token) {
		return "", common.ErrorUnauthorized
	}
	return userID, nil
}
