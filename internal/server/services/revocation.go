package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/formvault/formvault/internal/common"
	"github.com/formvault/formvault/internal/logging"
	"github.com/formvault/formvault/internal/server/auth"
	"github.com/formvault/formvault/internal/server/models"
	"github.com/formvault/formvault/internal/server/repositories/repomanager"
)

// RevocationService maintains the blocklist of invalidated access tokens.
// Entries live exactly as long as the token itself would have: once the
// token is past its expiry, signature verification rejects it anyway and
// the entry becomes dead weight.
type RevocationService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
}

// NewRevocationService constructs the service.
func NewRevocationService(db *sql.DB, m repomanager.RepositoryManager, logger logging.Logger) *RevocationService {
	return &RevocationService{
		db:          db,
		repomanager: m,
		logger:      logger.With("module", "revocation_service"),
	}
}

// Revoke blocklists a token until its natural expiry. Revoking an
// already-expired token is a success no-op. Re-revoking refreshes the
// existing entry. Revocation is a write and fails closed.
func (s *RevocationService) Revoke(ctx context.Context, token string) error {
	expiresAt, err := auth.DecodeExpiry(token)
	if err != nil {
		return common.ErrInvalidToken
	}

	entry, err := models.NewRevokedTokenEntry(token, expiresAt)
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			// nothing to blocklist
			return nil
		}
		return err
	}

	if err := s.repomanager.Revocations(s.db).Insert(ctx, entry); err != nil {
		return fmt.Errorf("%w: error inserting revocation entry: %v", common.ErrorStorageUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether the token is on the blocklist. A degraded
// store fails open with a logged warning: rejecting every session because
// the blocklist is unreachable would turn a database hiccup into a full
// outage.
func (s *RevocationService) IsRevoked(ctx context.Context, token string) bool {
	entry, err := s.repomanager.Revocations(s.db).Find(ctx, models.HashToken(token))
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			s.logger.Warn(ctx, "revocation store unreachable, failing open", "error", err)
		}
		return false
	}
	// a lingering entry for an expired token is inert
	return entry.ExpiresAt.After(time.Now().UTC())
}

// CleanupExpired prunes blocklist entries whose tokens have expired and
// reports how many were removed.
func (s *RevocationService) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := s.repomanager.Revocations(s.db).DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("%w: error sweeping revocation entries: %v", common.ErrorStorageUnavailable, err)
	}
	return n, nil
}
