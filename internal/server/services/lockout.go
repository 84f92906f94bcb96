package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/formvault/formvault/internal/common"
	"github.com/formvault/formvault/internal/logging"
	"github.com/formvault/formvault/internal/server/config"
	"github.com/formvault/formvault/internal/server/models"
	"github.com/formvault/formvault/internal/server/repositories/repomanager"
)

// LockoutService tracks consecutive authentication failures per identity
// and locks the identity once the threshold is reached. Locks self-heal:
// the next check after the lock window simply starts over, no unlock job
// required.
type LockoutService struct {
	db           *sql.DB
	repomanager  repomanager.RepositoryManager
	logger       logging.Logger
	threshold    int
	lockDuration time.Duration
}

// NewLockoutService builds the service from server config.
func NewLockoutService(db *sql.DB, m repomanager.RepositoryManager, logger logging.Logger, cfg *config.Config) *LockoutService {
	return &LockoutService{
		db:           db,
		repomanager:  m,
		logger:       logger.With("module", "lockout_service"),
		threshold:    cfg.LockoutThreshold,
		lockDuration: cfg.LockoutDuration,
	}
}

// IsLocked reports whether identity currently holds an active lock and how
// long it has left. A degraded store fails open with a logged warning:
// locking everyone out because the database blinked would be a worse
// failure than briefly losing brute-force protection.
func (s *LockoutService) IsLocked(ctx context.Context, identity string) (bool, time.Duration) {
	rec, err := s.repomanager.Lockouts(s.db).Find(ctx, identity)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			s.logger.Warn(ctx, "lockout store unreachable, failing open", "identity", identity, "error", err)
		}
		return false, 0
	}
	now := time.Now().UTC()
	if !rec.Locked(now) {
		return false, 0
	}
	return true, rec.LockRemaining(now)
}

// RecordFailure registers one failed authentication attempt. Reaching the
// threshold sets the lock; an elapsed lock means the previous streak is
// spent and counting restarts at one.
func (s *LockoutService) RecordFailure(ctx context.Context, identity string) error {
	repo := s.repomanager.Lockouts(s.db)
	now := time.Now().UTC()

	rec, err := repo.Find(ctx, identity)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			return fmt.Errorf("error searching lockout record: %v", err)
		}
		rec = nil
	}

	if rec == nil || (!rec.LockedUntil.IsZero() && !rec.Locked(now)) {
		rec = &models.LockoutRecord{Identity: identity, FirstAttempt: now, Count: 0}
	}

	rec.Count++
	if rec.Count >= s.threshold && rec.LockedUntil.IsZero() {
		rec.LockedUntil = now.Add(s.lockDuration)
		s.logger.Warn(ctx, "identity locked out after repeated auth failures", "identity", identity, "failures", rec.Count, "until", rec.LockedUntil)
	}

	if err := repo.Save(ctx, rec); err != nil {
		return fmt.Errorf("error saving lockout record: %v", err)
	}
	return nil
}

// Clear wipes the failure streak after a successful authentication.
func (s *LockoutService) Clear(ctx context.Context, identity string) error {
	if err := s.repomanager.Lockouts(s.db).Delete(ctx, identity); err != nil {
		return fmt.Errorf("error clearing lockout record: %v", err)
	}
	return nil
}
