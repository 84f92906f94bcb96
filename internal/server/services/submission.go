// Package services contains server-side business logic. This file
// implements SubmissionService: the accept path for encrypted envelopes
// (idempotency gate, opaque persistence, webhook fan-out) and the
// authenticated read path.
package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/formvault/formvault/internal/common"
	"github.com/formvault/formvault/internal/cryptox"
	"github.com/formvault/formvault/internal/dbx"
	"github.com/formvault/formvault/internal/logging"
	"github.com/formvault/formvault/internal/server/models"
	"github.com/formvault/formvault/internal/server/repositories/repomanager"
	"github.com/formvault/formvault/internal/server/storage"
)

// Dispatcher is the webhook fan-out collaborator. Dispatch must not block
// the submission path.
type Dispatcher interface {
	Dispatch(submissionID, url string, payload, secret []byte)
}

// WebhookResolver maps a form to its subscriber endpoint and signing
// secret. Form registration lives outside this layer, so the mapping is
// injected. ok is false when the form has no subscriber.
type WebhookResolver interface {
	Resolve(ctx context.Context, formID string) (url string, secret []byte, ok bool)
}

// SubmitResult is the outcome of an accepted or replayed submission.
type SubmitResult struct {
	Response  []byte
	Replayed  bool
	CreatedAt time.Time
	Age       time.Duration
}

// submissionResponse is the canonical response body cached for replays.
type submissionResponse struct {
	ID         string    `json:"id"`
	FormID     string    `json:"formId"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// webhookPayload is the signed body POSTed to subscribers. It carries the
// opaque envelope: the server cannot see plaintext, so neither can the
// webhook body leak it.
type webhookPayload struct {
	FormID       string            `json:"formId"`
	SubmissionID string            `json:"submissionId"`
	ReceivedAt   time.Time         `json:"receivedAt"`
	Envelope     *cryptox.Envelope `json:"envelope"`
}

// SubmissionService accepts, deduplicates, stores, and serves encrypted
// submissions.
type SubmissionService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       storage.ObjectStore
	dispatcher  Dispatcher
	resolver    WebhookResolver
	logger      logging.Logger
}

// NewSubmissionService wires the accept path. resolver may be nil when no
// webhook subscribers exist.
func NewSubmissionService(db *sql.DB, m repomanager.RepositoryManager, store storage.ObjectStore, d Dispatcher, r WebhookResolver, logger logging.Logger) *SubmissionService {
	return &SubmissionService{
		db:          db,
		repomanager: m,
		store:       store,
		dispatcher:  d,
		resolver:    r,
		logger:      logger.With("module", "submission_service"),
	}
}

// idempotencyScope namespaces keys per form, so distinct forms cannot
// collide on a shared client key.
func idempotencyScope(formID string) string {
	return "form:" + formID
}

// Submit runs the accept pipeline: envelope shape validation, idempotency
// replay check, opaque persistence, metadata row, webhook dispatch, and
// response caching. idempotencyKey may be empty, in which case every call
// produces a new submission.
//
// Every storage failure on this path is fail-closed: the client gets an
// error rather than a possibly-duplicate acceptance.
func (s *SubmissionService) Submit(ctx context.Context, formID, idempotencyKey string, env *cryptox.Envelope) (*SubmitResult, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}

	scope := idempotencyScope(formID)
	if idempotencyKey != "" {
		if err := models.ValidateIdempotencyKey(idempotencyKey); err != nil {
			return nil, err
		}
		res, err := s.findReplay(ctx, scope, idempotencyKey)
		if err != nil {
			return nil, err
		}
		if res != nil {
			return res, nil
		}
	}

	sub, err := models.NewSubmission(formID)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("error encoding envelope: %v", err)
	}
	if err := s.store.Put(ctx, sub.StorageKey, raw); err != nil {
		return nil, fmt.Errorf("%w: error storing envelope: %v", common.ErrorStorageUnavailable, err)
	}

	response, err := json.Marshal(&submissionResponse{
		ID:         sub.ID,
		FormID:     sub.FormID,
		ReceivedAt: sub.ReceivedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("error encoding response: %v", err)
	}

	result, err := s.commit(ctx, scope, idempotencyKey, sub, response)
	if err != nil {
		// the row never landed; do not leave the envelope behind
		if delErr := s.store.Delete(ctx, sub.StorageKey); delErr != nil {
			s.logger.Warn(ctx, "failed to remove orphaned envelope", "key", sub.StorageKey, "error", delErr)
		}
		return nil, err
	}
	if result.Replayed {
		// a concurrent duplicate won the insert race; its envelope is the
		// one of record
		if delErr := s.store.Delete(ctx, sub.StorageKey); delErr != nil {
			s.logger.Warn(ctx, "failed to remove duplicate envelope", "key", sub.StorageKey, "error", delErr)
		}
		return result, nil
	}

	s.notify(ctx, sub, env)
	return result, nil
}

// findReplay returns the cached result for (scope, key) when a live record
// exists, nil when the key is fresh. Expired records are evicted in place.
func (s *SubmissionService) findReplay(ctx context.Context, scope, key string) (*SubmitResult, error) {
	repo := s.repomanager.Idempotency(s.db)

	rec, err := repo.Find(ctx, scope, key)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: error checking idempotency record: %v", common.ErrorStorageUnavailable, err)
	}

	now := time.Now().UTC()
	if rec.Expired(now) {
		if err := repo.Delete(ctx, scope, key); err != nil {
			return nil, fmt.Errorf("%w: error evicting expired idempotency record: %v", common.ErrorStorageUnavailable, err)
		}
		return nil, nil
	}

	return &SubmitResult{
		Response:  rec.Response,
		Replayed:  true,
		CreatedAt: rec.CreatedAt,
		Age:       rec.Age(now),
	}, nil
}

// commit writes the submission row and, when a key is present, the
// idempotency record in one transaction. When a concurrent duplicate
// already claimed the key, the winner's cached response is returned as a
// replay and nothing from this call is persisted.
func (s *SubmissionService) commit(ctx context.Context, scope, key string, sub *models.Submission, response []byte) (*SubmitResult, error) {
	var lostRace bool

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if key != "" {
			rec, err := models.NewIdempotencyRecord(scope, key, response)
			if err != nil {
				return err
			}
			repo := s.repomanager.Idempotency(tx)
			created, err := repo.Insert(ctx, rec)
			if err != nil {
				return fmt.Errorf("%w: error inserting idempotency record: %v", common.ErrorStorageUnavailable, err)
			}
			if !created {
				lostRace = true
				return nil
			}
			if err := repo.TrimScope(ctx, scope, models.IdempotencyIndexCap); err != nil {
				return fmt.Errorf("%w: error trimming idempotency index: %v", common.ErrorStorageUnavailable, err)
			}
		}
		if err := s.repomanager.Submissions(tx).Create(ctx, sub); err != nil {
			return fmt.Errorf("%w: error inserting submission: %v", common.ErrorStorageUnavailable, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if lostRace {
		res, err := s.findReplay(ctx, scope, key)
		if err != nil {
			return nil, err
		}
		if res == nil {
			return nil, fmt.Errorf("%w: idempotency record vanished after lost race", common.ErrorStorageUnavailable)
		}
		return res, nil
	}

	return &SubmitResult{Response: response, CreatedAt: sub.ReceivedAt}, nil
}

// notify hands the submission to the webhook dispatcher when the form has
// a subscriber. Never blocks and never fails the accept path.
func (s *SubmissionService) notify(ctx context.Context, sub *models.Submission, env *cryptox.Envelope) {
	if s.dispatcher == nil || s.resolver == nil {
		return
	}
	url, secret, ok := s.resolver.Resolve(ctx, sub.FormID)
	if !ok {
		return
	}
	payload, err := json.Marshal(&webhookPayload{
		FormID:       sub.FormID,
		SubmissionID: sub.ID,
		ReceivedAt:   sub.ReceivedAt,
		Envelope:     env,
	})
	if err != nil {
		s.logger.Error(ctx, "failed to encode webhook payload", "submission_id", sub.ID, "error", err)
		return
	}
	s.dispatcher.Dispatch(sub.ID, url, payload, secret)
}

// Get returns the submission metadata and its opaque envelope bytes.
func (s *SubmissionService) Get(ctx context.Context, formID, id string) (*models.Submission, []byte, error) {
	sub, err := s.repomanager.Submissions(s.db).Find(ctx, formID, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: error loading submission: %v", common.ErrorStorageUnavailable, err)
	}
	raw, err := s.store.Get(ctx, sub.StorageKey)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: error loading envelope: %v", common.ErrorStorageUnavailable, err)
	}
	return sub, raw, nil
}

// CleanupIdempotency removes every idempotency record of formID's scope
// past the TTL and reports how many were deleted. Invoked by periodic
// maintenance.
func (s *SubmissionService) CleanupIdempotency(ctx context.Context, formID string) (int64, error) {
	cutoff := time.Now().UTC().Add(-models.IdempotencyTTL)
	n, err := s.repomanager.Idempotency(s.db).DeleteOlderThan(ctx, idempotencyScope(formID), cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: error sweeping idempotency records: %v", common.ErrorStorageUnavailable, err)
	}
	return n, nil
}
