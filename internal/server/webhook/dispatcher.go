// Package webhook delivers submission events to subscriber URLs with
// signed payloads and bounded retry.
//
// Dispatch is fire-and-forget from the submission path: the caller never
// blocks on delivery, and a started retry schedule runs to its natural
// conclusion (success, permanent 4xx, or exhaustion) — there is no
// cancellation. Delivery outcomes are observable through the Results
// channel and the persistent per-submission delivery log.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/formvault/formvault/internal/common"
	"github.com/formvault/formvault/internal/logging"
	sc "github.com/formvault/formvault/internal/server/config"
	"github.com/formvault/formvault/internal/server/models"
	"github.com/formvault/formvault/internal/server/repositories/webhooks"
)

// defaultBackoff is the wait schedule between attempts: 3 retries after
// the initial try, 4 attempts total.
var defaultBackoff = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// Signature returns the hex HMAC-SHA256 of body under secret, the value
// carried in the X-Signature header. Receivers recompute it and compare
// with VerifySignature.
func Signature(secret, body []byte) string {
	m := hmac.New(sha256.New, secret)
	m.Write(body)
	return hex.EncodeToString(m.Sum(nil))
}

// VerifySignature compares a received signature against the expected one
// in constant time.
func VerifySignature(secret, body []byte, signature string) bool {
	return hmac.Equal([]byte(Signature(secret, body)), []byte(signature))
}

// Result reports the terminal outcome of one dispatched delivery.
type Result struct {
	SubmissionID string
	URL          string
	Attempts     int
	Delivered    bool
	Err          error
}

// Dispatcher runs webhook deliveries in the background with bounded
// concurrency.
type Dispatcher struct {
	client  *http.Client
	repo    webhooks.Repository
	logger  logging.Logger
	sem     *semaphore.Weighted
	backoff []time.Duration
	results chan Result
	wg      sync.WaitGroup
}

// NewDispatcher constructs a Dispatcher from server config.
func NewDispatcher(repo webhooks.Repository, logger logging.Logger, cfg *sc.Config) *Dispatcher {
	backoff := defaultBackoff
	if cfg.WebhookMaxRetries < len(backoff) {
		backoff = backoff[:cfg.WebhookMaxRetries]
	}
	concurrency := cfg.WebhookConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Dispatcher{
		client:  &http.Client{Timeout: cfg.WebhookTimeout},
		repo:    repo,
		logger:  logger.With("module", "webhook_dispatcher"),
		sem:     semaphore.NewWeighted(int64(concurrency)),
		backoff: backoff,
		results: make(chan Result, 64),
	}
}

// Results exposes terminal delivery outcomes. The channel is buffered and
// never blocks delivery: when no one is listening, outcomes are dropped
// (the persistent delivery log remains authoritative).
func (d *Dispatcher) Results() <-chan Result {
	return d.results
}

// Dispatch schedules one delivery and returns immediately. The delivery
// runs on a background context: callers going away does not cancel it.
func (d *Dispatcher) Dispatch(submissionID, url string, payload, secret []byte) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx := context.Background()
		if err := d.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer d.sem.Release(1)

		result := d.fireWithRetry(ctx, submissionID, url, payload, secret)
		select {
		case d.results <- result:
		default:
		}
	}()
}

// Wait blocks until every in-flight delivery has reached a terminal
// state. Used on shutdown and in tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// fireWithRetry runs the full attempt schedule for one delivery. Retries
// happen only on network failure or 5xx; a 4xx is a permanent subscriber
// misconfiguration and stops immediately.
func (d *Dispatcher) fireWithRetry(ctx context.Context, submissionID, url string, payload, secret []byte) Result {
	maxAttempts := len(d.backoff) + 1
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		statusCode, err := d.attempt(ctx, url, payload, secret)

		outcome := classify(statusCode, err)
		d.logAttempt(ctx, submissionID, url, attempt, statusCode, outcome, err)

		switch outcome {
		case models.DeliveryOutcomeSuccess:
			return Result{SubmissionID: submissionID, URL: url, Attempts: attempt, Delivered: true}
		case models.DeliveryOutcomePermanent:
			lastErr = fmt.Errorf("permanent failure: status %d", statusCode)
			return Result{SubmissionID: submissionID, URL: url, Attempts: attempt, Err: lastErr}
		}

		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("status %d", statusCode)
		}
		if attempt < maxAttempts {
			time.Sleep(d.backoff[attempt-1])
		}
	}

	d.persistFailed(ctx, submissionID, url, payload, maxAttempts, lastErr)
	return Result{SubmissionID: submissionID, URL: url, Attempts: maxAttempts, Err: lastErr}
}

// attempt performs one signed POST. A zero status code means the request
// never produced a response.
func (d *Dispatcher) attempt(ctx context.Context, url string, payload, secret []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(common.WebhookSignatureHeader, Signature(secret, payload))

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func classify(statusCode int, err error) string {
	switch {
	case err != nil:
		return models.DeliveryOutcomeTransient
	case statusCode >= 200 && statusCode < 300:
		return models.DeliveryOutcomeSuccess
	case statusCode >= 400 && statusCode < 500:
		return models.DeliveryOutcomePermanent
	default:
		return models.DeliveryOutcomeTransient
	}
}

func (d *Dispatcher) logAttempt(ctx context.Context, submissionID, url string, attempt, statusCode int, outcome string, err error) {
	a := &models.WebhookDeliveryAttempt{
		SubmissionID: submissionID,
		TargetURL:    url,
		Attempt:      attempt,
		StatusCode:   statusCode,
		Outcome:      outcome,
		AttemptedAt:  time.Now().UTC(),
	}
	if err != nil {
		a.Error = err.Error()
	}
	if repoErr := d.repo.AppendAttempt(ctx, a); repoErr != nil {
		d.logger.Warn(ctx, "failed to record delivery attempt", "submission_id", submissionID, "error", repoErr)
	}
}

func (d *Dispatcher) persistFailed(ctx context.Context, submissionID, url string, payload []byte, attempts int, lastErr error) {
	f := &models.FailedWebhook{
		SubmissionID: submissionID,
		TargetURL:    url,
		Payload:      payload,
		Attempts:     attempts,
		FailedAt:     time.Now().UTC(),
	}
	if lastErr != nil {
		f.LastError = lastErr.Error()
	}
	if err := d.repo.SaveFailed(ctx, f); err != nil {
		d.logger.Error(ctx, "failed to persist exhausted webhook", "submission_id", submissionID, "error", err)
		return
	}
	d.logger.Warn(ctx, "webhook delivery exhausted, queued for manual retry", "submission_id", submissionID, "url", url, "attempts", attempts)
}
