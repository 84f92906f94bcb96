package webhook

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formvault/formvault/internal/logging"
	sc "github.com/formvault/formvault/internal/server/config"
	"github.com/formvault/formvault/internal/server/models"
)

type fakeWebhookRepo struct {
	mu       sync.Mutex
	attempts []*models.WebhookDeliveryAttempt
	failed   []*models.FailedWebhook
}

func (r *fakeWebhookRepo) AppendAttempt(_ context.Context, a *models.WebhookDeliveryAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, a)
	return nil
}

func (r *fakeWebhookRepo) ListAttempts(_ context.Context, submissionID string) ([]*models.WebhookDeliveryAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.WebhookDeliveryAttempt
	for _, a := range r.attempts {
		if a.SubmissionID == submissionID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeWebhookRepo) SaveFailed(_ context.Context, f *models.FailedWebhook) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, f)
	return nil
}

func (r *fakeWebhookRepo) ListFailed(_ context.Context, limit int) ([]*models.FailedWebhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit > len(r.failed) {
		limit = len(r.failed)
	}
	return r.failed[:limit], nil
}

func newTestDispatcher(t *testing.T, repo *fakeWebhookRepo) *Dispatcher {
	t.Helper()
	cfg := &sc.Config{}
	cfg.LoadDefaults()
	d := NewDispatcher(repo, logging.NewSlogLogger(slog.Default()), cfg)
	// no waiting between attempts in tests
	d.backoff = []time.Duration{0, 0, 0}
	return d
}

func TestDispatch_SuccessFirstAttempt(t *testing.T) {
	secret := []byte("hook-secret")
	payload := []byte(`{"submissionId":"s1"}`)

	var gotSignature string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get("X-Signature")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	repo := &fakeWebhookRepo{}
	d := newTestDispatcher(t, repo)

	d.Dispatch("s1", srv.URL, payload, secret)
	d.Wait()

	result := <-d.Results()
	assert.True(t, result.Delivered)
	assert.Equal(t, 1, result.Attempts)
	assert.NoError(t, result.Err)

	assert.True(t, VerifySignature(secret, payload, gotSignature))

	log, err := repo.ListAttempts(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, models.DeliveryOutcomeSuccess, log[0].Outcome)
	assert.Equal(t, http.StatusOK, log[0].StatusCode)
	assert.Empty(t, repo.failed)
}

func TestDispatch_RetriesTransientThenSucceeds(t *testing.T) {
	var calls int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	repo := &fakeWebhookRepo{}
	d := newTestDispatcher(t, repo)

	d.Dispatch("s2", srv.URL, []byte("{}"), []byte("k"))
	d.Wait()

	result := <-d.Results()
	assert.True(t, result.Delivered)
	assert.Equal(t, 3, result.Attempts)

	log, _ := repo.ListAttempts(context.Background(), "s2")
	require.Len(t, log, 3)
	assert.Equal(t, models.DeliveryOutcomeTransient, log[0].Outcome)
	assert.Equal(t, models.DeliveryOutcomeTransient, log[1].Outcome)
	assert.Equal(t, models.DeliveryOutcomeSuccess, log[2].Outcome)
	assert.Empty(t, repo.failed)
}

func TestDispatch_PermanentFailureStopsImmediately(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	repo := &fakeWebhookRepo{}
	d := newTestDispatcher(t, repo)

	d.Dispatch("s3", srv.URL, []byte("{}"), []byte("k"))
	d.Wait()

	result := <-d.Results()
	assert.False(t, result.Delivered)
	assert.Equal(t, 1, result.Attempts)
	assert.Error(t, result.Err)

	log, _ := repo.ListAttempts(context.Background(), "s3")
	require.Len(t, log, 1)
	assert.Equal(t, models.DeliveryOutcomePermanent, log[0].Outcome)
	// a misconfigured subscriber is not queued for retry
	assert.Empty(t, repo.failed)
}

func TestDispatch_ExhaustionPersistsFailedWebhook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	repo := &fakeWebhookRepo{}
	d := newTestDispatcher(t, repo)

	payload := []byte(`{"submissionId":"s4"}`)
	d.Dispatch("s4", srv.URL, payload, []byte("k"))
	d.Wait()

	result := <-d.Results()
	assert.False(t, result.Delivered)
	assert.Equal(t, 4, result.Attempts)

	log, _ := repo.ListAttempts(context.Background(), "s4")
	assert.Len(t, log, 4)

	require.Len(t, repo.failed, 1)
	assert.Equal(t, "s4", repo.failed[0].SubmissionID)
	assert.Equal(t, srv.URL, repo.failed[0].TargetURL)
	assert.Equal(t, payload, repo.failed[0].Payload)
	assert.Equal(t, 4, repo.failed[0].Attempts)
	assert.Contains(t, repo.failed[0].LastError, "503")
}

func TestDispatch_NetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	repo := &fakeWebhookRepo{}
	d := newTestDispatcher(t, repo)

	d.Dispatch("s5", url, []byte("{}"), []byte("k"))
	d.Wait()

	result := <-d.Results()
	assert.False(t, result.Delivered)
	assert.Equal(t, 4, result.Attempts)

	log, _ := repo.ListAttempts(context.Background(), "s5")
	require.Len(t, log, 4)
	for _, a := range log {
		assert.Equal(t, models.DeliveryOutcomeTransient, a.Outcome)
		assert.Zero(t, a.StatusCode)
		assert.NotEmpty(t, a.Error)
	}
	require.Len(t, repo.failed, 1)
}

func TestSignature_Deterministic(t *testing.T) {
	secret := []byte("top-secret")
	body := []byte(`{"hello":"world"}`)

	s1 := Signature(secret, body)
	s2 := Signature(secret, body)
	assert.Equal(t, s1, s2)
	assert.Len(t, s1, 64)

	assert.True(t, VerifySignature(secret, body, s1))
	assert.False(t, VerifySignature([]byte("other"), body, s1))
	assert.False(t, VerifySignature(secret, []byte("tampered"), s1))
}
