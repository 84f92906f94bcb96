package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formvault/formvault/internal/common"
	"github.com/formvault/formvault/internal/cryptox"
	"github.com/formvault/formvault/internal/server/models"
)

func testEnvelope(t *testing.T) *cryptox.Envelope {
	t.Helper()
	priv, err := cryptox.GenerateKeyPair()
	require.NoError(t, err)
	env, err := cryptox.Encrypt([]byte(`{"favorite_color":"green"}`), &priv.PublicKey)
	require.NoError(t, err)
	return env
}

type submissionHarness struct {
	svc        *SubmissionService
	rm         *fakeRepoManager
	store      *fakeStore
	dispatcher *fakeDispatcher
	mock       sqlmock.Sqlmock
}

func newSubmissionHarness(t *testing.T) *submissionHarness {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	rm := newFakeRepoManager()
	store := newFakeStore()
	dispatcher := &fakeDispatcher{}
	resolver := &staticResolver{url: "https://hooks.example.com/f1", secret: []byte("hook-secret"), ok: true}

	return &submissionHarness{
		svc:        NewSubmissionService(db, rm, store, dispatcher, resolver, testLogger(t)),
		rm:         rm,
		store:      store,
		dispatcher: dispatcher,
		mock:       mock,
	}
}

const testIdemKey = "client-key-0123456789abcdef"

func TestSubmit_AcceptsAndCachesResponse(t *testing.T) {
	h := newSubmissionHarness(t)
	h.mock.ExpectBegin()
	h.mock.ExpectCommit()

	env := testEnvelope(t)
	res, err := h.svc.Submit(context.Background(), "survey-1", testIdemKey, env)
	require.NoError(t, err)
	assert.False(t, res.Replayed)

	var body submissionResponse
	require.NoError(t, json.Unmarshal(res.Response, &body))
	assert.NotEmpty(t, body.ID)
	assert.Equal(t, "survey-1", body.FormID)

	// envelope persisted opaquely under the submission's storage key
	sub, err := h.rm.subs.Find(context.Background(), "survey-1", body.ID)
	require.NoError(t, err)
	raw, err := h.store.Get(context.Background(), sub.StorageKey)
	require.NoError(t, err)
	var stored cryptox.Envelope
	require.NoError(t, json.Unmarshal(raw, &stored))
	assert.Equal(t, env.Ciphertext, stored.Ciphertext)

	// response cached for replay under the form scope
	rec, err := h.rm.idem.Find(context.Background(), "form:survey-1", testIdemKey)
	require.NoError(t, err)
	assert.Equal(t, res.Response, rec.Response)
	assert.Equal(t, "form:survey-1", h.rm.idem.trimScope)
	assert.Equal(t, models.IdempotencyIndexCap, h.rm.idem.trimKeep)

	// webhook dispatched with the opaque envelope
	require.Len(t, h.dispatcher.calls, 1)
	call := h.dispatcher.calls[0]
	assert.Equal(t, body.ID, call.submissionID)
	assert.Equal(t, "https://hooks.example.com/f1", call.url)
	var payload webhookPayload
	require.NoError(t, json.Unmarshal(call.payload, &payload))
	assert.Equal(t, "survey-1", payload.FormID)
	assert.Equal(t, env.Ciphertext, payload.Envelope.Ciphertext)

	require.NoError(t, h.mock.ExpectationsWereMet())
}

func TestSubmit_ReplaysCachedResponse(t *testing.T) {
	h := newSubmissionHarness(t)

	rec, err := models.NewIdempotencyRecord("form:survey-1", testIdemKey, []byte(`{"id":"original"}`))
	require.NoError(t, err)
	rec.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)
	_, err = h.rm.idem.Insert(context.Background(), rec)
	require.NoError(t, err)

	res, err := h.svc.Submit(context.Background(), "survey-1", testIdemKey, testEnvelope(t))
	require.NoError(t, err)
	assert.True(t, res.Replayed)
	assert.JSONEq(t, `{"id":"original"}`, string(res.Response))
	assert.GreaterOrEqual(t, res.Age, 2*time.Hour)

	// nothing new was processed
	assert.Empty(t, h.store.objects)
	assert.Empty(t, h.dispatcher.calls)
	require.NoError(t, h.mock.ExpectationsWereMet())
}

func TestSubmit_ExpiredRecordIsEvictedAndReprocessed(t *testing.T) {
	h := newSubmissionHarness(t)
	h.mock.ExpectBegin()
	h.mock.ExpectCommit()

	rec, err := models.NewIdempotencyRecord("form:survey-1", testIdemKey, []byte(`{"id":"stale"}`))
	require.NoError(t, err)
	rec.CreatedAt = time.Now().UTC().Add(-25 * time.Hour)
	_, err = h.rm.idem.Insert(context.Background(), rec)
	require.NoError(t, err)

	res, err := h.svc.Submit(context.Background(), "survey-1", testIdemKey, testEnvelope(t))
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.NotContains(t, string(res.Response), "stale")

	fresh, err := h.rm.idem.Find(context.Background(), "form:survey-1", testIdemKey)
	require.NoError(t, err)
	assert.Equal(t, res.Response, fresh.Response)
}

func TestSubmit_LostRaceReturnsWinner(t *testing.T) {
	h := newSubmissionHarness(t)
	h.mock.ExpectBegin()
	h.mock.ExpectCommit()

	// the initial replay check misses, then the transactional insert
	// collides with a concurrent duplicate that landed in between
	rec, err := models.NewIdempotencyRecord("form:survey-1", testIdemKey, []byte(`{"id":"winner"}`))
	require.NoError(t, err)
	_, err = h.rm.idem.Insert(context.Background(), rec)
	require.NoError(t, err)
	h.rm.idem.findMisses = 1

	res, err := h.svc.Submit(context.Background(), "survey-1", testIdemKey, testEnvelope(t))
	require.NoError(t, err)
	assert.True(t, res.Replayed)
	assert.JSONEq(t, `{"id":"winner"}`, string(res.Response))

	// the loser's envelope is cleaned up and no webhook fires
	assert.Empty(t, h.store.objects)
	require.Len(t, h.store.deleted, 1)
	assert.Empty(t, h.dispatcher.calls)
}

func TestSubmit_RejectsMalformedKey(t *testing.T) {
	h := newSubmissionHarness(t)

	_, err := h.svc.Submit(context.Background(), "survey-1", "short", testEnvelope(t))
	assert.ErrorIs(t, err, common.ErrorValidation)
	assert.Empty(t, h.store.objects)
}

func TestSubmit_RejectsMalformedEnvelope(t *testing.T) {
	h := newSubmissionHarness(t)

	env := testEnvelope(t)
	env.Encrypted = false
	_, err := h.svc.Submit(context.Background(), "survey-1", testIdemKey, env)
	assert.ErrorIs(t, err, common.ErrorValidation)
}

func TestSubmit_NoKeyMeansNoDeduplication(t *testing.T) {
	h := newSubmissionHarness(t)
	h.mock.ExpectBegin()
	h.mock.ExpectCommit()
	h.mock.ExpectBegin()
	h.mock.ExpectCommit()

	env := testEnvelope(t)
	first, err := h.svc.Submit(context.Background(), "survey-1", "", env)
	require.NoError(t, err)
	second, err := h.svc.Submit(context.Background(), "survey-1", "", env)
	require.NoError(t, err)

	assert.NotEqual(t, first.Response, second.Response)
	assert.Len(t, h.store.objects, 2)
	assert.Empty(t, h.rm.idem.records)
}

func TestSubmit_StoreFailureFailsClosed(t *testing.T) {
	h := newSubmissionHarness(t)
	h.store.putErr = errors.New("bucket gone")

	_, err := h.svc.Submit(context.Background(), "survey-1", testIdemKey, testEnvelope(t))
	assert.ErrorIs(t, err, common.ErrorStorageUnavailable)
	assert.Empty(t, h.dispatcher.calls)
	assert.Empty(t, h.rm.idem.records)
}

func TestSubmit_RowInsertFailureRemovesEnvelope(t *testing.T) {
	h := newSubmissionHarness(t)
	h.mock.ExpectBegin()
	h.mock.ExpectRollback()
	h.rm.subs.createErr = errors.New("db error")

	_, err := h.svc.Submit(context.Background(), "survey-1", testIdemKey, testEnvelope(t))
	assert.ErrorIs(t, err, common.ErrorStorageUnavailable)
	assert.Empty(t, h.store.objects)
	require.Len(t, h.store.deleted, 1)
	require.NoError(t, h.mock.ExpectationsWereMet())
}

func TestGet_ReturnsOpaqueEnvelope(t *testing.T) {
	h := newSubmissionHarness(t)
	h.mock.ExpectBegin()
	h.mock.ExpectCommit()

	res, err := h.svc.Submit(context.Background(), "survey-1", "", testEnvelope(t))
	require.NoError(t, err)
	var body submissionResponse
	require.NoError(t, json.Unmarshal(res.Response, &body))

	sub, raw, err := h.svc.Get(context.Background(), "survey-1", body.ID)
	require.NoError(t, err)
	assert.Equal(t, body.ID, sub.ID)
	var env cryptox.Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.NoError(t, env.Validate())
}

func TestGet_UnknownSubmission(t *testing.T) {
	h := newSubmissionHarness(t)

	_, _, err := h.svc.Get(context.Background(), "survey-1", "nope")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestCleanupIdempotency_SweepsExpiredOnly(t *testing.T) {
	h := newSubmissionHarness(t)

	stale, err := models.NewIdempotencyRecord("form:survey-1", "stale-key-0123456789", []byte(`{}`))
	require.NoError(t, err)
	stale.CreatedAt = time.Now().UTC().Add(-25 * time.Hour)
	_, err = h.rm.idem.Insert(context.Background(), stale)
	require.NoError(t, err)

	live, err := models.NewIdempotencyRecord("form:survey-1", "live-key-01234567890", []byte(`{}`))
	require.NoError(t, err)
	_, err = h.rm.idem.Insert(context.Background(), live)
	require.NoError(t, err)

	n, err := h.svc.CleanupIdempotency(context.Background(), "survey-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = h.rm.idem.Find(context.Background(), "form:survey-1", "live-key-01234567890")
	assert.NoError(t, err)
}
