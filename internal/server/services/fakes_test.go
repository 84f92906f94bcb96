package services

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/formvault/formvault/internal/common"
	"github.com/formvault/formvault/internal/dbx"
	"github.com/formvault/formvault/internal/logging"
	"github.com/formvault/formvault/internal/server/models"
	"github.com/formvault/formvault/internal/server/repositories/idempotency"
	"github.com/formvault/formvault/internal/server/repositories/lockouts"
	"github.com/formvault/formvault/internal/server/repositories/ratelimit"
	"github.com/formvault/formvault/internal/server/repositories/revocation"
	"github.com/formvault/formvault/internal/server/repositories/submissions"
	"github.com/formvault/formvault/internal/server/repositories/webhooks"
)

func testLogger(t *testing.T) logging.Logger {
	t.Helper()
	return logging.NewSlogLogger(slog.Default())
}

type fakeIdemRepo struct {
	mu        sync.Mutex
	records   map[string]*models.IdempotencyRecord
	trimScope string
	trimKeep  int
	insertErr error
	findErr   error

	// findMisses makes the next N Find calls report ErrorNotFound, for
	// exercising the duplicate-insert race.
	findMisses int
}

func newFakeIdemRepo() *fakeIdemRepo {
	return &fakeIdemRepo{records: map[string]*models.IdempotencyRecord{}}
}

func idemKey(scope, key string) string { return scope + "\x00" + key }

func (r *fakeIdemRepo) Insert(_ context.Context, rec *models.IdempotencyRecord) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return false, r.insertErr
	}
	k := idemKey(rec.Scope, rec.Key)
	if _, ok := r.records[k]; ok {
		return false, nil
	}
	cp := *rec
	r.records[k] = &cp
	return true, nil
}

func (r *fakeIdemRepo) Find(_ context.Context, scope, key string) (*models.IdempotencyRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	if r.findMisses > 0 {
		r.findMisses--
		return nil, common.ErrorNotFound
	}
	rec, ok := r.records[idemKey(scope, key)]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *fakeIdemRepo) Delete(_ context.Context, scope, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, idemKey(scope, key))
	return nil
}

func (r *fakeIdemRepo) TrimScope(_ context.Context, scope string, keep int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trimScope = scope
	r.trimKeep = keep
	return nil
}

func (r *fakeIdemRepo) DeleteOlderThan(_ context.Context, scope string, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k, rec := range r.records {
		if strings.HasPrefix(k, scope+"\x00") && rec.CreatedAt.Before(cutoff) {
			delete(r.records, k)
			n++
		}
	}
	return n, nil
}

type fakeSubRepo struct {
	mu        sync.Mutex
	rows      map[string]*models.Submission
	createErr error
}

func newFakeSubRepo() *fakeSubRepo {
	return &fakeSubRepo{rows: map[string]*models.Submission{}}
}

func (r *fakeSubRepo) Create(_ context.Context, s *models.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	cp := *s
	r.rows[s.FormID+"\x00"+s.ID] = &cp
	return nil
}

func (r *fakeSubRepo) Find(_ context.Context, formID, id string) (*models.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[formID+"\x00"+id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *s
	return &cp, nil
}

type fakeLockRepo struct {
	mu      sync.Mutex
	records map[string]*models.LockoutRecord
	findErr error
	saveErr error
}

func newFakeLockRepo() *fakeLockRepo {
	return &fakeLockRepo{records: map[string]*models.LockoutRecord{}}
}

func (r *fakeLockRepo) Find(_ context.Context, identity string) (*models.LockoutRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	rec, ok := r.records[identity]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *fakeLockRepo) Save(_ context.Context, rec *models.LockoutRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	cp := *rec
	r.records[rec.Identity] = &cp
	return nil
}

func (r *fakeLockRepo) Delete(_ context.Context, identity string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, identity)
	return nil
}

type fakeRevRepo struct {
	mu      sync.Mutex
	entries map[string]*models.RevokedTokenEntry
	findErr error
}

func newFakeRevRepo() *fakeRevRepo {
	return &fakeRevRepo{entries: map[string]*models.RevokedTokenEntry{}}
}

func (r *fakeRevRepo) Insert(_ context.Context, entry *models.RevokedTokenEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *entry
	r.entries[entry.TokenHash] = &cp
	return nil
}

func (r *fakeRevRepo) Find(_ context.Context, tokenHash string) (*models.RevokedTokenEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	entry, ok := r.entries[tokenHash]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *entry
	return &cp, nil
}

func (r *fakeRevRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k, entry := range r.entries {
		if !entry.ExpiresAt.After(now) {
			delete(r.entries, k)
			n++
		}
	}
	return n, nil
}

// fakeRepoManager vends in-memory repositories regardless of the handle it
// is given, so service logic runs without a database.
type fakeRepoManager struct {
	idem *fakeIdemRepo
	subs *fakeSubRepo
	lock *fakeLockRepo
	rev  *fakeRevRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		idem: newFakeIdemRepo(),
		subs: newFakeSubRepo(),
		lock: newFakeLockRepo(),
		rev:  newFakeRevRepo(),
	}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Submissions(dbx.DBTX) submissions.Repository  { return m.subs }
func (m *fakeRepoManager) Idempotency(dbx.DBTX) idempotency.Repository  { return m.idem }
func (m *fakeRepoManager) RateLimits(dbx.DBTX) ratelimit.Backend        { return ratelimit.NewMemoryBackend() }
func (m *fakeRepoManager) Lockouts(dbx.DBTX) lockouts.Repository        { return m.lock }
func (m *fakeRepoManager) Revocations(dbx.DBTX) revocation.Repository   { return m.rev }
func (m *fakeRepoManager) Webhooks(dbx.DBTX) webhooks.Repository        { return nil }

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
	putErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (s *fakeStore) Put(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.objects[key] = cp
	return nil
}

func (s *fakeStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return data, nil
}

func (s *fakeStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	s.deleted = append(s.deleted, key)
	return nil
}

type dispatchCall struct {
	submissionID string
	url          string
	payload      []byte
	secret       []byte
}

type fakeDispatcher struct {
	mu    sync.Mutex
	calls []dispatchCall
}

func (d *fakeDispatcher) Dispatch(submissionID, url string, payload, secret []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, dispatchCall{submissionID, url, payload, secret})
}

type staticResolver struct {
	url    string
	secret []byte
	ok     bool
}

func (r *staticResolver) Resolve(context.Context, string) (string, []byte, bool) {
	return r.url, r.secret, r.ok
}
