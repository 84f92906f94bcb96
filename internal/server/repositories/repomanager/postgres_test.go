package repomanager

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pressly/goose/v3"
)

func TestNewPostgresRepositoryManager(t *testing.T) {
	m, err := NewPostgresRepositoryManager()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m == nil {
		t.Fatal("expected manager")
	}
}

func TestVendsRepositories(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()

	m := &PostgresRepositoryManager{}

	if m.Submissions(db) == nil {
		t.Fatal("nil submissions repository")
	}
	if m.Idempotency(db) == nil {
		t.Fatal("nil idempotency repository")
	}
	if m.RateLimits(db) == nil {
		t.Fatal("nil rate limit backend")
	}
	if m.Lockouts(db) == nil {
		t.Fatal("nil lockouts repository")
	}
	if m.Revocations(db) == nil {
		t.Fatal("nil revocation repository")
	}
	if m.Webhooks(db) == nil {
		t.Fatal("nil webhooks repository")
	}
}

func TestRunMigrations_UsesSeam(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()

	orig := gooseUpContext
	defer func() { gooseUpContext = orig }()

	called := false
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		called = true
		return nil
	}

	m := &PostgresRepositoryManager{}
	if err := m.RunMigrations(context.Background(), db); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("goose seam not invoked")
	}
}

func TestRunMigrations_PropagatesError(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()

	orig := gooseUpContext
	defer func() { gooseUpContext = orig }()

	wantErr := errors.New("migration failed")
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return wantErr
	}

	m := &PostgresRepositoryManager{}
	if err := m.RunMigrations(context.Background(), db); !errors.Is(err, wantErr) {
		t.Fatalf("want %v, got %v", wantErr, err)
	}
}
