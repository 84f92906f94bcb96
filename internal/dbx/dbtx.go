// Package dbx carries the small database plumbing shared by every
// repository: a handle interface satisfied by both *sql.DB and *sql.Tx,
// and a transaction wrapper. Repositories accept the interface so a
// service can run several of them against one transaction — the
// idempotency insert plus index trim plus submission row is the main
// customer.
package dbx

import (
	"context"
	"database/sql"
)

// DBTX is the slice of database/sql the repositories use.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx runs fn inside a transaction: commit when fn returns nil,
// rollback when it errors or panics. A panic is rethrown after rollback.
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    created, err := rm.Idempotency(tx).Insert(ctx, rec)
//	    ...
//	})
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}
