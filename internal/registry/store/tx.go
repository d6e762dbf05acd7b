package store

import (
	"context"
	"database/sql"
	"fmt"

	id "dplay/pkg/domain"
	txcontext "dplay/pkg/platform/tx"
)

// SQLTx implements the service's StoreTx on database transactions. Row locks
// (SELECT ... FOR UPDATE on listings, the single registry_account row, the
// install primary key) provide per-listing serializability, so both
// listing- and account-scoped units share the same begin/commit shape.
type SQLTx struct {
	db *sql.DB
}

func NewSQLTx(db *sql.DB) *SQLTx {
	return &SQLTx{db: db}
}

func (t *SQLTx) RunInListingTx(ctx context.Context, listingID id.ListingID, fn func(ctx context.Context) error) error {
	return t.run(ctx, fn)
}

func (t *SQLTx) RunInAccountTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return t.run(ctx, fn)
}

func (t *SQLTx) run(ctx context.Context, fn func(ctx context.Context) error) error {
	// Nested units reuse the transaction already in context.
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx)
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback after %w: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
