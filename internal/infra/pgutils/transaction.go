package pgutils

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// TxFunc is the body of a database transaction.
type TxFunc func(tx *sql.Tx) error

// WithTx runs fn inside a read-committed transaction, committing when fn
// returns nil and rolling back otherwise. A panic in fn rolls back and is
// re-raised.
func WithTx(ctx context.Context, db *sql.DB, fn TxFunc) error {
	return WithTxOptions(ctx, db, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, fn)
}

// WithTxOptions is WithTx with explicit isolation and read-only settings.
func WithTxOptions(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn TxFunc) error {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		p := recover()
		if p == nil {
			return
		}

		_ = tx.Rollback()

		panic(p)
	}()

	err = fn(tx)
	if err != nil {
		rbErr := tx.Rollback()
		if rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(fmt.Errorf("fn: %w", err), fmt.Errorf("rollback: %w", rbErr))
		}

		return fmt.Errorf("fn: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}
