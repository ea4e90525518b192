package transactions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fastprodman/coinsync/internal/repos/transactions"
)

func (r *transactionsRepo) Get(ctx context.Context, id string) (transactions.Record, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx, selectColumns+`WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return transactions.Record{}, transactions.ErrTransactionNotFound
		}

		return transactions.Record{}, fmt.Errorf("get transaction: %w", err)
	}

	return rec, nil
}

// ListByAccount returns the newest limit records of accountID, newest first.
func (r *transactionsRepo) ListByAccount(ctx context.Context, accountID string, limit int) ([]transactions.Record, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+`
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	//nolint:errcheck
	defer rows.Close()

	var out []transactions.Record

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}

		out = append(out, rec)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}

	return out, nil
}
