package transactions

import (
	"database/sql"
	"fmt"

	"github.com/fastprodman/coinsync/internal/infra/pgutils"
	"github.com/fastprodman/coinsync/internal/repos/transactions"
)

func (r *transactionsRepo) Insert(tx *sql.Tx, rec transactions.Record) error {
	meta, err := encodeMetadata(rec.Metadata)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		INSERT INTO transactions (id, account_id, type, amount, reason, metadata,
		                          balance_before, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, rec.ID, rec.AccountID, rec.Type, rec.Amount, rec.Reason, meta,
		rec.BalanceBefore, rec.BalanceAfter, rec.CreatedAt)
	if err != nil {
		if pgutils.IsUniqueViolation(err) {
			return transactions.ErrDuplicateTransaction
		}

		return fmt.Errorf("insert transaction: %w", err)
	}

	return nil
}
