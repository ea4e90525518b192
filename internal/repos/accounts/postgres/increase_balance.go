package accounts

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/fastprodman/coinsync/internal/repos/accounts"
)

// IncreaseBalance returns the balance after the credit.
func (r *accountsRepo) IncreaseBalance(tx *sql.Tx, accountID string, amount int64) (int64, error) {
	var balance int64

	err := tx.QueryRow(`
		UPDATE accounts
		SET balance = balance + $2, updated_at = now()
		WHERE id = $1
		RETURNING balance
	`, accountID, amount).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, accounts.ErrAccountNotFound
		}

		return 0, fmt.Errorf("increase balance: %w", err)
	}

	return balance, nil
}
