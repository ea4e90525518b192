package accounts

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/fastprodman/coinsync/internal/repos/accounts"
)

// DecreaseBalance returns the balance after the debit. A debit that would take
// the balance below zero changes nothing and fails with ErrInsufficientFunds.
func (r *accountsRepo) DecreaseBalance(tx *sql.Tx, accountID string, amount int64) (int64, error) {
	var balance int64

	err := tx.QueryRow(`
		UPDATE accounts
		SET balance = balance - $2, updated_at = now()
		WHERE id = $1
		  AND balance >= $2
		RETURNING balance
	`, accountID, amount).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, accounts.ErrInsufficientFunds
		}

		return 0, fmt.Errorf("decrease balance: %w", err)
	}

	return balance, nil
}
