package transactions

import (
	"database/sql"
	"fmt"
)

func (r *transactionsRepo) Exists(tx *sql.Tx, id string) (bool, error) {
	var exists bool

	err := tx.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM transactions WHERE id = $1)
	`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check exists: %w", err)
	}

	return exists, nil
}
