package accounts

import (
	"database/sql"
	"fmt"
)

func (r *accountsRepo) Ensure(tx *sql.Tx, accountID string) error {
	_, err := tx.Exec(`
		INSERT INTO accounts (id)
		VALUES ($1)
		ON CONFLICT (id) DO NOTHING
	`, accountID)
	if err != nil {
		return fmt.Errorf("ensure account: %w", err)
	}

	return nil
}
