package inventory

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/fastprodman/coinsync/internal/repos/inventory"
)

func (r *inventoryRepo) Adjust(tx *sql.Tx, accountID, itemID, category string, delta int64) (int64, error) {
	if delta > 0 {
		return r.add(tx, accountID, itemID, category, delta)
	}

	return r.remove(tx, accountID, itemID, category, -delta)
}

func (r *inventoryRepo) add(tx *sql.Tx, accountID, itemID, category string, n int64) (int64, error) {
	var qty int64

	err := tx.QueryRow(`
		INSERT INTO inventory (account_id, item_id, category, quantity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id, item_id, category)
		DO UPDATE SET quantity = inventory.quantity + EXCLUDED.quantity
		RETURNING quantity
	`, accountID, itemID, category, n).Scan(&qty)
	if err != nil {
		return 0, fmt.Errorf("add item: %w", err)
	}

	return qty, nil
}

func (r *inventoryRepo) remove(tx *sql.Tx, accountID, itemID, category string, n int64) (int64, error) {
	var qty int64

	err := tx.QueryRow(`
		UPDATE inventory
		SET quantity = quantity - $4
		WHERE account_id = $1 AND item_id = $2 AND category = $3
		  AND quantity >= $4
		RETURNING quantity
	`, accountID, itemID, category, n).Scan(&qty)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, inventory.ErrInsufficientQuantity
		}

		return 0, fmt.Errorf("remove item: %w", err)
	}

	if qty > 0 {
		return qty, nil
	}

	_, err = tx.Exec(`
		DELETE FROM inventory
		WHERE account_id = $1 AND item_id = $2 AND category = $3
	`, accountID, itemID, category)
	if err != nil {
		return 0, fmt.Errorf("delete empty slot: %w", err)
	}

	return 0, nil
}
