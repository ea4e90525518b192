package inventory

import (
	"database/sql"
	"fmt"

	"github.com/fastprodman/coinsync/internal/infra/pgutils"
	"github.com/fastprodman/coinsync/internal/repos/inventory"
)

func (r *inventoryRepo) EventExists(tx *sql.Tx, id string) (bool, error) {
	var exists bool

	err := tx.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM inventory_events WHERE id = $1)
	`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check event exists: %w", err)
	}

	return exists, nil
}

func (r *inventoryRepo) InsertEvent(tx *sql.Tx, ev inventory.Event) error {
	_, err := tx.Exec(`
		INSERT INTO inventory_events (id, account_id, item_id, category, delta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ev.ID, ev.AccountID, ev.ItemID, ev.Category, ev.Delta, ev.CreatedAt)
	if err != nil {
		if pgutils.IsUniqueViolation(err) {
			return inventory.ErrDuplicateEvent
		}

		return fmt.Errorf("insert inventory event: %w", err)
	}

	return nil
}
