package inventory

import (
	"context"
	"fmt"

	"github.com/fastprodman/coinsync/internal/repos/inventory"
)

func (r *inventoryRepo) List(ctx context.Context, accountID string) ([]inventory.Item, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT item_id, category, quantity
		FROM inventory
		WHERE account_id = $1
		ORDER BY category, item_id
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	//nolint:errcheck
	defer rows.Close()

	var items []inventory.Item

	for rows.Next() {
		var it inventory.Item

		err = rows.Scan(&it.ItemID, &it.Category, &it.Quantity)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}

		items = append(items, it)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate inventory: %w", err)
	}

	return items, nil
}
