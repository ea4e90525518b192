package sqlite

import (
	"context"
	"fmt"
)

func (t *Tier) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := t.db.QueryContext(ctx, `
		SELECT key
		FROM kv
		WHERE substr(key, 1, length(?)) = ?
		ORDER BY key
	`, prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("query keys: %w", err)
	}
	defer rows.Close()

	var keys []string

	for rows.Next() {
		var k string

		err = rows.Scan(&k)
		if err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}

		keys = append(keys, k)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate keys: %w", err)
	}

	return keys, nil
}
