package sqlite

import (
	"context"
	"fmt"

	"github.com/fastprodman/coinsync/internal/storage"
)

func (t *Tier) Put(ctx context.Context, entries ...storage.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	ts := t.now().UnixMilli()

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	for _, e := range entries {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at
		`, e.Key, e.Value, ts)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("put %s: %w", e.Key, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}
