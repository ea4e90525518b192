package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fastprodman/coinsync/internal/storage"
)

func (t *Tier) Get(ctx context.Context, key string) (storage.Record, error) {
	var (
		value     []byte
		updatedAt int64
	)

	err := t.db.QueryRowContext(ctx, `
		SELECT value, updated_at
		FROM kv
		WHERE key = ?
	`, key).Scan(&value, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Record{}, storage.ErrNotFound
		}

		return storage.Record{}, fmt.Errorf("get %s: %w", key, err)
	}

	return storage.Record{Value: value, UpdatedAt: time.UnixMilli(updatedAt)}, nil
}
