package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fastprodman/coinsync/internal/storage"
)

// Recovery describes what RecoverBalance decided.
type Recovery struct {
	Restored bool  `json:"restored"`
	Durable  int64 `json:"durable"`
	Backup   int64 `json:"backup"`
}

// RecoverBalance compares the durable balance with the session backup. When
// they disagree and the durable tier was last saved before the backup was
// taken, the durable write is assumed lost or partial and the backup is
// written back to the durable tier.
func RecoverBalance(ctx context.Context, store storage.Store) (Recovery, error) {
	var rec Recovery

	if store.Session == nil {
		return rec, nil
	}

	backup, hasBackup, err := storage.GetInt(ctx, store.Session, storage.KeyBackupBalance)
	if err != nil {
		slog.Warn("unreadable session backup, ignoring it", "error", err)
		return rec, nil
	}

	if !hasBackup {
		return rec, nil
	}

	backupAt, _, err := storage.GetInt(ctx, store.Session, storage.KeyBackupSavedAt)
	if err != nil {
		slog.Warn("unreadable session backup timestamp, ignoring backup", "error", err)
		return rec, nil
	}

	durable, hasDurable, err := readDurableInt(ctx, store.Durable, storage.KeyBalance)
	if err != nil {
		return rec, fmt.Errorf("read durable balance: %w", err)
	}

	savedAt, _, err := readDurableInt(ctx, store.Durable, storage.KeyLastSave)
	if err != nil {
		return rec, fmt.Errorf("read last save: %w", err)
	}

	rec.Durable = durable
	rec.Backup = backup

	if hasDurable && (durable == backup || savedAt >= backupAt) {
		return rec, nil
	}

	if backup < 0 {
		slog.Warn("session backup holds a negative balance, ignoring it", "backup", backup)
		return rec, nil
	}

	err = store.Durable.Put(ctx,
		storage.IntEntry(storage.KeyBalance, backup),
		storage.IntEntry(storage.KeyLastSave, backupAt),
	)
	if err != nil {
		return rec, fmt.Errorf("restore balance from backup: %w", err)
	}

	rec.Restored = true

	slog.Warn("durable balance restored from session backup",
		"durable", durable, "backup", backup,
		"durable_saved_at", time.UnixMilli(savedAt), "backup_saved_at", time.UnixMilli(backupAt))

	return rec, nil
}

// readDurableInt treats an undecodable value as absent so that a newer
// session backup can replace it. Read failures are still returned.
func readDurableInt(ctx context.Context, t storage.Tier, key string) (int64, bool, error) {
	n, ok, err := storage.GetInt(ctx, t, key)
	if errors.Is(err, storage.ErrCorrupt) {
		slog.Warn("corrupt durable value, treating it as missing", "key", key, "error", err)
		return 0, false, nil
	}

	return n, ok, err
}

// BackupEntries builds the session-tier entries for a balance backup.
func BackupEntries(balance int64, at time.Time) []storage.Entry {
	return []storage.Entry{
		storage.IntEntry(storage.KeyBackupBalance, balance),
		storage.IntEntry(storage.KeyBackupSavedAt, at.UnixMilli()),
	}
}
