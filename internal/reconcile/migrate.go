// Package reconcile brings persisted state into a consistent shape on start
// and compares it against the backend.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/fastprodman/coinsync/internal/storage"
	"github.com/fastprodman/coinsync/internal/syncqueue"
	"github.com/fastprodman/coinsync/internal/wallet"
)

type legacyItem struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Count    int64  `json:"count"`
}

type legacyQueued struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Amount    int64  `json:"amount"`
	Reason    string `json:"reason"`
	Timestamp int64  `json:"timestamp"` // unix ms
}

// MigrationReport describes what MigrateLegacy carried over.
type MigrationReport struct {
	Balance  bool `json:"balance"`
	Items    int  `json:"items"`
	Queued   int  `json:"queued"`
	Skipped  int  `json:"skipped"`
	Migrated bool `json:"migrated"`
}

// MigrateLegacy moves values from the pre-schema wallet_* keys into the current
// layout and deletes the old keys. Values already present under current keys
// win. Running it again after a crash is safe.
//
//nolint:gocognit,cyclop
func MigrateLegacy(ctx context.Context, tier storage.Tier, now func() time.Time) (MigrationReport, error) {
	var rep MigrationReport

	legacyKeys, err := tier.Keys(ctx, "wallet_")
	if err != nil {
		return rep, fmt.Errorf("list legacy keys: %w", err)
	}

	version, _, err := storage.GetInt(ctx, tier, storage.KeySchemaVersion)
	if err != nil {
		return rep, fmt.Errorf("read schema version: %w", err)
	}

	if len(legacyKeys) == 0 {
		if version < storage.SchemaVersion {
			err = tier.Put(ctx, storage.IntEntry(storage.KeySchemaVersion, storage.SchemaVersion))
			if err != nil {
				return rep, fmt.Errorf("write schema version: %w", err)
			}
		}

		return rep, nil
	}

	var batch []storage.Entry

	// balance
	legacyBal, hasLegacyBal, err := storage.GetInt(ctx, tier, storage.LegacyKeyBalance)
	if err != nil {
		slog.Warn("unreadable legacy balance, dropping it", "error", err)
	}

	_, hasBal, err := readDurableInt(ctx, tier, storage.KeyBalance)
	if err != nil {
		return rep, fmt.Errorf("read balance: %w", err)
	}

	if hasLegacyBal && !hasBal && legacyBal >= 0 {
		batch = append(batch, storage.IntEntry(storage.KeyBalance, legacyBal))
		rep.Balance = true
	}

	// inventory
	var legacyInv []legacyItem

	_, err = storage.GetJSON(ctx, tier, storage.LegacyKeyInv, &legacyInv)
	if err != nil {
		slog.Warn("unreadable legacy inventory, dropping it", "error", err)
	}

	if len(legacyInv) > 0 {
		var inv []wallet.InventoryItem

		_, err = storage.GetJSON(ctx, tier, storage.KeyInventory, &inv)
		if err != nil {
			return rep, fmt.Errorf("read inventory: %w", err)
		}

		held := make(map[wallet.ItemKey]bool, len(inv))
		for _, it := range inv {
			held[it.Key()] = true
		}

		merged := make(map[wallet.ItemKey]int, 0)

		for _, li := range legacyInv {
			if li.ID == "" || li.Count <= 0 {
				rep.Skipped++
				continue
			}

			key := wallet.ItemKey{ItemID: li.ID, Category: li.Category}
			if held[key] {
				continue
			}

			if idx, ok := merged[key]; ok {
				inv[idx].Quantity += li.Count
				continue
			}

			merged[key] = len(inv)
			inv = append(inv, wallet.InventoryItem{ItemID: li.ID, Category: li.Category, Quantity: li.Count})
			rep.Items++
		}

		if rep.Items > 0 {
			entry, err := storage.JSONEntry(storage.KeyInventory, inv)
			if err != nil {
				return rep, err
			}

			batch = append(batch, entry)
		}
	}

	// offline queue
	var legacyQueue []legacyQueued

	_, err = storage.GetJSON(ctx, tier, storage.LegacyKeyQueue, &legacyQueue)
	if err != nil {
		slog.Warn("unreadable legacy queue, dropping it", "error", err)
	}

	if len(legacyQueue) > 0 {
		var pending []syncqueue.Transaction

		_, err = storage.GetJSON(ctx, tier, storage.KeyPending, &pending)
		if err != nil {
			return rep, fmt.Errorf("read pending: %w", err)
		}

		known := make(map[string]bool, len(pending))
		for _, tx := range pending {
			known[tx.ID] = true
		}

		var carried []syncqueue.Transaction

		for _, lq := range legacyQueue {
			tx, ok := convertQueued(lq, now)
			if !ok {
				rep.Skipped++
				continue
			}

			if known[tx.ID] {
				continue
			}

			known[tx.ID] = true
			carried = append(carried, tx)
		}

		if len(carried) > 0 {
			rep.Queued = len(carried)

			entry, err := storage.JSONEntry(storage.KeyPending, slices.Concat(carried, pending))
			if err != nil {
				return rep, err
			}

			batch = append(batch, entry)
		}
	}

	batch = append(batch, storage.IntEntry(storage.KeySchemaVersion, storage.SchemaVersion))

	err = tier.Put(ctx, batch...)
	if err != nil {
		return rep, fmt.Errorf("write migrated values: %w", err)
	}

	err = tier.Delete(ctx, legacyKeys...)
	if err != nil {
		return rep, fmt.Errorf("delete legacy keys: %w", err)
	}

	rep.Migrated = true

	slog.Info("legacy storage migrated",
		"balance", rep.Balance, "items", rep.Items, "queued", rep.Queued,
		"skipped", rep.Skipped, "deleted_keys", legacyKeys)

	return rep, nil
}

func convertQueued(lq legacyQueued, now func() time.Time) (syncqueue.Transaction, bool) {
	typ := legacyType(lq.Type)
	if typ == "" || lq.Amount == 0 {
		return syncqueue.Transaction{}, false
	}

	amount := lq.Amount
	if amount < 0 {
		amount = -amount
	}

	id := lq.ID
	if id == "" {
		id = syncqueue.NewID()
	}

	created := now()
	if lq.Timestamp > 0 {
		created = time.UnixMilli(lq.Timestamp)
	}

	return syncqueue.Transaction{
		ID:        id,
		Type:      typ,
		Amount:    amount,
		Reason:    lq.Reason,
		Endpoint:  syncqueue.EndpointLedger,
		CreatedAt: created,
		Status:    syncqueue.StatusPending,
		Metadata:  map[string]any{"migratedFrom": storage.LegacyKeyQueue},
	}, true
}

func legacyType(s string) syncqueue.Type {
	t := syncqueue.Type(strings.ToLower(strings.TrimSpace(s)))
	if t.Valid() && t != syncqueue.TypeInventory {
		return t
	}

	switch t {
	case "add", "earn", "grant":
		return syncqueue.TypeCredit
	case "spend", "deduct", "remove":
		return syncqueue.TypeDebit
	default:
		return ""
	}
}
