package economy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fastprodman/coinsync/internal/reconcile"
	"github.com/fastprodman/coinsync/internal/storage"
	"github.com/fastprodman/coinsync/internal/syncqueue"
	"github.com/fastprodman/coinsync/internal/wallet"
)

type state struct {
	balance   int64
	inventory []wallet.InventoryItem
	boosters  []wallet.Booster
	history   []syncqueue.Transaction
	purchases []Purchase
}

func loadState(ctx context.Context, t storage.Tier) (state, error) {
	var st state

	balance, _, err := storage.GetInt(ctx, t, storage.KeyBalance)
	if err != nil {
		return st, fmt.Errorf("load balance: %w", err)
	}

	if balance < 0 {
		slog.Warn("stored balance is negative, clamping to zero", "balance", balance)

		balance = 0
	}

	st.balance = balance

	for key, dst := range map[string]any{
		storage.KeyInventory: &st.inventory,
		storage.KeyBoosters:  &st.boosters,
		storage.KeyHistory:   &st.history,
		storage.KeyPurchases: &st.purchases,
	} {
		_, err = storage.GetJSON(ctx, t, key, dst)
		if err != nil {
			return st, fmt.Errorf("load state: %w", err)
		}
	}

	return st, nil
}

// stateEntriesLocked encodes the whole economy state. Writing all of it on
// every mutation lets one successful write repair an earlier failed one.
func (m *Manager) stateEntriesLocked() ([]storage.Entry, error) {
	entries := []storage.Entry{
		storage.IntEntry(storage.KeyBalance, m.balance),
		storage.IntEntry(storage.KeyLastSave, m.now().UnixMilli()),
	}

	for key, v := range map[string]any{
		storage.KeyInventory: nonNil(m.inventory),
		storage.KeyBoosters:  nonNil(m.boosters),
		storage.KeyHistory:   nonNil(m.history),
		storage.KeyPurchases: nonNil(m.purchases),
	} {
		e, err := storage.JSONEntry(key, v)
		if err != nil {
			return nil, err
		}

		entries = append(entries, e)
	}

	return entries, nil
}

// enqueueLocked appends tx to the sync queue and persists the full state with
// it in one durable write.
func (m *Manager) enqueueLocked(ctx context.Context, tx syncqueue.Transaction) {
	entries, err := m.stateEntriesLocked()
	if err != nil {
		m.persistFailedLocked(ctx, err)
		return
	}

	err = m.queue.Enqueue(ctx, tx, entries...)
	if err != nil {
		m.persistFailedLocked(ctx, err)
		return
	}

	m.degraded.Store(false)
}

// saveLocked persists the full state without touching the queue.
func (m *Manager) saveLocked(ctx context.Context) {
	entries, err := m.stateEntriesLocked()
	if err == nil {
		err = m.store.Durable.Put(ctx, entries...)
	}

	if err != nil {
		m.persistFailedLocked(ctx, err)
		return
	}

	m.degraded.Store(false)
}

// persistFailedLocked keeps the mutation in memory and leaves a session
// backup for the next start to recover from.
func (m *Manager) persistFailedLocked(ctx context.Context, err error) {
	m.ReportPersistFailure(err)
	m.backupLocked(ctx)
}

// ReportPersistFailure flags the state as degraded. It only touches atomics
// and is safe to call from queue callbacks.
func (m *Manager) ReportPersistFailure(err error) {
	m.degraded.Store(true)
	m.persistFailures.Add(1)
	m.lastPersistErr.Store(err.Error())

	slog.Warn("economy state not persisted, continuing in memory", "error", err)
}

func (m *Manager) backupLocked(ctx context.Context) {
	if m.store.Session == nil {
		return
	}

	err := m.store.Session.Put(ctx, reconcile.BackupEntries(m.balance, m.now())...)
	if err != nil {
		slog.Warn("refresh session backup", "error", err)
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}

	return s
}
