package economy

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/fastprodman/coinsync/internal/syncqueue"
	"github.com/fastprodman/coinsync/internal/wallet"
)

// GetInventory returns the held items in the order they were first granted.
// Expired boosters are dropped from memory as a side effect and written out
// with the next persisted change.
func (m *Manager) GetInventory() []wallet.InventoryItem {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.purgeExpiredLocked()

	return cloneItems(m.inventory, func(wallet.InventoryItem) bool { return true })
}

// GetItemsByType returns the held items of category.
func (m *Manager) GetItemsByType(category string) []wallet.InventoryItem {
	m.mu.Lock()
	defer m.mu.Unlock()

	return cloneItems(m.inventory, func(it wallet.InventoryItem) bool { return it.Category == category })
}

// HasItem reports whether any quantity of itemID is held, in any category.
func (m *Manager) HasItem(itemID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return slices.ContainsFunc(m.inventory, func(it wallet.InventoryItem) bool {
		return it.ItemID == itemID && it.Quantity > 0
	})
}

// AddItem grants item.Quantity units. Quantities of an already held item are
// incremented and its metadata is merged, new keys winning.
func (m *Manager) AddItem(ctx context.Context, item wallet.InventoryItem) error {
	err := m.guard(ctx)
	if err != nil {
		return err
	}

	if item.ItemID == "" || item.Category == "" {
		return fmt.Errorf("%w: item id and category are required", ErrInvalidItem)
	}

	if item.Quantity <= 0 {
		return fmt.Errorf("%w: quantity %d", ErrInvalidAmount, item.Quantity)
	}

	m.lockMutation()

	i := m.itemIndexLocked(item.Key())
	if i < 0 {
		m.inventory = append(m.inventory, wallet.InventoryItem{
			ItemID:   item.ItemID,
			Category: item.Category,
		})
		i = len(m.inventory) - 1
	}

	held := &m.inventory[i]
	held.Quantity += item.Quantity

	if len(item.Metadata) > 0 {
		if held.Metadata == nil {
			held.Metadata = make(map[string]any, len(item.Metadata))
		}

		maps.Copy(held.Metadata, item.Metadata)
	}

	m.itemChangedLocked(ctx, *held, item.Quantity, "item granted")
	m.unlockMutation()

	m.events.drain(ctx)
	m.kick()

	return nil
}

// RemoveItem takes quantity units of an item. It returns false, changing
// nothing, when fewer units are held.
func (m *Manager) RemoveItem(ctx context.Context, itemID, category string, quantity int64) (bool, error) {
	err := m.guard(ctx)
	if err != nil {
		return false, err
	}

	if quantity <= 0 {
		return false, fmt.Errorf("%w: quantity %d", ErrInvalidAmount, quantity)
	}

	m.lockMutation()

	i := m.itemIndexLocked(wallet.ItemKey{ItemID: itemID, Category: category})
	if i < 0 || m.inventory[i].Quantity < quantity {
		m.unlockMutation()
		return false, nil
	}

	m.inventory[i].Quantity -= quantity
	left := m.inventory[i]

	if left.Quantity == 0 {
		m.inventory = slices.Delete(m.inventory, i, i+1)
	}

	m.itemChangedLocked(ctx, left, -quantity, "item consumed")
	m.unlockMutation()

	m.events.drain(ctx)
	m.kick()

	return true, nil
}

// itemChangedLocked records, persists and queues an inventory delta.
func (m *Manager) itemChangedLocked(ctx context.Context, item wallet.InventoryItem, delta int64, reason string) {
	tx := m.newTx(syncqueue.TypeInventory, 0, reason, nil)
	tx.Endpoint = syncqueue.EndpointInventory
	tx.Item = &syncqueue.ItemDelta{ItemID: item.ItemID, Category: item.Category, Delta: delta}
	tx.BalanceBefore = m.balance
	tx.BalanceAfter = m.balance

	m.recordLocked(tx)
	m.enqueueLocked(ctx, tx)

	item.Metadata = maps.Clone(item.Metadata)
	m.events.post(Event{Kind: EventInventory, Balance: m.balance, Item: &item, Transaction: &tx, At: tx.CreatedAt})
}

func (m *Manager) itemIndexLocked(key wallet.ItemKey) int {
	return slices.IndexFunc(m.inventory, func(it wallet.InventoryItem) bool { return it.Key() == key })
}

func cloneItems(items []wallet.InventoryItem, keep func(wallet.InventoryItem) bool) []wallet.InventoryItem {
	out := make([]wallet.InventoryItem, 0, len(items))

	for _, it := range items {
		if !keep(it) {
			continue
		}

		it.Metadata = maps.Clone(it.Metadata)
		out = append(out, it)
	}

	return out
}
