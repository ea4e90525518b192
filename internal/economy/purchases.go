package economy

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/fastprodman/coinsync/internal/syncqueue"
)

type PurchaseStatus string

const (
	PurchasePending   PurchaseStatus = "pending"
	PurchaseConfirmed PurchaseStatus = "confirmed"
	PurchaseFailed    PurchaseStatus = "failed"
)

// Purchase tracks a money-backed credit until the backend confirms it.
type Purchase struct {
	Ref       string         `json:"ref"`
	TxID      string         `json:"txId"`
	Amount    int64          `json:"amount"`
	Reason    string         `json:"reason"`
	Status    PurchaseStatus `json:"status"`
	CreatedAt time.Time      `json:"createdAt"`
	SettledAt time.Time      `json:"settledAt,omitzero"`
}

// CreditPurchase credits coins for an externally confirmed payment identified
// by ref and asks for immediate delivery. A failed delivery leaves the
// purchase pending; it is retried with the rest of the queue. Repeating a ref
// returns the existing purchase without crediting again.
func (m *Manager) CreditPurchase(ctx context.Context, ref string, amount int64, reason string) (Purchase, error) {
	err := m.guard(ctx)
	if err != nil {
		return Purchase{}, err
	}

	if ref == "" {
		return Purchase{}, fmt.Errorf("%w: empty purchase reference", ErrInvalidAmount)
	}

	if amount <= 0 {
		return Purchase{}, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}

	m.lockMutation()

	if i := m.purchaseIndexLocked(ref); i >= 0 {
		p := m.purchases[i]
		m.unlockMutation()

		return p, nil
	}

	before := m.balance
	tx := m.newTx(syncqueue.TypeCredit, amount, reason, map[string]any{"purchaseRef": ref})
	tx.Endpoint = syncqueue.EndpointLedger
	tx.BalanceBefore = before
	tx.BalanceAfter = before + amount

	p := Purchase{
		Ref:       ref,
		TxID:      tx.ID,
		Amount:    amount,
		Reason:    reason,
		Status:    PurchasePending,
		CreatedAt: tx.CreatedAt,
	}

	m.balance = tx.BalanceAfter
	m.purchases = append(m.purchases, p)
	m.recordLocked(tx)
	m.enqueueLocked(ctx, tx)

	m.events.post(Event{Kind: EventBalance, Balance: tx.BalanceAfter, Transaction: &tx, At: tx.CreatedAt})
	m.unlockMutation()

	m.events.drain(ctx)

	_, err = m.queue.Flush(ctx)
	if err != nil {
		slog.Warn("immediate purchase sync failed, left pending", "ref", ref, "tx", tx.ID, "error", err)
	}

	return m.Purchase(ref)
}

// Purchase returns the purchase recorded under ref.
func (m *Manager) Purchase(ref string) (Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.purchaseIndexLocked(ref)
	if i < 0 {
		return Purchase{}, fmt.Errorf("%w: purchase %s", ErrUnknownTransaction, ref)
	}

	return m.purchases[i], nil
}

// Purchases returns every recorded purchase, oldest first.
func (m *Manager) Purchases() []Purchase {
	m.mu.Lock()
	defer m.mu.Unlock()

	return slices.Clone(m.purchases)
}

func (m *Manager) purchaseIndexLocked(ref string) int {
	return slices.IndexFunc(m.purchases, func(p Purchase) bool { return p.Ref == ref })
}

// handleSettled runs for every confirmed or abandoned queue entry.
func (m *Manager) handleSettled(tx syncqueue.Transaction) {
	ctx := context.Background()

	m.mu.Lock()

	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].ID == tx.ID {
			m.history[i] = tx.Clone()
			break
		}
	}

	for i := range m.purchases {
		p := &m.purchases[i]
		if p.TxID != tx.ID || p.Status != PurchasePending {
			continue
		}

		p.SettledAt = tx.SettledAt
		p.Status = PurchaseConfirmed

		if tx.Status == syncqueue.StatusFailed {
			p.Status = PurchaseFailed
			slog.Error("purchase credit rejected by backend", "ref", p.Ref, "tx", tx.ID, "error", tx.LastError)
		}
	}

	m.saveLocked(ctx)

	if tx.Status == syncqueue.StatusConfirmed {
		m.backupLocked(ctx)
	}

	balance := m.balance
	m.events.post(Event{Kind: EventTransaction, Balance: balance, Transaction: &tx, At: m.now()})
	m.mu.Unlock()

	m.events.drain(ctx)
}

// settleOrphanPurchasesLocked confirms pending purchases whose transaction
// left the queue confirmed while the purchase ledger was not yet updated.
func (m *Manager) settleOrphanPurchasesLocked() {
	for i := range m.purchases {
		p := &m.purchases[i]
		if p.Status != PurchasePending {
			continue
		}

		if _, queued := m.queue.Get(p.TxID); queued {
			continue
		}

		for _, h := range m.history {
			if h.ID == p.TxID && h.Status == syncqueue.StatusConfirmed {
				p.Status = PurchaseConfirmed
				p.SettledAt = h.SettledAt
			}
		}
	}
}
