package economy

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"github.com/fastprodman/coinsync/internal/syncqueue"
)

// CorrectionReason marks transactions written by SetBalance.
const CorrectionReason = "balance correction"

// GetBalance returns the local balance. It is zero before Load.
func (m *Manager) GetBalance() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.balance
}

// AddCoins credits amount and returns the new balance.
func (m *Manager) AddCoins(ctx context.Context, amount int64, reason string, meta map[string]any) (int64, error) {
	return m.Apply(ctx, syncqueue.TypeCredit, amount, reason, meta)
}

// DeductCoins debits amount, failing with ErrInsufficientFunds when the
// balance is lower than amount.
func (m *Manager) DeductCoins(ctx context.Context, amount int64, reason string, meta map[string]any) (int64, error) {
	return m.Apply(ctx, syncqueue.TypeDebit, amount, reason, meta)
}

// Apply records a coin transaction of any ledger type (bet, win, reward...).
// Types that remove coins are rejected when they would make the balance
// negative; nothing is queued in that case.
func (m *Manager) Apply(ctx context.Context, typ syncqueue.Type, amount int64, reason string, meta map[string]any) (int64, error) {
	err := m.guard(ctx)
	if err != nil {
		return 0, err
	}

	if amount <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}

	if typ.Sign() == 0 {
		return 0, fmt.Errorf("%w: %q is not a coin transaction", ErrInvalidAmount, typ)
	}

	m.lockMutation()

	before := m.balance
	after := before + typ.Sign()*amount

	if after < 0 {
		m.unlockMutation()
		return before, fmt.Errorf("%w: balance %d, requested %d", ErrInsufficientFunds, before, amount)
	}

	tx := m.newTx(typ, amount, reason, meta)
	tx.Endpoint = syncqueue.EndpointLedger
	tx.BalanceBefore = before
	tx.BalanceAfter = after

	m.balance = after
	m.recordLocked(tx)
	m.enqueueLocked(ctx, tx)

	m.events.post(Event{Kind: EventBalance, Balance: after, Transaction: &tx, At: tx.CreatedAt})
	m.unlockMutation()

	slog.Debug("coins applied", "tx", tx.ID, "type", typ, "amount", amount, "balance", after)

	m.events.drain(ctx)
	m.kick()

	return after, nil
}

// SetBalance overwrites the balance. The correcting transaction is recorded
// in history as confirmed and is never delivered, so the backend balance is
// not moved by a local correction.
func (m *Manager) SetBalance(ctx context.Context, amount int64) (int64, error) {
	err := m.guard(ctx)
	if err != nil {
		return 0, err
	}

	if amount < 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}

	m.mu.Lock()

	before := m.balance

	typ := syncqueue.TypeCredit
	diff := amount - before

	if diff < 0 {
		typ = syncqueue.TypeDebit
		diff = -diff
	}

	tx := m.newTx(typ, diff, CorrectionReason, map[string]any{"correction": true})
	tx.BalanceBefore = before
	tx.BalanceAfter = amount
	tx.Status = syncqueue.StatusConfirmed
	tx.SettledAt = tx.CreatedAt

	m.balance = amount
	m.mismatch = nil
	m.recordLocked(tx)
	m.saveLocked(ctx)
	m.backupLocked(ctx)

	m.events.post(Event{Kind: EventBalance, Balance: amount, Transaction: &tx, At: tx.CreatedAt})
	m.mu.Unlock()

	slog.Info("balance corrected", "tx", tx.ID, "diff", amount-before)

	m.events.drain(ctx)

	return amount, nil
}

func (m *Manager) newTx(typ syncqueue.Type, amount int64, reason string, meta map[string]any) syncqueue.Transaction {
	return syncqueue.Transaction{
		ID:        syncqueue.NewID(),
		Type:      typ,
		Amount:    amount,
		Reason:    reason,
		Metadata:  maps.Clone(meta),
		CreatedAt: m.now(),
		Status:    syncqueue.StatusPending,
	}
}
