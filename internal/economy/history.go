package economy

import (
	"fmt"
	"slices"

	"github.com/fastprodman/coinsync/internal/syncqueue"
)

// recordLocked appends tx to the bounded history.
func (m *Manager) recordLocked(tx syncqueue.Transaction) {
	m.history = append(m.history, tx.Clone())
	m.trimHistoryLocked()
}

func (m *Manager) trimHistoryLocked() {
	if over := len(m.history) - m.cfg.HistoryLimit; over > 0 {
		m.history = slices.Delete(m.history, 0, over)
	}
}

// History returns the recorded transactions, oldest first.
func (m *Manager) History() []syncqueue.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]syncqueue.Transaction, len(m.history))
	for i := range m.history {
		out[i] = m.history[i].Clone()
	}

	return out
}

// Transaction looks id up, preferring the live queue entry over history.
func (m *Manager) Transaction(id string) (syncqueue.Transaction, error) {
	tx, ok := m.queue.Get(id)
	if ok {
		return tx, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].ID == id {
			return m.history[i].Clone(), nil
		}
	}

	return syncqueue.Transaction{}, fmt.Errorf("%w: %s", ErrUnknownTransaction, id)
}
