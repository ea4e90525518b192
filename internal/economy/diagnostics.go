package economy

import (
	"time"

	"github.com/fastprodman/coinsync/internal/breaker"
	"github.com/fastprodman/coinsync/internal/reconcile"
	"github.com/fastprodman/coinsync/internal/syncqueue"
)

// Diagnostics is the operator view of the ledger.
type Diagnostics struct {
	Ready            bool                      `json:"ready"`
	Balance          int64                     `json:"balance"`
	QueueLength      int                       `json:"queueLength"`
	Failed           int                       `json:"failed"`
	Sync             syncqueue.SyncStatus      `json:"sync"`
	LastSync         time.Time                 `json:"lastSync,omitzero"`
	Breakers         []breaker.Status          `json:"breakers"`
	Degraded         bool                      `json:"degraded"`
	PersistFailures  int64                     `json:"persistFailures"`
	LastPersistError string                    `json:"lastPersistError,omitempty"`
	Mismatch         *reconcile.Mismatch       `json:"mismatch,omitempty"`
	Recovery         reconcile.Recovery        `json:"recovery"`
	Migration        reconcile.MigrationReport `json:"migration"`
}

func (m *Manager) Diagnostics() Diagnostics {
	st := m.queue.Status()

	d := Diagnostics{
		Ready:           m.ready.Load(),
		QueueLength:     st.Pending,
		Failed:          st.Failed,
		Sync:            st,
		LastSync:        st.LastSync,
		Breakers:        []breaker.Status{},
		Degraded:        m.degraded.Load(),
		PersistFailures: m.persistFailures.Load(),
	}

	if s, ok := m.lastPersistErr.Load().(string); ok {
		d.LastPersistError = s
	}

	if m.breakers != nil {
		d.Breakers = m.breakers.Snapshot()
	}

	m.mu.Lock()
	d.Balance = m.balance
	d.Mismatch = m.mismatch
	d.Recovery = m.recovery
	d.Migration = m.migration
	m.mu.Unlock()

	return d
}
