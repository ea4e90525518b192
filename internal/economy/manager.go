// Package economy is the single source of truth for balance, inventory and
// boosters.
//
// Mutations are applied in memory, written to the durable tier and appended
// to the transaction queue before they return. Delivery to the backend
// happens later and never changes what a caller has already observed.
package economy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fastprodman/coinsync/internal/breaker"
	"github.com/fastprodman/coinsync/internal/reconcile"
	"github.com/fastprodman/coinsync/internal/storage"
	"github.com/fastprodman/coinsync/internal/syncqueue"
	"github.com/fastprodman/coinsync/internal/wallet"
)

var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidItem        = errors.New("invalid item")
	ErrInvalidBooster     = errors.New("invalid booster")
	ErrNotReady           = errors.New("economy not loaded")
	ErrAlreadyLoaded      = errors.New("economy already loaded")
	ErrUnknownTransaction = errors.New("unknown transaction")

	// ErrReentrantMutation is returned for mutations made from inside a
	// subscriber callback with the context the callback was given.
	ErrReentrantMutation = errors.New("mutation from inside a subscriber callback")
)

// Kicker asks the sync runner for a delivery pass.
type Kicker interface {
	Kick()
}

type Config struct {
	// HistoryLimit bounds the persisted transaction history.
	HistoryLimit int
}

func DefaultConfig() Config {
	return Config{HistoryLimit: 200}
}

type Manager struct {
	cfg      Config
	store    storage.Store
	queue    *syncqueue.Queue
	breakers *breaker.Registry
	remote   reconcile.BalanceSource
	kicker   Kicker
	now      func() time.Time

	loadOnce sync.Once
	done     chan struct{}
	loadErr  error
	ready    atomic.Bool

	mu        sync.Mutex
	balance   int64
	inventory []wallet.InventoryItem
	boosters  []wallet.Booster
	history   []syncqueue.Transaction
	purchases []Purchase
	mismatch  *reconcile.Mismatch
	recovery  reconcile.Recovery
	migration reconcile.MigrationReport

	degraded        atomic.Bool
	persistFailures atomic.Int64
	lastPersistErr  atomic.Value

	events   eventBus
	mutating atomic.Int32
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithBreakers exposes the registry's endpoint states through Diagnostics.
func WithBreakers(r *breaker.Registry) Option {
	return func(m *Manager) { m.breakers = r }
}

// WithRemote sets the backend balance source used by CheckRemote.
func WithRemote(src reconcile.BalanceSource) Option {
	return func(m *Manager) { m.remote = src }
}

// WithKicker is told about every mutation so delivery starts right away.
func WithKicker(k Kicker) Option {
	return func(m *Manager) { m.kicker = k }
}

// New constructs a manager. It is unusable for mutations until Load succeeds.
func New(cfg Config, store storage.Store, queue *syncqueue.Queue, opts ...Option) *Manager {
	if cfg.HistoryLimit < 1 {
		cfg.HistoryLimit = DefaultConfig().HistoryLimit
	}

	m := &Manager{
		cfg:   cfg,
		store: store,
		queue: queue,
		now:   time.Now,
		done:  make(chan struct{}),
	}
	m.events.subs = make(map[int]Listener)

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Load migrates legacy data, recovers the balance from the session backup
// when the durable write looks lost, loads state, restores the queue and then
// opens the ready barrier. It runs at most once.
func (m *Manager) Load(ctx context.Context) error {
	ran := false

	m.loadOnce.Do(func() {
		ran = true
		m.loadErr = m.load(ctx)
		close(m.done)
	})

	if !ran {
		return ErrAlreadyLoaded
	}

	return m.loadErr
}

func (m *Manager) load(ctx context.Context) error {
	rep, err := reconcile.MigrateLegacy(ctx, m.store.Durable, m.now)
	if err != nil {
		return fmt.Errorf("migrate legacy state: %w", err)
	}

	rec, err := reconcile.RecoverBalance(ctx, m.store)
	if err != nil {
		return fmt.Errorf("recover balance: %w", err)
	}

	st, err := loadState(ctx, m.store.Durable)
	if err != nil {
		return err
	}

	err = m.queue.Restore(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.balance = st.balance
	m.inventory = st.inventory
	m.boosters = st.boosters
	m.history = st.history
	m.purchases = st.purchases
	m.recovery = rec
	m.migration = rep
	m.trimHistoryLocked()
	m.settleOrphanPurchasesLocked()
	balance := m.balance
	m.mu.Unlock()

	m.queue.OnSettled(m.handleSettled)
	m.queue.SubscribeStatus(func(s syncqueue.SyncStatus) {
		m.events.post(Event{Kind: EventSync, Sync: &s, At: m.now()})

		// a mutation in flight drains after releasing the state lock
		if m.mutating.Load() == 0 {
			m.events.drain(context.Background())
		}
	})

	m.ready.Store(true)

	slog.Info("economy loaded",
		"items", len(st.inventory), "boosters", len(st.boosters),
		"pending", m.queue.Len(), "migrated", rep.Migrated, "restored_from_backup", rec.Restored)
	slog.Debug("economy balance", "balance", balance)

	m.events.post(Event{Kind: EventLoaded, Balance: balance, At: m.now()})
	m.events.drain(ctx)

	return nil
}

// Ready is closed once Load has finished, successfully or not.
func (m *Manager) Ready() <-chan struct{} {
	return m.done
}

// Wait blocks until Load has finished and returns its error.
func (m *Manager) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("wait for economy: %w", ctx.Err())
	case <-m.done:
		return m.loadErr
	}
}

// guard rejects mutations before the ready barrier and from inside callbacks.
func (m *Manager) guard(ctx context.Context) error {
	if !m.ready.Load() {
		return ErrNotReady
	}

	if inDispatch(ctx) || !m.events.listenersIdle(listenerWait) {
		return ErrReentrantMutation
	}

	return nil
}

// lockMutation takes the state lock for a mutation that enqueues.
func (m *Manager) lockMutation() {
	m.mu.Lock()
	m.mutating.Add(1)
}

func (m *Manager) unlockMutation() {
	m.mu.Unlock()
	m.mutating.Add(-1)
}

func (m *Manager) kick() {
	if m.kicker != nil {
		m.kicker.Kick()
	}
}

// SyncWithBackend runs an immediate delivery pass over every pending
// transaction, ignoring backoff delays. Open breakers still apply.
func (m *Manager) SyncWithBackend(ctx context.Context) (syncqueue.PassResult, error) {
	if !m.ready.Load() {
		return syncqueue.PassResult{}, ErrNotReady
	}

	res, err := m.queue.Flush(ctx)
	if err != nil {
		return res, fmt.Errorf("sync with backend: %w", err)
	}

	return res, nil
}

// CheckRemote compares the local balance with the backend. A mismatch is
// recorded, published to subscribers and returned; it is never corrected here.
func (m *Manager) CheckRemote(ctx context.Context) error {
	if !m.ready.Load() {
		return ErrNotReady
	}

	err := reconcile.CompareRemote(ctx, m.remote, m.GetBalance(), m.queue.Len(), m.now())

	var mm *reconcile.Mismatch

	switch {
	case err == nil:
		m.mu.Lock()
		m.mismatch = nil
		m.mu.Unlock()

		return nil

	case errors.As(err, &mm):
		m.mu.Lock()
		m.mismatch = mm
		m.mu.Unlock()

		m.events.post(Event{Kind: EventMismatch, Balance: mm.Local, Mismatch: mm, At: mm.DetectedAt})
		m.events.drain(ctx)

		return err

	default:
		return err
	}
}
