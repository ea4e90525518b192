package economy

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fastprodman/coinsync/internal/reconcile"
	"github.com/fastprodman/coinsync/internal/syncqueue"
	"github.com/fastprodman/coinsync/internal/wallet"
)

type EventKind string

const (
	EventLoaded      EventKind = "loaded"
	EventBalance     EventKind = "balance"
	EventInventory   EventKind = "inventory"
	EventBoosters    EventKind = "boosters"
	EventTransaction EventKind = "transaction"
	EventSync        EventKind = "sync"
	EventMismatch    EventKind = "mismatch"
)

// Event is what subscribers receive. Balance is always the balance at the
// time the event was produced; the other fields depend on Kind.
type Event struct {
	Kind        EventKind              `json:"kind"`
	Balance     int64                  `json:"balance"`
	Transaction *syncqueue.Transaction `json:"transaction,omitempty"`
	Item        *wallet.InventoryItem  `json:"item,omitempty"`
	Boosters    []wallet.Booster       `json:"boosters,omitempty"`
	Sync        *syncqueue.SyncStatus  `json:"sync,omitempty"`
	Mismatch    *reconcile.Mismatch    `json:"mismatch,omitempty"`
	At          time.Time              `json:"at"`
}

// Listener receives events. ctx marks the dispatch: mutations called with it
// fail with ErrReentrantMutation. Listeners must not block; a mutation made
// from a listener with any other context is rejected once listenerWait has
// passed without the listener returning.
type Listener func(ctx context.Context, ev Event)

type dispatchKey struct{}

// listenerWait bounds how long a mutation waits for a running listener.
const listenerWait = 250 * time.Millisecond

func inDispatch(ctx context.Context) bool {
	return ctx != nil && ctx.Value(dispatchKey{}) != nil
}

// eventBus delivers events in the order they were posted. Whichever goroutine
// finds the bus idle drains it, so a mutation's listeners normally run before
// the mutation returns.
type eventBus struct {
	mu       sync.Mutex
	outbox   []Event
	draining atomic.Bool

	// listening is held for the duration of each listener call
	listening sync.Mutex

	subMu   sync.RWMutex
	subs    map[int]Listener
	nextSub int
}

// Subscribe registers fn and returns a function that removes it.
func (m *Manager) Subscribe(fn Listener) func() {
	b := &m.events

	b.subMu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = fn
	b.subMu.Unlock()

	var once sync.Once

	return func() {
		once.Do(func() {
			b.subMu.Lock()
			delete(b.subs, id)
			b.subMu.Unlock()
		})
	}
}

func (b *eventBus) post(evs ...Event) {
	b.mu.Lock()
	b.outbox = append(b.outbox, evs...)
	b.mu.Unlock()
}

func (b *eventBus) drain(ctx context.Context) {
	for b.draining.CompareAndSwap(false, true) {
		for {
			b.mu.Lock()
			batch := b.outbox
			b.outbox = nil
			b.mu.Unlock()

			if len(batch) == 0 {
				break
			}

			b.deliver(ctx, batch)
		}

		b.draining.Store(false)

		b.mu.Lock()
		empty := len(b.outbox) == 0
		b.mu.Unlock()

		if empty {
			return
		}
	}
}

func (b *eventBus) deliver(ctx context.Context, batch []Event) {
	b.subMu.RLock()
	subs := make([]Listener, 0, len(b.subs))
	for id := 0; id < b.nextSub; id++ {
		if fn, ok := b.subs[id]; ok {
			subs = append(subs, fn)
		}
	}
	b.subMu.RUnlock()

	if len(subs) == 0 {
		return
	}

	dctx := context.WithValue(context.WithoutCancel(ctx), dispatchKey{}, struct{}{})

	for _, ev := range batch {
		for _, fn := range subs {
			b.listening.Lock()
			call(dctx, fn, ev)
			b.listening.Unlock()
		}
	}
}

// listenersIdle waits up to wait for the running listener, if any, to return.
// It reports false when the listener is still running, which is always the
// case when the caller is that listener.
func (b *eventBus) listenersIdle(wait time.Duration) bool {
	deadline := time.Now().Add(wait)

	for !b.listening.TryLock() {
		if time.Now().After(deadline) {
			return false
		}

		time.Sleep(time.Millisecond)
	}

	b.listening.Unlock()

	return true
}

func call(ctx context.Context, fn Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("economy listener panicked", "event", ev.Kind, "panic", r)
		}
	}()

	fn(ctx, ev)
}
