// Package syncqueue delivers locally applied ledger mutations to the backend.
//
// Transactions are kept in creation order and persisted after every change.
// A processing pass walks them FIFO per endpoint, consults the breaker
// registry before each call, and stops working on an endpoint for the rest
// of the pass as soon as one of its deliveries fails.
package syncqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fastprodman/coinsync/internal/breaker"
	"github.com/fastprodman/coinsync/internal/storage"
)

// Deliverer sends one transaction to the backend. Implementations must treat
// tx.ID as an idempotency key and return errors wrapping ErrNetwork,
// ErrTimeout or ErrRejected.
type Deliverer interface {
	Deliver(ctx context.Context, tx Transaction) error
}

type Config struct {
	// MaxAttempts is how many failed deliveries mark a transaction failed.
	MaxAttempts int
	Backoff     Backoff
	// AttemptTimeout bounds a single delivery call.
	AttemptTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:    8,
		Backoff:        DefaultBackoff(),
		AttemptTimeout: 10 * time.Second,
	}
}

// Outcome labels a delivery attempt for observers.
type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeRetry     Outcome = "retry"
	OutcomeFailed    Outcome = "failed"
	OutcomeRejected  Outcome = "rejected"
)

// DeliveryObserver is called after every delivery attempt.
type DeliveryObserver func(endpoint string, outcome Outcome, took time.Duration)

// PassResult summarizes one processing pass.
type PassResult struct {
	Delivered int
	Retrying  int
	Failed    int
	// Deferred counts endpoints whose head entry was still backing off.
	Deferred int
	// Skipped counts endpoints whose breaker was open.
	Skipped int
	// Coalesced is set when another pass was already running and this call
	// did nothing.
	Coalesced bool
}

type Queue struct {
	mu        sync.Mutex
	cfg       Config
	journal   Journal
	deliverer Deliverer
	breakers  *breaker.Registry
	now       func() time.Time

	items    []Transaction
	lastSync time.Time
	online   bool
	syncing  bool

	processing atomic.Bool

	hooksMu   sync.RWMutex
	settled   []func(Transaction)
	statusSub map[int]func(SyncStatus)
	nextSub   int

	onPersistErr func(error)
	observer     DeliveryObserver
}

type Option func(*Queue)

func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithPersistErrorHandler is called when a journal write fails during a pass.
func WithPersistErrorHandler(fn func(error)) Option {
	return func(q *Queue) { q.onPersistErr = fn }
}

func WithDeliveryObserver(o DeliveryObserver) Option {
	return func(q *Queue) { q.observer = o }
}

func New(cfg Config, journal Journal, deliverer Deliverer, breakers *breaker.Registry, opts ...Option) *Queue {
	def := DefaultConfig()
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = def.MaxAttempts
	}

	if cfg.Backoff.Base <= 0 || cfg.Backoff.Max <= 0 {
		cfg.Backoff = def.Backoff
	}

	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = def.AttemptTimeout
	}

	q := &Queue{
		cfg:       cfg,
		journal:   journal,
		deliverer: deliverer,
		breakers:  breakers,
		now:       time.Now,
		online:    true,
		statusSub: make(map[int]func(SyncStatus)),
	}
	for _, opt := range opts {
		opt(q)
	}

	return q
}

// Restore loads the persisted queue. Entries caught mid-delivery by a crash
// go back to pending; the backend deduplicates by id.
func (q *Queue) Restore(ctx context.Context) error {
	items, err := q.journal.LoadPending(ctx)
	if err != nil {
		return fmt.Errorf("restore queue: %w", err)
	}

	demoted := 0

	for i := range items {
		if items[i].Status == StatusSyncing || items[i].Status == "" {
			items[i].Status = StatusPending
			demoted++
		}
	}

	q.mu.Lock()
	q.items = items
	q.mu.Unlock()

	slog.Info("transaction queue restored", "entries", len(items), "demoted", demoted)
	q.publishStatus()

	return nil
}

// Enqueue appends tx as pending and persists the queue together with extra in
// one durable write. On a persistence error tx stays queued in memory and the
// error is returned for the caller to report.
func (q *Queue) Enqueue(ctx context.Context, tx Transaction, extra ...storage.Entry) error {
	tx = tx.Clone()
	tx.Status = StatusPending

	q.mu.Lock()
	q.items = append(q.items, tx)
	snapshot := q.cloneItemsLocked()
	err := q.journal.SavePending(ctx, snapshot, extra...)
	q.mu.Unlock()

	q.publishStatus()

	if err != nil {
		return fmt.Errorf("enqueue %s: %w", tx.ID, err)
	}

	return nil
}

// Process runs one pass that honours per-entry backoff.
func (q *Queue) Process(ctx context.Context) (PassResult, error) {
	return q.process(ctx, false)
}

// Flush runs one pass that ignores backoff delays. Open breakers still apply.
func (q *Queue) Flush(ctx context.Context) (PassResult, error) {
	return q.process(ctx, true)
}

//nolint:gocognit,cyclop
func (q *Queue) process(ctx context.Context, ignoreBackoff bool) (PassResult, error) {
	var res PassResult

	if !q.processing.CompareAndSwap(false, true) {
		res.Coalesced = true
		return res, nil
	}
	defer q.processing.Store(false)

	q.setSyncing(true)
	defer q.setSyncing(false)

	blocked := make(map[string]bool)

	for {
		if ctx.Err() != nil {
			return res, fmt.Errorf("process queue: %w", ctx.Err())
		}

		tx, ok := q.next(blocked, ignoreBackoff, &res)
		if !ok {
			break
		}

		attemptCtx, cancel := context.WithTimeout(ctx, q.cfg.AttemptTimeout)
		started := q.now()
		derr := q.deliverer.Deliver(attemptCtx, tx)
		cancel()

		if derr != nil && ctx.Err() != nil {
			// abandoned by the caller: the attempt does not count and the
			// breaker gets its probe slot back
			q.breakers.Release(tx.Endpoint)
			q.settle(tx.ID, func(item *Transaction) { item.Status = StatusPending })
			return res, fmt.Errorf("process queue: %w", ctx.Err())
		}

		took := q.now().Sub(started)

		switch {
		case derr == nil:
			q.breakers.RecordSuccess(tx.Endpoint)
			done := q.complete(tx.ID, StatusConfirmed, "")
			res.Delivered++

			q.observe(tx.Endpoint, OutcomeConfirmed, took)
			q.notifySettled(done)

		case errors.Is(derr, ErrRejected):
			// the backend answered, so the endpoint is healthy
			q.breakers.RecordSuccess(tx.Endpoint)
			done := q.complete(tx.ID, StatusFailed, derr.Error())
			res.Failed++

			slog.Warn("transaction rejected", "tx", tx.ID, "endpoint", tx.Endpoint, "error", derr)
			q.observe(tx.Endpoint, OutcomeRejected, took)
			q.notifySettled(done)

		default:
			derr = classify(derr)
			q.breakers.RecordFailure(tx.Endpoint)
			blocked[tx.Endpoint] = true

			var (
				abandoned bool
				after     Transaction
			)

			q.settle(tx.ID, func(item *Transaction) {
				item.Attempts++
				item.LastError = derr.Error()

				if item.Attempts >= q.cfg.MaxAttempts {
					item.Status = StatusFailed
					item.SettledAt = q.now()
					item.NextAttemptAt = time.Time{}
					abandoned = true
				} else {
					item.Status = StatusPending
					item.NextAttemptAt = q.now().Add(q.cfg.Backoff.Delay(item.Attempts))
				}

				after = item.Clone()
			})

			q.setOnline(false)

			if abandoned {
				res.Failed++

				slog.Error("transaction abandoned after max attempts",
					"tx", tx.ID, "attempts", after.Attempts, "error", derr)
				q.observe(tx.Endpoint, OutcomeFailed, took)
				q.notifySettled(&after)
			} else {
				res.Retrying++

				slog.Warn("delivery failed",
					"tx", tx.ID, "endpoint", tx.Endpoint, "attempts", after.Attempts,
					"retry_at", after.NextAttemptAt, "error", derr)
				q.observe(tx.Endpoint, OutcomeRetry, took)
			}
		}
	}

	if res.Delivered > 0 || res.Failed > 0 || res.Retrying > 0 {
		slog.Info("sync pass finished",
			"delivered", res.Delivered, "retrying", res.Retrying, "failed", res.Failed,
			"deferred", res.Deferred, "skipped", res.Skipped)
	}

	return res, nil
}

// next picks the oldest pending entry whose endpoint is not blocked, marks it
// syncing and persists that. Endpoints found backing off or behind an open
// breaker are added to blocked.
func (q *Queue) next(blocked map[string]bool, ignoreBackoff bool, res *PassResult) (Transaction, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()

	for i := range q.items {
		item := &q.items[i]
		if item.Status != StatusPending || blocked[item.Endpoint] {
			continue
		}

		if !ignoreBackoff && now.Before(item.NextAttemptAt) {
			blocked[item.Endpoint] = true
			res.Deferred++

			continue
		}

		if !q.breakers.Allow(item.Endpoint) {
			blocked[item.Endpoint] = true
			res.Skipped++

			slog.Debug("endpoint unavailable, deferring", "endpoint", item.Endpoint, "error", ErrEndpointUnavailable)

			continue
		}

		item.Status = StatusSyncing
		q.persistLocked()

		return item.Clone(), true
	}

	return Transaction{}, false
}

// settle applies fn to the entry with id and persists the queue.
func (q *Queue) settle(id string, fn func(*Transaction)) {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexLocked(id)
	if i < 0 {
		return
	}

	fn(&q.items[i])
	q.persistLocked()
}

// complete finishes the entry with id. Confirmed entries leave the queue;
// failed ones stay for inspection.
func (q *Queue) complete(id string, status Status, lastErr string) *Transaction {
	q.mu.Lock()

	i := q.indexLocked(id)
	if i < 0 {
		q.mu.Unlock()
		return nil
	}

	now := q.now()
	item := q.items[i].Clone()
	item.Status = status
	item.SettledAt = now
	item.NextAttemptAt = time.Time{}

	if lastErr != "" {
		item.LastError = lastErr
	}

	if status == StatusConfirmed {
		q.items = slices.Delete(q.items, i, i+1)
		q.lastSync = now
		q.online = true
	} else {
		q.items[i] = item
		q.online = true
	}

	q.persistLocked()
	q.mu.Unlock()

	q.publishStatus()

	return &item
}

func (q *Queue) indexLocked(id string) int {
	return slices.IndexFunc(q.items, func(t Transaction) bool { return t.ID == id })
}

func (q *Queue) cloneItemsLocked() []Transaction {
	out := make([]Transaction, len(q.items))
	for i := range q.items {
		out[i] = q.items[i].Clone()
	}

	return out
}

func (q *Queue) persistLocked() {
	err := q.journal.SavePending(context.Background(), q.cloneItemsLocked())
	if err != nil {
		slog.Warn("persist transaction queue", "error", err)

		if q.onPersistErr != nil {
			q.onPersistErr(err)
		}
	}
}

func (q *Queue) observe(endpoint string, outcome Outcome, took time.Duration) {
	if q.observer != nil {
		q.observer(endpoint, outcome, took)
	}
}

// OnSettled registers fn to be called, outside any queue lock, whenever a
// transaction is confirmed or permanently failed.
func (q *Queue) OnSettled(fn func(Transaction)) {
	q.hooksMu.Lock()
	defer q.hooksMu.Unlock()

	q.settled = append(q.settled, fn)
}

func (q *Queue) notifySettled(tx *Transaction) {
	if tx == nil {
		return
	}

	q.hooksMu.RLock()
	hooks := slices.Clone(q.settled)
	q.hooksMu.RUnlock()

	for _, fn := range hooks {
		fn(tx.Clone())
	}
}

// Len is the number of entries still awaiting delivery (pending or syncing).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0

	for _, item := range q.items {
		if item.Status != StatusFailed {
			n++
		}
	}

	return n
}

// Pending returns the entries awaiting delivery in queue order.
func (q *Queue) Pending() []Transaction {
	return q.filter(func(t Transaction) bool { return t.Status != StatusFailed })
}

// Failed returns the permanently failed entries in queue order.
func (q *Queue) Failed() []Transaction {
	return q.filter(func(t Transaction) bool { return t.Status == StatusFailed })
}

// Get returns the queued entry with id.
func (q *Queue) Get(id string) (Transaction, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexLocked(id)
	if i < 0 {
		return Transaction{}, false
	}

	return q.items[i].Clone(), true
}

func (q *Queue) filter(keep func(Transaction) bool) []Transaction {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []Transaction

	for _, item := range q.items {
		if keep(item) {
			out = append(out, item.Clone())
		}
	}

	return out
}

// RetryFailed puts failed entries back in line with a fresh attempt budget.
// With no ids every failed entry is retried. It returns how many were reset.
func (q *Queue) RetryFailed(ctx context.Context, ids ...string) (int, error) {
	return q.mutateFailed(ctx, ids, func(items []Transaction, i int) []Transaction {
		items[i].Status = StatusPending
		items[i].Attempts = 0
		items[i].NextAttemptAt = time.Time{}
		items[i].SettledAt = time.Time{}

		return items
	})
}

// ClearFailed drops failed entries after they have been exported or reviewed.
// With no ids every failed entry is dropped. It returns how many were removed.
func (q *Queue) ClearFailed(ctx context.Context, ids ...string) (int, error) {
	return q.mutateFailed(ctx, ids, func(items []Transaction, i int) []Transaction {
		return slices.Delete(items, i, i+1)
	})
}

func (q *Queue) mutateFailed(ctx context.Context, ids []string, apply func([]Transaction, int) []Transaction) (int, error) {
	q.mu.Lock()

	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	n := 0

	for i := len(q.items) - 1; i >= 0; i-- {
		item := q.items[i]
		if item.Status != StatusFailed || (len(ids) > 0 && !want[item.ID]) {
			continue
		}

		q.items = apply(q.items, i)
		n++
	}

	var err error
	if n > 0 {
		err = q.journal.SavePending(ctx, q.cloneItemsLocked())
	}
	q.mu.Unlock()

	if n > 0 {
		q.publishStatus()
	}

	if err != nil {
		return n, fmt.Errorf("persist failed entries: %w", err)
	}

	if n == 0 && len(ids) > 0 {
		return 0, fmt.Errorf("%w: %v", ErrNotFound, ids)
	}

	return n, nil
}

// ExportFailed writes the failed entries to w as an indented JSON array.
func (q *Queue) ExportFailed(w io.Writer) error {
	failed := q.Failed()
	if failed == nil {
		failed = []Transaction{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	err := enc.Encode(failed)
	if err != nil {
		return fmt.Errorf("export failed transactions: %w", err)
	}

	return nil
}
