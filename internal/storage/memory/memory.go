// Package memory implements an in-process storage tier.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fastprodman/coinsync/internal/storage"
)

var _ storage.Tier = (*Tier)(nil)

type Tier struct {
	mu       sync.RWMutex
	data     map[string]storage.Record
	now      func() time.Time
	writeErr error
	closed   bool
}

type Option func(*Tier)

func WithClock(now func() time.Time) Option {
	return func(t *Tier) { t.now = now }
}

func New(opts ...Option) *Tier {
	t := &Tier{data: make(map[string]storage.Record), now: time.Now}
	for _, opt := range opts {
		opt(t)
	}

	return t
}

// FailWrites makes every subsequent Put and Delete return err until it is
// called again with nil.
func (t *Tier) FailWrites(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.writeErr = err
}

func (t *Tier) Get(_ context.Context, key string) (storage.Record, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return storage.Record{}, storage.ErrClosed
	}

	rec, ok := t.data[key]
	if !ok {
		return storage.Record{}, storage.ErrNotFound
	}

	rec.Value = append([]byte(nil), rec.Value...)

	return rec, nil
}

func (t *Tier) Put(_ context.Context, entries ...storage.Entry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return storage.ErrClosed
	}

	if t.writeErr != nil {
		return t.writeErr
	}

	ts := t.now()
	for _, e := range entries {
		t.data[e.Key] = storage.Record{Value: append([]byte(nil), e.Value...), UpdatedAt: ts}
	}

	return nil
}

func (t *Tier) Delete(_ context.Context, keys ...string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return storage.ErrClosed
	}

	if t.writeErr != nil {
		return t.writeErr
	}

	for _, k := range keys {
		delete(t.data, k)
	}

	return nil
}

func (t *Tier) Keys(_ context.Context, prefix string) ([]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return nil, storage.ErrClosed
	}

	var keys []string

	for k := range t.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}

	sort.Strings(keys)

	return keys, nil
}

func (t *Tier) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true

	return nil
}
