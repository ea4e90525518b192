// Package storage defines the key-value tiers the ledger persists into.
//
// A Store pairs a durable tier, which survives restarts, with a session tier
// that only has to outlive a reload and is used as a recovery backup.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("key not found")
	ErrClosed   = errors.New("tier closed")
	// ErrCorrupt wraps values that exist but cannot be decoded.
	ErrCorrupt  = errors.New("corrupt value")
)

// Record is a stored value together with the time it was last written.
type Record struct {
	Value     []byte
	UpdatedAt time.Time
}

// Entry is one key/value pair of a write batch.
type Entry struct {
	Key   string
	Value []byte
}

// Tier is a single persistence tier.
type Tier interface {
	// Get returns ErrNotFound when key has never been written or was deleted.
	Get(ctx context.Context, key string) (Record, error)
	// Put writes all entries atomically: either every entry is stored or none is.
	Put(ctx context.Context, entries ...Entry) error
	Delete(ctx context.Context, keys ...string) error
	// Keys lists stored keys starting with prefix, in lexical order.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// Store groups the two tiers used by the ledger.
type Store struct {
	Durable Tier
	Session Tier
}

// Close closes both tiers and joins their errors.
func (s Store) Close() error {
	var errs []error

	if s.Durable != nil {
		err := s.Durable.Close()
		if err != nil {
			errs = append(errs, err)
		}
	}

	if s.Session != nil {
		err := s.Session.Close()
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
