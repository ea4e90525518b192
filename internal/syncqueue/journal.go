package syncqueue

import (
	"context"
	"fmt"

	"github.com/fastprodman/coinsync/internal/storage"
)

// Journal persists the queue contents.
type Journal interface {
	LoadPending(ctx context.Context) ([]Transaction, error)
	// SavePending stores pending together with extra in one atomic write.
	SavePending(ctx context.Context, pending []Transaction, extra ...storage.Entry) error
}

var _ Journal = (*StoreJournal)(nil)

// StoreJournal keeps the queue under storage.KeyPending of a tier.
type StoreJournal struct {
	tier storage.Tier
}

func NewStoreJournal(tier storage.Tier) *StoreJournal {
	return &StoreJournal{tier: tier}
}

func (j *StoreJournal) LoadPending(ctx context.Context) ([]Transaction, error) {
	var pending []Transaction

	_, err := storage.GetJSON(ctx, j.tier, storage.KeyPending, &pending)
	if err != nil {
		return nil, fmt.Errorf("load pending: %w", err)
	}

	return pending, nil
}

func (j *StoreJournal) SavePending(ctx context.Context, pending []Transaction, extra ...storage.Entry) error {
	if pending == nil {
		pending = []Transaction{}
	}

	entry, err := storage.JSONEntry(storage.KeyPending, pending)
	if err != nil {
		return err
	}

	err = j.tier.Put(ctx, append([]storage.Entry{entry}, extra...)...)
	if err != nil {
		return fmt.Errorf("save pending: %w", err)
	}

	return nil
}
