// Package ledger is the authoritative account ledger clients deliver their
// queued mutations to.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fastprodman/coinsync/internal/infra/pgutils"
	"github.com/fastprodman/coinsync/internal/repos/accounts"
	pgaccounts "github.com/fastprodman/coinsync/internal/repos/accounts/postgres"
	"github.com/fastprodman/coinsync/internal/repos/inventory"
	pginventory "github.com/fastprodman/coinsync/internal/repos/inventory/postgres"
	"github.com/fastprodman/coinsync/internal/repos/transactions"
	pgtransactions "github.com/fastprodman/coinsync/internal/repos/transactions/postgres"
	"github.com/fastprodman/coinsync/internal/syncqueue"
)

type Service struct {
	db        *sql.DB
	accounts  accounts.Accounts
	txns      transactions.Transactions
	inventory inventory.Inventory
	now       func() time.Time
}

func New(db *sql.DB) *Service {
	return &Service{
		db:        db,
		accounts:  pgaccounts.New(db),
		txns:      pgtransactions.New(db),
		inventory: pginventory.New(db),
		now:       time.Now,
	}
}

// ApplyTransaction runs the full flow in a single DB transaction:
//
// 1) Create the account on first contact.
// 2) Lock the account row (FOR UPDATE).
// 3) Answer an already applied id as a duplicate.
// 4) Apply the signed amount and record it.
func (s *Service) ApplyTransaction(ctx context.Context, t Transaction) (Result, error) {
	typ := syncqueue.Type(t.Type)

	err := validateTransaction(t, typ)
	if err != nil {
		return Result{}, err
	}

	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}

	var res Result

	err = pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		err := s.accounts.Ensure(tx, t.AccountID)
		if err != nil {
			return fmt.Errorf("ensure account: %w", err)
		}

		before, err := s.accounts.LockAndGetBalance(tx, t.AccountID)
		if err != nil {
			return fmt.Errorf("lock and get balance: %w", err)
		}

		dup, err := s.txns.Exists(tx, t.ID)
		if err != nil {
			return fmt.Errorf("check duplicate: %w", err)
		}

		if dup {
			res = Result{Balance: before, Duplicate: true}
			return nil
		}

		var after int64

		if typ.Sign() > 0 {
			after, err = s.accounts.IncreaseBalance(tx, t.AccountID, t.Amount)
		} else {
			if before < t.Amount {
				return fmt.Errorf("pre-check decrease: %w", accounts.ErrInsufficientFunds)
			}

			after, err = s.accounts.DecreaseBalance(tx, t.AccountID, t.Amount)
		}

		if err != nil {
			return fmt.Errorf("apply amount: %w", err)
		}

		err = s.txns.Insert(tx, transactions.Record{
			ID:            t.ID,
			AccountID:     t.AccountID,
			Type:          t.Type,
			Amount:        t.Amount,
			Reason:        t.Reason,
			Metadata:      t.Metadata,
			BalanceBefore: before,
			BalanceAfter:  after,
			CreatedAt:     t.CreatedAt,
		})
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}

		res = Result{Balance: after}

		return nil
	})
	if err != nil {
		// The same id raced in under another account.
		if errors.Is(err, transactions.ErrDuplicateTransaction) {
			return Result{Duplicate: true}, nil
		}

		return Result{}, fmt.Errorf("apply transaction: %w", err)
	}

	return res, nil
}

// ApplyItemChange applies an inventory delta with the same idempotency rules
// as ApplyTransaction.
func (s *Service) ApplyItemChange(ctx context.Context, c ItemChange) (Result, error) {
	err := validateItemChange(c)
	if err != nil {
		return Result{}, err
	}

	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}

	var res Result

	err = pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		err := s.accounts.Ensure(tx, c.AccountID)
		if err != nil {
			return fmt.Errorf("ensure account: %w", err)
		}

		// Serializes inventory changes per account the same way balance
		// changes are.
		bal, err := s.accounts.LockAndGetBalance(tx, c.AccountID)
		if err != nil {
			return fmt.Errorf("lock account: %w", err)
		}

		dup, err := s.inventory.EventExists(tx, c.ID)
		if err != nil {
			return fmt.Errorf("check duplicate: %w", err)
		}

		if dup {
			res = Result{Balance: bal, Duplicate: true}
			return nil
		}

		qty, err := s.inventory.Adjust(tx, c.AccountID, c.ItemID, c.Category, c.Delta)
		if err != nil {
			return fmt.Errorf("adjust item: %w", err)
		}

		err = s.inventory.InsertEvent(tx, inventory.Event{
			ID:        c.ID,
			AccountID: c.AccountID,
			ItemID:    c.ItemID,
			Category:  c.Category,
			Delta:     c.Delta,
			CreatedAt: c.CreatedAt,
		})
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}

		res = Result{Balance: bal, Quantity: qty}

		return nil
	})
	if err != nil {
		if errors.Is(err, inventory.ErrDuplicateEvent) {
			return Result{Duplicate: true}, nil
		}

		return Result{}, fmt.Errorf("apply item change: %w", err)
	}

	return res, nil
}

// GetBalance returns the account's balance. Accounts the ledger has never
// seen have a zero balance.
func (s *Service) GetBalance(ctx context.Context, accountID string) (int64, error) {
	bal, err := s.accounts.GetBalance(ctx, accountID)
	if err != nil {
		if errors.Is(err, accounts.ErrAccountNotFound) {
			return 0, nil
		}

		return 0, fmt.Errorf("get balance: %w", err)
	}

	return bal, nil
}

func (s *Service) Inventory(ctx context.Context, accountID string) ([]inventory.Item, error) {
	items, err := s.inventory.List(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("get inventory: %w", err)
	}

	return items, nil
}

func (s *Service) History(ctx context.Context, accountID string, limit int) ([]transactions.Record, error) {
	recs, err := s.txns.ListByAccount(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}

	return recs, nil
}

func validateTransaction(t Transaction, typ syncqueue.Type) error {
	switch {
	case strings.TrimSpace(t.ID) == "":
		return fmt.Errorf("%w: transactionId required", ErrInvalidRequest)
	case strings.TrimSpace(t.AccountID) == "":
		return fmt.Errorf("%w: account id required", ErrInvalidRequest)
	case !typ.Valid() || typ == syncqueue.TypeInventory:
		return fmt.Errorf("%w: invalid type %q", ErrInvalidRequest, t.Type)
	case t.Amount <= 0:
		return fmt.Errorf("%w: amount must be > 0", ErrInvalidRequest)
	}

	return nil
}

func validateItemChange(c ItemChange) error {
	switch {
	case strings.TrimSpace(c.ID) == "":
		return fmt.Errorf("%w: transactionId required", ErrInvalidRequest)
	case strings.TrimSpace(c.AccountID) == "":
		return fmt.Errorf("%w: account id required", ErrInvalidRequest)
	case c.ItemID == "" || c.Category == "":
		return fmt.Errorf("%w: itemId and category required", ErrInvalidRequest)
	case c.Delta == 0:
		return fmt.Errorf("%w: delta must not be zero", ErrInvalidRequest)
	}

	return nil
}
