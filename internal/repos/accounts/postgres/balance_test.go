package accounts

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fastprodman/coinsync/internal/infra/pgtestutil"
	"github.com/fastprodman/coinsync/internal/repos/accounts"
)

func TestAccounts_ChangeBalance(t *testing.T) {
	t.Parallel()

	type op func(r *accountsRepo, tx *sql.Tx) (int64, error)

	credit := func(n int64) op {
		return func(r *accountsRepo, tx *sql.Tx) (int64, error) { return r.IncreaseBalance(tx, "acc", n) }
	}
	debit := func(n int64) op {
		return func(r *accountsRepo, tx *sql.Tx) (int64, error) { return r.DecreaseBalance(tx, "acc", n) }
	}

	tests := []struct {
		name        string
		seed        int64
		op          op
		wantAfter   int64
		wantErr     error
		wantBalance int64
	}{
		{name: "credit_from_zero", seed: 0, op: credit(250), wantAfter: 250, wantBalance: 250},
		{name: "credit_large", seed: 900_000_000_000_000, op: credit(123), wantAfter: 900_000_000_000_123, wantBalance: 900_000_000_000_123},
		{name: "debit_partial", seed: 1000, op: debit(250), wantAfter: 750, wantBalance: 750},
		{name: "debit_to_zero", seed: 300, op: debit(300), wantAfter: 0, wantBalance: 0},
		{name: "debit_insufficient_unchanged", seed: 200, op: debit(300), wantErr: accounts.ErrInsufficientFunds, wantBalance: 200},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			db, cleanup := pgtestutil.NewTestDB(t)
			defer cleanup()

			seedAccount(t, db, "acc", tt.seed)

			repo := New(db)

			ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
			defer cancel()

			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				t.Fatalf("begin tx: %v", err)
			}
			defer func() { _ = tx.Rollback() }()

			after, err := tt.op(repo, tx)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("want %v, got %v", tt.wantErr, err)
				}
			} else {
				if err != nil {
					t.Fatalf("change balance: %v", err)
				}

				if after != tt.wantAfter {
					t.Fatalf("returned balance: want %d, got %d", tt.wantAfter, after)
				}

				err = tx.Commit()
				if err != nil {
					t.Fatalf("commit: %v", err)
				}
			}

			got, err := repo.GetBalance(ctx, "acc")
			if err != nil {
				t.Fatalf("get balance: %v", err)
			}

			if got != tt.wantBalance {
				t.Fatalf("stored balance: want %d, got %d", tt.wantBalance, got)
			}
		})
	}
}

func TestAccounts_IncreaseBalance_MissingAccount(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	tx, err := db.BeginTx(t.Context(), nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = New(db).IncreaseBalance(tx, "ghost", 100)
	if !errors.Is(err, accounts.ErrAccountNotFound) {
		t.Fatalf("want ErrAccountNotFound, got %v", err)
	}
}

func TestAccounts_LockSerializesDebits(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	seedAccount(t, db, "shared", 500)

	repo := New(db)

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()

	// Four debits of 200 against 500: exactly two fit.
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		applied  int
		rejected int
	)

	for range 4 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				t.Errorf("begin tx: %v", err)
				return
			}
			defer func() { _ = tx.Rollback() }()

			bal, err := repo.LockAndGetBalance(tx, "shared")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}

			mu.Lock()
			defer mu.Unlock()

			if bal < 200 {
				rejected++
				return
			}

			_, err = repo.DecreaseBalance(tx, "shared", 200)
			if err != nil {
				t.Errorf("decrease: %v", err)
				return
			}

			err = tx.Commit()
			if err != nil {
				t.Errorf("commit: %v", err)
				return
			}

			applied++
		}()
	}

	wg.Wait()

	if applied != 2 || rejected != 2 {
		t.Fatalf("applied=%d rejected=%d, want 2/2", applied, rejected)
	}

	got, err := repo.GetBalance(ctx, "shared")
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}

	if got != 100 {
		t.Fatalf("final balance: want 100, got %d", got)
	}
}
