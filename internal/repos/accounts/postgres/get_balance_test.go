package accounts

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/fastprodman/coinsync/internal/infra/pgtestutil"
	"github.com/fastprodman/coinsync/internal/repos/accounts"
)

func seedAccount(t *testing.T, db *sql.DB, id string, balance int64) {
	t.Helper()

	_, err := db.Exec(`
		INSERT INTO accounts (id, balance) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET balance = EXCLUDED.balance
	`, id, balance)
	if err != nil {
		t.Fatalf("seed account %q: %v", id, err)
	}
}

func TestAccounts_GetBalance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		seed        func(t *testing.T, db *sql.DB)
		accountID   string
		wantBalance int64
		wantErr     error
	}{
		{
			name:        "existing_account",
			seed:        func(t *testing.T, db *sql.DB) { seedAccount(t, db, "player-1", 1000) },
			accountID:   "player-1",
			wantBalance: 1000,
		},
		{
			name:      "missing_account",
			accountID: "nobody",
			wantErr:   accounts.ErrAccountNotFound,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			db, cleanup := pgtestutil.NewTestDB(t)
			defer cleanup()

			if tt.seed != nil {
				tt.seed(t, db)
			}

			got, err := New(db).GetBalance(t.Context(), tt.accountID)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("want %v, got %v (balance=%d)", tt.wantErr, err, got)
				}

				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if got != tt.wantBalance {
				t.Fatalf("balance: want %d, got %d", tt.wantBalance, got)
			}
		})
	}
}

func TestAccounts_EnsureIsIdempotent(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	seedAccount(t, db, "player-2", 40)

	repo := New(db)

	for _, id := range []string{"player-2", "player-3", "player-3"} {
		tx, err := db.BeginTx(t.Context(), nil)
		if err != nil {
			t.Fatalf("begin tx: %v", err)
		}

		err = repo.Ensure(tx, id)
		if err != nil {
			_ = tx.Rollback()
			t.Fatalf("ensure %q: %v", id, err)
		}

		err = tx.Commit()
		if err != nil {
			t.Fatalf("commit: %v", err)
		}
	}

	got, err := repo.GetBalance(t.Context(), "player-2")
	if err != nil || got != 40 {
		t.Fatalf("existing account touched: balance=%d err=%v", got, err)
	}

	got, err = repo.GetBalance(t.Context(), "player-3")
	if err != nil || got != 0 {
		t.Fatalf("new account: balance=%d err=%v", got, err)
	}
}
