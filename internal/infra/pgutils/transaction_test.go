package pgutils_test

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/fastprodman/coinsync/internal/infra/pgtestutil"
	"github.com/fastprodman/coinsync/internal/infra/pgutils"
)

func TestWithTx(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	insert := func(id string) pgutils.TxFunc {
		return func(tx *sql.Tx) error {
			_, err := tx.Exec(`INSERT INTO accounts (id) VALUES ($1)`, id)
			return err
		}
	}

	err := pgutils.WithTx(t.Context(), db, insert("committed"))
	if err != nil {
		t.Fatalf("commit path: %v", err)
	}

	boom := errors.New("boom")

	err = pgutils.WithTx(t.Context(), db, func(tx *sql.Tx) error {
		if err := insert("rolled-back")(tx); err != nil {
			return err
		}

		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want wrapped fn error, got %v", err)
	}

	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("panic was swallowed")
			}
		}()

		_ = pgutils.WithTx(t.Context(), db, func(tx *sql.Tx) error {
			_ = insert("panicked")(tx)
			panic("bad")
		})
	}()

	var n int

	err = db.QueryRow(`SELECT count(*) FROM accounts`).Scan(&n)
	if err != nil {
		t.Fatalf("count: %v", err)
	}

	if n != 1 {
		t.Fatalf("want only the committed account, found %d rows", n)
	}
}
