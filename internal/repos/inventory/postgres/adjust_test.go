package inventory

import (
	"errors"
	"testing"
	"time"

	"github.com/fastprodman/coinsync/internal/infra/pgtestutil"
	"github.com/fastprodman/coinsync/internal/repos/inventory"
)

func TestInventory_AdjustAndList(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	_, err := db.Exec(`INSERT INTO accounts (id) VALUES ('p1')`)
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}

	repo := New(db)

	steps := []struct {
		itemID   string
		category string
		delta    int64
		wantQty  int64
		wantErr  error
	}{
		{itemID: "sword", category: "weapon", delta: 2, wantQty: 2},
		{itemID: "sword", category: "weapon", delta: 3, wantQty: 5},
		{itemID: "potion", category: "consumable", delta: 1, wantQty: 1},
		{itemID: "sword", category: "weapon", delta: -6, wantErr: inventory.ErrInsufficientQuantity},
		{itemID: "sword", category: "weapon", delta: -4, wantQty: 1},
		{itemID: "potion", category: "consumable", delta: -1, wantQty: 0},
		{itemID: "shield", category: "armor", delta: -1, wantErr: inventory.ErrInsufficientQuantity},
	}

	for i, st := range steps {
		tx, err := db.BeginTx(t.Context(), nil)
		if err != nil {
			t.Fatalf("step %d: begin tx: %v", i, err)
		}

		qty, err := repo.Adjust(tx, "p1", st.itemID, st.category, st.delta)

		if st.wantErr != nil {
			_ = tx.Rollback()

			if !errors.Is(err, st.wantErr) {
				t.Fatalf("step %d: want %v, got %v", i, st.wantErr, err)
			}

			continue
		}

		if err != nil {
			_ = tx.Rollback()
			t.Fatalf("step %d: adjust: %v", i, err)
		}

		err = tx.Commit()
		if err != nil {
			t.Fatalf("step %d: commit: %v", i, err)
		}

		if qty != st.wantQty {
			t.Fatalf("step %d: quantity want %d, got %d", i, st.wantQty, qty)
		}
	}

	items, err := repo.List(t.Context(), "p1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if len(items) != 1 || items[0] != (inventory.Item{ItemID: "sword", Category: "weapon", Quantity: 1}) {
		t.Fatalf("unexpected inventory: %+v", items)
	}
}

func TestInventory_InsertEventDuplicate(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	_, err := db.Exec(`INSERT INTO accounts (id) VALUES ('p1')`)
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}

	repo := New(db)
	ev := inventory.Event{
		ID: "ev-1", AccountID: "p1", ItemID: "gem", Category: "currency",
		Delta: 1, CreatedAt: time.Now().UTC(),
	}

	for i, want := range []error{nil, inventory.ErrDuplicateEvent} {
		tx, err := db.BeginTx(t.Context(), nil)
		if err != nil {
			t.Fatalf("begin tx: %v", err)
		}

		err = repo.InsertEvent(tx, ev)
		if !errors.Is(err, want) {
			_ = tx.Rollback()
			t.Fatalf("insert %d: want %v, got %v", i, want, err)
		}

		if err != nil {
			_ = tx.Rollback()
			continue
		}

		exists, err := repo.EventExists(tx, ev.ID)
		if err != nil || !exists {
			_ = tx.Rollback()
			t.Fatalf("event exists: %v %v", exists, err)
		}

		err = tx.Commit()
		if err != nil {
			t.Fatalf("commit: %v", err)
		}
	}
}
