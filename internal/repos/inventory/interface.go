package inventory

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var ErrInsufficientQuantity = errors.New("insufficient quantity")
var ErrDuplicateEvent = errors.New("duplicate inventory event")

type Item struct {
	ItemID   string
	Category string
	Quantity int64
}

// Event is one applied inventory change.
type Event struct {
	ID        string
	AccountID string
	ItemID    string
	Category  string
	Delta     int64
	CreatedAt time.Time
}

type Inventory interface {
	EventExists(tx *sql.Tx, id string) (bool, error)
	InsertEvent(tx *sql.Tx, ev Event) error
	// Adjust applies delta to the slot and returns the new quantity. Slots
	// that reach zero are removed.
	Adjust(tx *sql.Tx, accountID, itemID, category string, delta int64) (int64, error)
	List(ctx context.Context, accountID string) ([]Item, error)
}
