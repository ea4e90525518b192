package ledger

import (
	"errors"
	"time"
)

var ErrInvalidRequest = errors.New("invalid request")

// Transaction is a balance mutation submitted by a client. ID is the client's
// idempotency key.
type Transaction struct {
	ID        string
	AccountID string
	Type      string
	Amount    int64
	Reason    string
	Metadata  map[string]any
	CreatedAt time.Time
}

// ItemChange is an inventory delta submitted by a client.
type ItemChange struct {
	ID        string
	AccountID string
	ItemID    string
	Category  string
	Delta     int64
	CreatedAt time.Time
}

// Result is the outcome of an accepted mutation. Duplicate is set when the id
// had already been applied and nothing changed.
type Result struct {
	Balance   int64
	Quantity  int64
	Duplicate bool
}
