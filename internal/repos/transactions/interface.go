package transactions

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var ErrDuplicateTransaction = errors.New("duplicate transaction")
var ErrTransactionNotFound = errors.New("transaction not found")

// Record is one applied balance mutation.
type Record struct {
	ID            string
	AccountID     string
	Type          string
	Amount        int64
	Reason        string
	Metadata      map[string]any
	BalanceBefore int64
	BalanceAfter  int64
	CreatedAt     time.Time
	RecordedAt    time.Time
}

type Transactions interface {
	// Exists reports whether id was already recorded, for any account.
	Exists(tx *sql.Tx, id string) (bool, error)
	Insert(tx *sql.Tx, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	ListByAccount(ctx context.Context, accountID string, limit int) ([]Record, error)
}
