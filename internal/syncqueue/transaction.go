package syncqueue

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// Type is the kind of ledger mutation a Transaction carries.
type Type string

const (
	TypeCredit   Type = "credit"
	TypeDebit    Type = "debit"
	TypeBet      Type = "bet"
	TypeWin      Type = "win"
	TypeLoss     Type = "loss"
	TypePurchase Type = "purchase"
	TypeReward   Type = "reward"
	// TypeInventory carries an item delta and no coin amount.
	TypeInventory Type = "inventory"
)

// Sign returns +1 for types that add coins, -1 for types that remove them and
// 0 for inventory changes.
func (t Type) Sign() int64 {
	switch t {
	case TypeCredit, TypeWin, TypeReward:
		return 1
	case TypeDebit, TypeBet, TypeLoss, TypePurchase:
		return -1
	default:
		return 0
	}
}

func (t Type) Valid() bool {
	switch t {
	case TypeCredit, TypeDebit, TypeBet, TypeWin, TypeLoss, TypePurchase, TypeReward, TypeInventory:
		return true
	default:
		return false
	}
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusSyncing   Status = "syncing"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Logical backend routes. Each has its own breaker.
const (
	EndpointLedger    = "ledger"
	EndpointInventory = "inventory"
)

// ItemDelta is the inventory change of a TypeInventory transaction.
type ItemDelta struct {
	ItemID   string `json:"itemId"`
	Category string `json:"category"`
	Delta    int64  `json:"delta"`
}

type Transaction struct {
	ID            string         `json:"id"`
	Type          Type           `json:"type"`
	Amount        int64          `json:"amount"`
	Reason        string         `json:"reason"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Item          *ItemDelta     `json:"item,omitempty"`
	Endpoint      string         `json:"endpoint"`
	BalanceBefore int64          `json:"balanceBefore"`
	BalanceAfter  int64          `json:"balanceAfter"`
	CreatedAt     time.Time      `json:"createdAt"`
	Attempts      int            `json:"attempts"`
	Status        Status         `json:"status"`
	LastError     string         `json:"lastError,omitempty"`
	NextAttemptAt time.Time      `json:"nextAttemptAt,omitzero"`
	SettledAt     time.Time      `json:"settledAt,omitzero"`
}

// NewID returns a time-ordered idempotency key.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Clone returns a copy that shares no mutable state with tx.
func (tx Transaction) Clone() Transaction {
	if tx.Metadata != nil {
		tx.Metadata = maps.Clone(tx.Metadata)
	}

	if tx.Item != nil {
		item := *tx.Item
		tx.Item = &item
	}

	return tx
}

// Delta is the signed balance change of tx.
func (tx Transaction) Delta() int64 {
	return tx.Type.Sign() * tx.Amount
}
