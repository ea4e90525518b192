// Package wallet holds the economy value types shared by the state manager,
// the reconciliation layer and the wire clients.
package wallet

import (
	"time"

	"github.com/shopspring/decimal"
)

// InventoryItem is unique per (ItemID, Category).
type InventoryItem struct {
	ItemID   string         `json:"itemId"`
	Category string         `json:"category"`
	Quantity int64          `json:"quantity"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Key identifies an item slot.
func (i InventoryItem) Key() ItemKey {
	return ItemKey{ItemID: i.ItemID, Category: i.Category}
}

type ItemKey struct {
	ItemID   string
	Category string
}

// Stat is what a booster multiplies.
type Stat string

const (
	StatCoins Stat = "coins"
	StatXP    Stat = "xp"
	StatBoth  Stat = "both"
)

func (s Stat) Valid() bool {
	return s == StatCoins || s == StatXP || s == StatBoth
}

// Booster is a time-limited multiplier.
type Booster struct {
	Type       string          `json:"type"`
	Multiplier decimal.Decimal `json:"multiplier"`
	Stat       Stat            `json:"stat"`
	ExpiresAt  time.Time       `json:"expiresAt"`
}

// Active reports whether b still applies at now.
func (b Booster) Active(now time.Time) bool {
	return !now.After(b.ExpiresAt)
}

// Applies reports whether b multiplies stat.
func (b Booster) Applies(stat Stat) bool {
	return b.Stat == StatBoth || b.Stat == stat
}
