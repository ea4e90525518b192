package economy

import (
	"context"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/fastprodman/coinsync/internal/wallet"
)

// AddBooster activates b until b.ExpiresAt. Boosters are local state and are
// not delivered to the backend.
func (m *Manager) AddBooster(ctx context.Context, b wallet.Booster) error {
	err := m.guard(ctx)
	if err != nil {
		return err
	}

	switch {
	case b.Type == "":
		return fmt.Errorf("%w: type is required", ErrInvalidBooster)
	case !b.Stat.Valid():
		return fmt.Errorf("%w: unknown stat %q", ErrInvalidBooster, b.Stat)
	case !b.Multiplier.IsPositive():
		return fmt.Errorf("%w: multiplier must be positive", ErrInvalidBooster)
	case !b.Active(m.now()):
		return fmt.Errorf("%w: already expired", ErrInvalidBooster)
	}

	m.mu.Lock()
	m.purgeExpiredLocked()
	m.boosters = append(m.boosters, b)
	m.saveLocked(ctx)

	m.events.post(Event{Kind: EventBoosters, Balance: m.balance, Boosters: slices.Clone(m.boosters), At: m.now()})
	m.mu.Unlock()

	m.events.drain(ctx)

	return nil
}

// ActiveBoosters returns the unexpired boosters, persisting the removal of
// any that expired since the last read.
func (m *Manager) ActiveBoosters(ctx context.Context) []wallet.Booster {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.purgeExpiredLocked() && m.ready.Load() {
		m.saveLocked(ctx)
	}

	return slices.Clone(m.boosters)
}

// Multiplier is the product of the active boosters that apply to stat, or 1.
func (m *Manager) Multiplier(stat wallet.Stat) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	mult := decimal.NewFromInt(1)

	for _, b := range m.boosters {
		if b.Active(now) && b.Applies(stat) {
			mult = mult.Mul(b.Multiplier)
		}
	}

	return mult
}

// ApplyMultiplier scales amount by Multiplier(stat), rounding down.
func (m *Manager) ApplyMultiplier(amount int64, stat wallet.Stat) int64 {
	return decimal.NewFromInt(amount).Mul(m.Multiplier(stat)).Floor().IntPart()
}

// purgeExpiredLocked drops expired boosters and reports whether any were.
func (m *Manager) purgeExpiredLocked() bool {
	now := m.now()
	n := len(m.boosters)

	m.boosters = slices.DeleteFunc(m.boosters, func(b wallet.Booster) bool { return !b.Active(now) })

	return len(m.boosters) != n
}
