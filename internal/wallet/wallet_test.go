package wallet

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBooster_ActiveAndApplies(t *testing.T) {
	t.Parallel()

	exp := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	b := Booster{Type: "weekend", Multiplier: decimal.RequireFromString("1.5"), Stat: StatCoins, ExpiresAt: exp}

	assert.True(t, b.Active(exp.Add(-time.Second)))
	assert.True(t, b.Active(exp), "expires only once now is past expiresAt")
	assert.False(t, b.Active(exp.Add(time.Nanosecond)))

	assert.True(t, b.Applies(StatCoins))
	assert.False(t, b.Applies(StatXP))
	assert.True(t, Booster{Stat: StatBoth}.Applies(StatXP))
}

func TestBooster_MultiplierKeepsPrecisionInJSON(t *testing.T) {
	t.Parallel()

	b := Booster{Type: "x", Multiplier: decimal.RequireFromString("1.25"), Stat: StatBoth}

	data, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"multiplier":"1.25"`)

	var back Booster
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.Multiplier.Equal(b.Multiplier))
}
