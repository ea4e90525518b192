package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastprodman/coinsync/internal/storage"
	"github.com/fastprodman/coinsync/internal/storage/storagetest"
)

func TestSQLiteTier(t *testing.T) {
	t.Parallel()

	storagetest.Run(t, func(t *testing.T, now func() time.Time) storage.Tier {
		tier, err := Open(t.Context(), filepath.Join(t.TempDir(), "ledger.db"), WithClock(now))
		require.NoError(t, err)
		t.Cleanup(func() { _ = tier.Close() })

		return tier
	})
}

func TestSQLiteTier_SurvivesReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ledger.db")

	tier, err := Open(t.Context(), path)
	require.NoError(t, err)
	require.NoError(t, tier.Put(t.Context(), storage.IntEntry(storage.KeyBalance, 1100)))
	require.NoError(t, tier.Close())

	reopened, err := Open(t.Context(), path)
	require.NoError(t, err)
	defer reopened.Close()

	n, ok, err := storage.GetInt(t.Context(), reopened, storage.KeyBalance)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1100), n)
}
