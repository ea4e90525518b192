package filetier

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastprodman/coinsync/internal/storage"
	"github.com/fastprodman/coinsync/internal/storage/storagetest"
)

func TestFileTier(t *testing.T) {
	t.Parallel()

	storagetest.Run(t, func(t *testing.T, now func() time.Time) storage.Tier {
		tier, err := Open(filepath.Join(t.TempDir(), "session.json"), WithClock(now))
		require.NoError(t, err)

		return tier
	})
}

func TestFileTier_ReloadKeepsTimestamps(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "session.json")
	at := time.UnixMilli(1_700_000_123_000)

	tier, err := Open(path, WithClock(func() time.Time { return at }))
	require.NoError(t, err)
	require.NoError(t, tier.Put(t.Context(), storage.IntEntry(storage.KeyBackupBalance, 700)))

	reloaded, err := Open(path)
	require.NoError(t, err)

	rec, err := reloaded.Get(t.Context(), storage.KeyBackupBalance)
	require.NoError(t, err)
	assert.Equal(t, []byte("700"), rec.Value)
	assert.True(t, rec.UpdatedAt.Equal(at))
}

func TestFileTier_CorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := Open(path)
	require.Error(t, err)
}
