package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastprodman/coinsync/internal/storage"
	"github.com/fastprodman/coinsync/internal/storage/memory"
)

func TestRecoverBalance(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		durable      *int64
		durableAt    time.Time
		backup       *int64
		backupAt     time.Time
		wantBalance  int64
		wantRestored bool
	}{
		{
			name:         "newer_backup_wins",
			durable:      ptr(500),
			durableAt:    base,
			backup:       ptr(700),
			backupAt:     base.Add(time.Minute),
			wantBalance:  700,
			wantRestored: true,
		},
		{
			name:        "newer_durable_wins",
			durable:     ptr(500),
			durableAt:   base.Add(time.Minute),
			backup:      ptr(700),
			backupAt:    base,
			wantBalance: 500,
		},
		{
			name:        "agreeing_values",
			durable:     ptr(500),
			durableAt:   base,
			backup:      ptr(500),
			backupAt:    base.Add(time.Hour),
			wantBalance: 500,
		},
		{
			name:        "no_backup",
			durable:     ptr(42),
			durableAt:   base,
			wantBalance: 42,
		},
		{
			name:         "durable_lost",
			backup:       ptr(300),
			backupAt:     base,
			wantBalance:  300,
			wantRestored: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := t.Context()
			store := storage.Store{Durable: memory.New(), Session: memory.New()}

			if tt.durable != nil {
				require.NoError(t, store.Durable.Put(ctx,
					storage.IntEntry(storage.KeyBalance, *tt.durable),
					storage.IntEntry(storage.KeyLastSave, tt.durableAt.UnixMilli()),
				))
			}

			if tt.backup != nil {
				require.NoError(t, store.Session.Put(ctx, BackupEntries(*tt.backup, tt.backupAt)...))
			}

			rec, err := RecoverBalance(ctx, store)
			require.NoError(t, err)
			assert.Equal(t, tt.wantRestored, rec.Restored)

			got, ok, err := storage.GetInt(ctx, store.Durable, storage.KeyBalance)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tt.wantBalance, got)
		})
	}
}

func TestRecoverBalance_CorruptDurableValues(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		entries []storage.Entry
	}{
		{
			name: "garbled_balance",
			entries: []storage.Entry{
				{Key: storage.KeyBalance, Value: []byte("5\x00\x00")},
				storage.IntEntry(storage.KeyLastSave, base.UnixMilli()),
			},
		},
		{
			name: "garbled_last_save",
			entries: []storage.Entry{
				storage.IntEntry(storage.KeyBalance, 500),
				{Key: storage.KeyLastSave, Value: []byte("not-a-time")},
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := t.Context()
			store := storage.Store{Durable: memory.New(), Session: memory.New()}

			require.NoError(t, store.Durable.Put(ctx, tt.entries...))
			require.NoError(t, store.Session.Put(ctx, BackupEntries(700, base.Add(time.Minute))...))

			rec, err := RecoverBalance(ctx, store)
			require.NoError(t, err)
			assert.True(t, rec.Restored)

			got, ok, err := storage.GetInt(ctx, store.Durable, storage.KeyBalance)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, int64(700), got)
		})
	}
}

func TestRecoverBalance_CorruptDurableWithoutBackupIsLeftAlone(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	store := storage.Store{Durable: memory.New(), Session: memory.New()}
	require.NoError(t, store.Durable.Put(ctx, storage.Entry{Key: storage.KeyBalance, Value: []byte("??")}))

	rec, err := RecoverBalance(ctx, store)
	require.NoError(t, err)
	assert.False(t, rec.Restored)

	_, _, err = storage.GetInt(ctx, store.Durable, storage.KeyBalance)
	require.ErrorIs(t, err, storage.ErrCorrupt)
}

func ptr(n int64) *int64 { return &n }
