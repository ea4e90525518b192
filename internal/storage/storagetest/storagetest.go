// Package storagetest holds the behaviour every storage.Tier must share.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastprodman/coinsync/internal/storage"
)

// Factory returns a fresh, empty tier whose clock reads now().
type Factory func(t *testing.T, now func() time.Time) storage.Tier

// Run exercises a tier implementation.
func Run(t *testing.T, newTier Factory) {
	t.Helper()

	t.Run("get_missing", func(t *testing.T) {
		tier := newTier(t, time.Now)

		_, err := tier.Get(t.Context(), "nope")
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("put_then_get_records_write_time", func(t *testing.T) {
		at := time.UnixMilli(1_700_000_000_000)
		tier := newTier(t, func() time.Time { return at })

		require.NoError(t, tier.Put(t.Context(), storage.Entry{Key: "a", Value: []byte("1")}))

		rec, err := tier.Get(t.Context(), "a")
		require.NoError(t, err)
		assert.Equal(t, []byte("1"), rec.Value)
		assert.True(t, rec.UpdatedAt.Equal(at), "updated_at %v", rec.UpdatedAt)
	})

	t.Run("put_overwrites", func(t *testing.T) {
		tier := newTier(t, time.Now)
		ctx := t.Context()

		require.NoError(t, tier.Put(ctx, storage.Entry{Key: "a", Value: []byte("1")}))
		require.NoError(t, tier.Put(ctx, storage.Entry{Key: "a", Value: []byte("2")}))

		rec, err := tier.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, []byte("2"), rec.Value)
	})

	t.Run("batch_and_keys_by_prefix", func(t *testing.T) {
		tier := newTier(t, time.Now)
		ctx := t.Context()

		require.NoError(t, tier.Put(ctx,
			storage.Entry{Key: "meta.b", Value: []byte("x")},
			storage.Entry{Key: "meta.a", Value: []byte("y")},
			storage.Entry{Key: "other", Value: []byte("z")},
		))

		keys, err := tier.Keys(ctx, "meta.")
		require.NoError(t, err)
		assert.Equal(t, []string{"meta.a", "meta.b"}, keys)

		all, err := tier.Keys(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("delete", func(t *testing.T) {
		tier := newTier(t, time.Now)
		ctx := t.Context()

		require.NoError(t, tier.Put(ctx,
			storage.Entry{Key: "a", Value: []byte("1")},
			storage.Entry{Key: "b", Value: []byte("2")},
		))
		require.NoError(t, tier.Delete(ctx, "a", "missing"))

		_, err := tier.Get(ctx, "a")
		require.ErrorIs(t, err, storage.ErrNotFound)

		_, err = tier.Get(ctx, "b")
		require.NoError(t, err)
	})

	t.Run("json_and_int_helpers", func(t *testing.T) {
		tier := newTier(t, time.Now)
		ctx := context.Background()

		entry, err := storage.JSONEntry("list", []string{"x", "y"})
		require.NoError(t, err)
		require.NoError(t, tier.Put(ctx, entry, storage.IntEntry("n", -42)))

		var got []string
		ok, err := storage.GetJSON(ctx, tier, "list", &got)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []string{"x", "y"}, got)

		n, ok, err := storage.GetInt(ctx, tier, "n")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(-42), n)

		_, ok, err = storage.GetInt(ctx, tier, "absent")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
