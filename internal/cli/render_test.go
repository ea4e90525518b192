package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/fastprodman/coinsync/internal/syncqueue"
)

func TestRenderTransactions_Golden(t *testing.T) {
	t.Parallel()

	// CreatedAt is rendered in UTC whatever the stored zone.
	cet := time.FixedZone("CET", 2*60*60)

	txs := []syncqueue.Transaction{
		{
			ID:        "0190a1b2-c3d4-7e5f-8a9b-0c1d2e3f4a5b",
			Type:      syncqueue.TypeDebit,
			Status:    syncqueue.StatusFailed,
			Amount:    250,
			Attempts:  8,
			CreatedAt: time.Date(2024, 6, 1, 14, 0, 0, 0, cet),
			LastError: "rejected: insufficient funds",
		},
		{
			ID:        "0190a1b2-c3d4-7e5f-8a9b-0c1d2e3f4a5c",
			Type:      syncqueue.TypeInventory,
			Status:    syncqueue.StatusFailed,
			Attempts:  1,
			CreatedAt: time.Date(2024, 6, 1, 12, 5, 30, 0, time.UTC),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, renderTransactions(&buf, txs))

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "failed_transactions", buf.Bytes())
}

func TestRenderTransactions_Empty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, renderTransactions(&buf, nil))
	require.Equal(t, "no transactions\n", buf.String())
}

func TestFormatTime(t *testing.T) {
	t.Parallel()

	require.Equal(t, "never", formatTime(time.Time{}))
	require.Equal(t, "2024-01-02 03:04:05", formatTime(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))
}
