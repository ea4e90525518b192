package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	authed  bool
	balance int64
	err     error
	calls   int
}

func (s *stubSource) Authenticated() bool { return s.authed }

func (s *stubSource) FetchBalance(context.Context) (int64, error) {
	s.calls++
	return s.balance, s.err
}

func TestCompareRemote(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	t.Run("unauthenticated", func(t *testing.T) {
		t.Parallel()

		src := &stubSource{}
		err := CompareRemote(t.Context(), src, 100, 0, now)
		require.ErrorIs(t, err, ErrUnauthenticated)
		assert.Zero(t, src.calls)
	})

	t.Run("deferred_while_undelivered", func(t *testing.T) {
		t.Parallel()

		src := &stubSource{authed: true, balance: 1}
		err := CompareRemote(t.Context(), src, 100, 2, now)
		require.ErrorIs(t, err, ErrDeferred)
		assert.Zero(t, src.calls)
	})

	t.Run("match", func(t *testing.T) {
		t.Parallel()

		src := &stubSource{authed: true, balance: 100}
		require.NoError(t, CompareRemote(t.Context(), src, 100, 0, now))
	})

	t.Run("mismatch", func(t *testing.T) {
		t.Parallel()

		src := &stubSource{authed: true, balance: 80}
		err := CompareRemote(t.Context(), src, 100, 0, now)
		require.ErrorIs(t, err, ErrMismatch)

		var m *Mismatch
		require.ErrorAs(t, err, &m)
		assert.Equal(t, int64(20), m.Diff())
		assert.Equal(t, now, m.DetectedAt)
	})

	t.Run("fetch_error", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("503")
		src := &stubSource{authed: true, err: boom}
		err := CompareRemote(t.Context(), src, 100, 0, now)
		require.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, ErrMismatch)
	})
}
