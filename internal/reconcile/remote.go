package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	ErrMismatch        = errors.New("balance mismatch")
	ErrDeferred        = errors.New("remote comparison deferred")
	ErrUnauthenticated = errors.New("not authenticated")
)

// BalanceSource reports the backend's view of the account balance.
type BalanceSource interface {
	Authenticated() bool
	FetchBalance(ctx context.Context) (int64, error)
}

// Mismatch is returned when local and backend balances disagree. It is never
// resolved here; an operator corrects it with an explicit balance correction.
type Mismatch struct {
	Local      int64     `json:"local"`
	Remote     int64     `json:"remote"`
	DetectedAt time.Time `json:"detectedAt"`
}

func (m *Mismatch) Error() string {
	return fmt.Sprintf("balance mismatch: local %d, remote %d (diff %d)", m.Local, m.Remote, m.Diff())
}

func (m *Mismatch) Unwrap() error { return ErrMismatch }

// Diff is local minus remote.
func (m *Mismatch) Diff() int64 { return m.Local - m.Remote }

// CompareRemote checks local against the backend. The comparison only makes
// sense once every local mutation has reached the backend, so it is deferred
// while undelivered transactions exist.
func CompareRemote(ctx context.Context, src BalanceSource, local int64, undelivered int, now time.Time) error {
	if src == nil || !src.Authenticated() {
		return ErrUnauthenticated
	}

	if undelivered > 0 {
		return fmt.Errorf("%w: %d transactions not yet delivered", ErrDeferred, undelivered)
	}

	remote, err := src.FetchBalance(ctx)
	if err != nil {
		return fmt.Errorf("fetch remote balance: %w", err)
	}

	if remote == local {
		slog.Debug("remote balance matches", "balance", local)
		return nil
	}

	m := &Mismatch{Local: local, Remote: remote, DetectedAt: now}
	slog.Warn("balance mismatch detected", "local", local, "remote", remote, "diff", m.Diff())

	return m
}
