package syncqueue

import (
	"context"
	"errors"
)

var (
	// ErrNetwork means the backend could not be reached or answered with a
	// transient failure. The attempt is retried with backoff.
	ErrNetwork = errors.New("network failure")
	// ErrTimeout means the attempt exceeded its deadline. Handled as ErrNetwork.
	ErrTimeout = errors.New("delivery timed out")
	// ErrEndpointUnavailable means the breaker for the endpoint is open; no
	// attempt was made and none was consumed.
	ErrEndpointUnavailable = errors.New("endpoint unavailable")
	// ErrRejected means the backend refused the transaction for good.
	ErrRejected = errors.New("rejected by backend")
	ErrNotFound = errors.New("transaction not found")
)

// classify maps a delivery error onto the queue's taxonomy.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrRejected), errors.Is(err, ErrTimeout), errors.Is(err, ErrNetwork):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return errors.Join(ErrTimeout, err)
	default:
		return errors.Join(ErrNetwork, err)
	}
}
