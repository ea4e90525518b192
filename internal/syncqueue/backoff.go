package syncqueue

import "time"

// Backoff computes retry delays: Base * 2^(failures-1), capped at Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

func DefaultBackoff() Backoff {
	return Backoff{Base: time.Second, Max: 60 * time.Second}
}

// Delay returns how long to wait after the given number of failed attempts.
// Values below 1 are treated as 1.
func (b Backoff) Delay(failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}

	shift := failures - 1
	// 2^30 seconds is already far past any sane cap
	if shift > 30 {
		return b.Max
	}

	d := b.Base * time.Duration(1<<shift)
	if d > b.Max || d <= 0 {
		return b.Max
	}

	return d
}
