package breaker

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func newTestRegistry(clk *fakeClock, opts ...Option) *Registry {
	opts = append([]Option{WithClock(clk.Now)}, opts...)

	return New(Config{FailureThreshold: 3, Cooldown: 10 * time.Second}, opts...)
}

func TestRegistry_AllowUnknownEndpoint(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(newFakeClock())

	if !r.Allow("ledger") {
		t.Fatal("expected Allow for an endpoint with no failures")
	}

	if r.State("ledger") != StateClosed {
		t.Fatalf("expected closed, got %s", r.State("ledger"))
	}
}

func TestRegistry_OpensAtThreshold(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(newFakeClock())

	r.RecordFailure("ledger")
	r.RecordFailure("ledger")

	if r.State("ledger") != StateClosed {
		t.Fatal("should still be closed below the threshold")
	}

	r.RecordFailure("ledger")

	if r.State("ledger") != StateOpen {
		t.Fatalf("expected open after 3 failures, got %s", r.State("ledger"))
	}

	if r.Allow("ledger") {
		t.Fatal("open endpoint must be short-circuited")
	}
}

func TestRegistry_EndpointsAreIndependent(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(newFakeClock())

	for range 3 {
		r.RecordFailure("ledger")
	}

	if !r.Allow("inventory") {
		t.Fatal("failures on ledger must not affect inventory")
	}
}

func TestRegistry_HalfOpenAllowsExactlyOneProbe(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	r := newTestRegistry(clk)

	for range 3 {
		r.RecordFailure("ledger")
	}

	clk.Advance(9 * time.Second)

	if r.Allow("ledger") {
		t.Fatal("cool-down has not elapsed yet")
	}

	clk.Advance(time.Second)

	if r.State("ledger") != StateHalfOpen {
		t.Fatalf("expected half_open, got %s", r.State("ledger"))
	}

	if !r.Allow("ledger") {
		t.Fatal("first call after cool-down should be allowed")
	}

	if r.Allow("ledger") {
		t.Fatal("second call while the probe is in flight must be rejected")
	}
}

func TestRegistry_ReleaseReturnsProbeSlot(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	r := newTestRegistry(clk)

	for range 3 {
		r.RecordFailure("ledger")
	}

	clk.Advance(10 * time.Second)

	if !r.Allow("ledger") {
		t.Fatal("first call after cool-down should be allowed")
	}

	r.Release("ledger")

	if r.State("ledger") != StateHalfOpen {
		t.Fatalf("release must not change the state, got %s", r.State("ledger"))
	}

	if !r.Allow("ledger") {
		t.Fatal("released probe slot should be available again")
	}

	if r.Allow("ledger") {
		t.Fatal("only one probe at a time")
	}

	r.Release("unknown")

	if !r.Allow("unknown") {
		t.Fatal("release of an untracked endpoint must be harmless")
	}
}

func TestRegistry_ProbeSuccessClears(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	r := newTestRegistry(clk)

	for range 3 {
		r.RecordFailure("ledger")
	}

	clk.Advance(10 * time.Second)
	r.Allow("ledger")
	r.RecordSuccess("ledger")

	if r.State("ledger") != StateClosed {
		t.Fatalf("expected closed, got %s", r.State("ledger"))
	}

	if n := len(r.Snapshot()); n != 0 {
		t.Fatalf("expected entry to be cleared, snapshot has %d", n)
	}
}

func TestRegistry_ProbeFailureReopensAtThreshold(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	r := newTestRegistry(clk)

	for range 3 {
		r.RecordFailure("ledger")
	}

	clk.Advance(10 * time.Second)
	r.Allow("ledger")
	r.RecordFailure("ledger")

	if r.State("ledger") != StateOpen {
		t.Fatalf("expected open after failed probe, got %s", r.State("ledger"))
	}

	snap := r.Snapshot()
	if len(snap) != 1 || snap[0].FailureCount != 3 {
		t.Fatalf("failure count should stay pinned at the threshold: %+v", snap)
	}

	want := clk.Now().Add(10 * time.Second)
	if !snap[0].RetryAt.Equal(want) {
		t.Fatalf("retryAt: want %v, got %v", want, snap[0].RetryAt)
	}
}

func TestRegistry_StaleFailuresExpire(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	r := newTestRegistry(clk)

	r.RecordFailure("ledger")
	r.RecordFailure("ledger")
	clk.Advance(10 * time.Second)
	r.RecordFailure("ledger")

	if r.State("ledger") != StateClosed {
		t.Fatalf("old failures should have been forgotten, got %s", r.State("ledger"))
	}
}

func TestRegistry_ObserverSeesTransitions(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()

	type change struct{ from, to State }

	var got []change

	r := newTestRegistry(clk, WithObserver(func(_ string, from, to State) {
		got = append(got, change{from, to})
	}))

	for range 3 {
		r.RecordFailure("ledger")
	}

	clk.Advance(10 * time.Second)
	r.Allow("ledger")
	r.RecordSuccess("ledger")

	want := []change{
		{StateClosed, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateClosed},
	}

	if len(got) != len(want) {
		t.Fatalf("transitions: want %v, got %v", want, got)
	}

	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("transition %d: want %v, got %v", i, want[i], got[i])
		}
	}
}

func TestRegistry_Reset(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(newFakeClock())

	for range 3 {
		r.RecordFailure("ledger")
	}

	r.Reset("ledger")

	if !r.Allow("ledger") {
		t.Fatal("reset endpoint should accept calls")
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half_open"},
		{State(42), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.state), got, tt.want)
		}
	}
}
