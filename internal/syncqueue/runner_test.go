package syncqueue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	down atomic.Bool
}

func (p *fakeProber) Ping(context.Context) error {
	if p.down.Load() {
		return errors.New("no route to host")
	}

	return nil
}

func TestNewRunner_RejectsBadSchedule(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())

	_, err := NewRunner(h.q, nil, RunnerConfig{SyncSchedule: "whenever"})
	require.Error(t, err)
}

func TestRunner_ProbeDetectsReconnect(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	prober := &fakeProber{}

	r, err := NewRunner(h.q, prober, RunnerConfig{})
	require.NoError(t, err)

	var reconnects atomic.Int32
	r.OnReconnect(func(context.Context) { reconnects.Add(1) })

	r.Probe(t.Context())
	assert.Equal(t, int32(1), reconnects.Load(), "first answer from the backend is a reconnect")

	r.Probe(t.Context())
	assert.Equal(t, int32(1), reconnects.Load(), "still online")

	prober.down.Store(true)
	r.Probe(t.Context())
	assert.False(t, h.q.Online())

	prober.down.Store(false)
	r.Probe(t.Context())
	assert.True(t, h.q.Online())
	assert.Equal(t, int32(2), reconnects.Load())
}

func TestRunner_FirstProbeFailingThenRecovering(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())
	prober := &fakeProber{}
	prober.down.Store(true)

	r, err := NewRunner(h.q, prober, RunnerConfig{})
	require.NoError(t, err)

	var reconnects atomic.Int32
	r.OnReconnect(func(context.Context) { reconnects.Add(1) })

	r.Probe(t.Context())
	assert.Zero(t, reconnects.Load())
	assert.False(t, h.q.Online())

	prober.down.Store(false)
	r.Probe(t.Context())
	assert.Equal(t, int32(1), reconnects.Load())
}

func TestRunner_RunFiresReconnectOnStartAndDrainedAfterDelivery(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())

	r, err := NewRunner(h.q, &fakeProber{}, RunnerConfig{SyncSchedule: "@every 1h", ProbeSchedule: "@every 1h"})
	require.NoError(t, err)

	var reconnects, drained atomic.Int32
	r.OnReconnect(func(context.Context) { reconnects.Add(1) })
	r.OnDrained(func(context.Context) { drained.Add(1) })

	ctx, cancel := context.WithCancel(t.Context())

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return reconnects.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	h.enqueue(t, "t1", EndpointLedger)
	r.Kick()

	require.Eventually(t, func() bool { return drained.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, h.q.Len())

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), drained.Load(), "empty passes do not fire drained hooks")
}

func TestRunner_RunDeliversOnKick(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig())

	r, err := NewRunner(h.q, &fakeProber{}, RunnerConfig{SyncSchedule: "@every 1h", ProbeSchedule: "@every 1h"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	h.enqueue(t, "t1", EndpointLedger)
	r.Kick()

	require.Eventually(t, func() bool { return h.q.Len() == 0 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
