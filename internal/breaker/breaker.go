// Package breaker tracks delivery failures per backend endpoint and short-circuits
// calls to endpoints that keep failing.
//
// Each endpoint moves independently through
//
//	closed -> open (failureCount reaches the threshold)
//	open -> half-open (cool-down elapsed; exactly one probe is let through)
//	half-open -> closed (probe succeeded; the entry is dropped)
//	half-open -> open (probe failed; failureCount is pinned at the threshold)
package breaker

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// State represents the breaker state of one endpoint.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

type Config struct {
	FailureThreshold int
	Cooldown         time.Duration
}

// DefaultConfig returns the thresholds used when none are configured.
func DefaultConfig() Config {
	return Config{FailureThreshold: 5, Cooldown: 30 * time.Second}
}

// Status is a point-in-time view of one endpoint, for diagnostics.
type Status struct {
	Endpoint      string    `json:"endpoint"`
	State         State     `json:"-"`
	StateName     string    `json:"state"`
	FailureCount  int       `json:"failureCount"`
	LastFailureAt time.Time `json:"lastFailureAt"`
	// RetryAt is when an open endpoint becomes eligible for a probe.
	RetryAt time.Time `json:"retryAt,omitzero"`
}

// Observer is told about every state change. It runs outside the registry lock.
type Observer func(endpoint string, from, to State)

type entry struct {
	failureCount  int
	lastFailureAt time.Time
	probing       bool
}

// Registry holds one breaker entry per endpoint that has failed recently.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	cfg      Config
	now      func() time.Time
	observer Observer
	entries  map[string]*entry
}

type Option func(*Registry)

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func WithObserver(o Observer) Option {
	return func(r *Registry) { r.observer = o }
}

func New(cfg Config, opts ...Option) *Registry {
	def := DefaultConfig()
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = def.FailureThreshold
	}

	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}

	r := &Registry{
		cfg:     cfg,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// stateLocked derives the state of e at now. Stale sub-threshold entries are
// forgotten once a full cool-down has passed without another failure.
func (r *Registry) stateLocked(endpoint string, now time.Time) State {
	e, ok := r.entries[endpoint]
	if !ok {
		return StateClosed
	}

	quiet := now.Sub(e.lastFailureAt) >= r.cfg.Cooldown

	if e.failureCount < r.cfg.FailureThreshold {
		if quiet {
			delete(r.entries, endpoint)
		}

		return StateClosed
	}

	if !quiet {
		return StateOpen
	}

	return StateHalfOpen
}

// Allow reports whether a call to endpoint may be made now. While the endpoint
// is half-open only the first caller gets true until it reports an outcome.
func (r *Registry) Allow(endpoint string) bool {
	r.mu.Lock()

	now := r.now()
	state := r.stateLocked(endpoint, now)

	switch state {
	case StateClosed:
		r.mu.Unlock()
		return true
	case StateOpen:
		r.mu.Unlock()
		return false
	case StateHalfOpen:
		e := r.entries[endpoint]
		if e.probing {
			r.mu.Unlock()
			return false
		}

		e.probing = true
		r.mu.Unlock()

		slog.Info("breaker half-open, probing", "endpoint", endpoint)
		r.notify(endpoint, StateOpen, StateHalfOpen)

		return true
	default:
		r.mu.Unlock()
		return false
	}
}

// RecordSuccess clears the entry for endpoint.
func (r *Registry) RecordSuccess(endpoint string) {
	r.mu.Lock()

	e, ok := r.entries[endpoint]
	if !ok {
		r.mu.Unlock()
		return
	}

	was := StateClosed
	if e.probing {
		was = StateHalfOpen
	} else if e.failureCount >= r.cfg.FailureThreshold {
		was = StateOpen
	}

	delete(r.entries, endpoint)
	r.mu.Unlock()

	if was != StateClosed {
		slog.Info("breaker closed", "endpoint", endpoint)
		r.notify(endpoint, was, StateClosed)
	}
}

// Release gives back a half-open probe slot taken by Allow when the call was
// abandoned before it produced an outcome. Nothing is counted, so the next
// Allow after the cool-down lets one call through again.
func (r *Registry) Release(endpoint string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[endpoint]
	if ok {
		e.probing = false
	}
}

// RecordFailure counts a failed call to endpoint.
func (r *Registry) RecordFailure(endpoint string) {
	r.mu.Lock()

	now := r.now()
	before := r.stateLocked(endpoint, now)

	e, ok := r.entries[endpoint]
	if !ok {
		e = &entry{}
		r.entries[endpoint] = e
	}

	from := before
	if e.probing {
		from = StateHalfOpen
	}

	e.lastFailureAt = now
	e.probing = false

	if e.failureCount < r.cfg.FailureThreshold {
		e.failureCount++
	}

	count := e.failureCount
	opened := count >= r.cfg.FailureThreshold
	r.mu.Unlock()

	if !opened || from == StateOpen {
		return
	}

	if from == StateHalfOpen {
		slog.Warn("breaker reopened, probe failed", "endpoint", endpoint)
	} else {
		slog.Warn("breaker opened", "endpoint", endpoint, "failures", count)
	}

	r.notify(endpoint, from, StateOpen)
}

// State returns the current state of endpoint.
func (r *Registry) State(endpoint string) State {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.stateLocked(endpoint, r.now())
}

// Snapshot lists every tracked endpoint, sorted by name.
func (r *Registry) Snapshot() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	out := make([]Status, 0, len(r.entries))

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		state := r.stateLocked(name, now)

		e, ok := r.entries[name]
		if !ok {
			continue
		}

		st := Status{
			Endpoint:      name,
			State:         state,
			StateName:     state.String(),
			FailureCount:  e.failureCount,
			LastFailureAt: e.lastFailureAt,
		}
		if state == StateOpen {
			st.RetryAt = e.lastFailureAt.Add(r.cfg.Cooldown)
		}

		out = append(out, st)
	}

	return out
}

// Reset forgets endpoint, closing its breaker.
func (r *Registry) Reset(endpoint string) {
	r.mu.Lock()
	before := r.stateLocked(endpoint, r.now())
	delete(r.entries, endpoint)
	r.mu.Unlock()

	slog.Info("breaker reset", "endpoint", endpoint)

	if before != StateClosed {
		r.notify(endpoint, before, StateClosed)
	}
}

func (r *Registry) notify(endpoint string, from, to State) {
	if r.observer != nil {
		r.observer(endpoint, from, to)
	}
}
