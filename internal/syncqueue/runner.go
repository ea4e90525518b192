package syncqueue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"
)

// Prober checks whether the backend is reachable.
type Prober interface {
	Ping(ctx context.Context) error
}

type RunnerConfig struct {
	// SyncSchedule and ProbeSchedule are cron specs ("@every 30s", "*/5 * * * *").
	SyncSchedule  string
	ProbeSchedule string
}

// Runner triggers queue passes: on a schedule, on demand through Kick, and
// when a probe sees the backend come back after being unreachable.
type Runner struct {
	q      *Queue
	prober Prober
	cfg    RunnerConfig
	kick   chan struct{}

	// probed is false until the first probe answers, so the first
	// successful probe counts as a reconnect.
	probed atomic.Bool

	mu          sync.Mutex
	onReconnect []func(context.Context)
	onDrained   []func(context.Context)
}

func NewRunner(q *Queue, prober Prober, cfg RunnerConfig) (*Runner, error) {
	for _, spec := range []string{cfg.SyncSchedule, cfg.ProbeSchedule} {
		if spec == "" {
			continue
		}

		_, err := cron.ParseStandard(spec)
		if err != nil {
			return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
		}
	}

	return &Runner{
		q:      q,
		prober: prober,
		cfg:    cfg,
		kick:   make(chan struct{}, 1),
	}, nil
}

// Kick requests a pass. Requests made while one is already waiting collapse
// into it.
func (r *Runner) Kick() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// OnReconnect registers fn to run after the backend becomes reachable again.
func (r *Runner) OnReconnect(fn func(context.Context)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.onReconnect = append(r.onReconnect, fn)
}

// OnDrained registers fn to run after a scheduled pass that delivered
// something and left nothing awaiting delivery.
func (r *Runner) OnDrained(fn func(context.Context)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.onDrained = append(r.onDrained, fn)
}

// Probe pings the backend once and records the result. The first successful
// probe and every offline to online transition count as reconnect events.
func (r *Runner) Probe(ctx context.Context) {
	if r.prober == nil {
		return
	}

	err := r.prober.Ping(ctx)
	online := err == nil

	was := r.q.SetConnectivity(online)
	first := !r.probed.Swap(true)

	if !online {
		if was || first {
			slog.Warn("backend unreachable", "error", err)
		}

		return
	}

	if was && !first {
		return
	}

	slog.Info("backend reachable", "first_probe", first)

	r.run(ctx, r.hooks(&r.onReconnect))
	r.Kick()
}

func (r *Runner) hooks(list *[]func(context.Context)) []func(context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]func(context.Context){}, (*list)...)
}

func (r *Runner) run(ctx context.Context, fns []func(context.Context)) {
	for _, fn := range fns {
		fn(ctx)
	}
}

// Run drives the queue until ctx is canceled.
func (r *Runner) Run(ctx context.Context) error {
	c := cron.New()

	if r.cfg.SyncSchedule != "" {
		_, err := c.AddFunc(r.cfg.SyncSchedule, r.Kick)
		if err != nil {
			return fmt.Errorf("schedule sync: %w", err)
		}
	}

	if r.cfg.ProbeSchedule != "" && r.prober != nil {
		_, err := c.AddFunc(r.cfg.ProbeSchedule, func() { r.Probe(ctx) })
		if err != nil {
			return fmt.Errorf("schedule probe: %w", err)
		}
	}

	c.Start()

	defer func() {
		<-c.Stop().Done()
	}()

	r.Probe(ctx)
	r.Kick()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.kick:
			res, err := r.q.Process(ctx)
			if err != nil {
				if ctx.Err() == nil {
					slog.Warn("sync pass aborted", "error", err)
				}

				continue
			}

			if res.Delivered > 0 && r.q.Len() == 0 {
				r.run(ctx, r.hooks(&r.onDrained))
			}
		}
	}
}
