// Package app wires the client-side ledger together: construct, load, ready.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fastprodman/coinsync/internal/backend"
	"github.com/fastprodman/coinsync/internal/breaker"
	"github.com/fastprodman/coinsync/internal/config"
	"github.com/fastprodman/coinsync/internal/economy"
	"github.com/fastprodman/coinsync/internal/metrics"
	"github.com/fastprodman/coinsync/internal/reconcile"
	"github.com/fastprodman/coinsync/internal/storage"
	"github.com/fastprodman/coinsync/internal/storage/filetier"
	"github.com/fastprodman/coinsync/internal/storage/memory"
	"github.com/fastprodman/coinsync/internal/storage/sqlite"
	"github.com/fastprodman/coinsync/internal/syncqueue"
	"github.com/fastprodman/coinsync/pkg/shutdownqueue"
)

// App is one loaded ledger instance.
type App struct {
	Config   *config.Client
	Store    storage.Store
	Breakers *breaker.Registry
	Queue    *syncqueue.Queue
	Backend  *backend.Client
	Runner   *syncqueue.Runner
	Economy  *economy.Manager
	Registry *prometheus.Registry
	Metrics  *metrics.Client

	shutdown *shutdownqueue.Queue
	// remoteDeferred is set while a remote balance check waits for the
	// queue to drain.
	remoteDeferred atomic.Bool
}

// New opens storage, builds every component and loads the economy. The
// returned App is ready; Close releases it.
func New(ctx context.Context, cfg *config.Client) (_ *App, retErr error) {
	a := &App{
		Config:   cfg,
		Registry: metrics.NewRegistry(),
		shutdown: shutdownqueue.New(),
	}

	defer func() {
		if retErr != nil {
			retErr = errors.Join(retErr, a.shutdown.Shutdown(context.WithoutCancel(ctx)))
		}
	}()

	err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	a.Metrics = metrics.NewClient(a.Registry)

	a.Breakers = breaker.New(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		Cooldown:         cfg.Breaker.Cooldown,
	}, breaker.WithObserver(a.Metrics.ObserveBreaker))

	a.Backend = backend.New(backend.Config{
		BaseURL:   cfg.Backend.BaseURL,
		AccountID: cfg.Account.ID,
		Token:     cfg.Backend.Token,
		Timeout:   cfg.Backend.RequestTimeout,
	})

	var mgr *economy.Manager

	a.Queue = syncqueue.New(syncqueue.Config{
		MaxAttempts:    cfg.Queue.MaxAttempts,
		Backoff:        syncqueue.Backoff{Base: cfg.Queue.BaseDelay, Max: cfg.Queue.MaxDelay},
		AttemptTimeout: cfg.Backend.RequestTimeout,
	}, syncqueue.NewStoreJournal(a.Store.Durable), a.Backend, a.Breakers,
		syncqueue.WithDeliveryObserver(a.Metrics.ObserveDelivery),
		syncqueue.WithPersistErrorHandler(func(err error) {
			if mgr != nil {
				mgr.ReportPersistFailure(err)
			}
		}),
	)
	a.Queue.SubscribeStatus(a.Metrics.SetSyncStatus)

	a.Runner, err = syncqueue.NewRunner(a.Queue, a.Backend, syncqueue.RunnerConfig{
		SyncSchedule:  cfg.Queue.SyncSchedule,
		ProbeSchedule: cfg.Queue.ProbeSchedule,
	})
	if err != nil {
		return nil, fmt.Errorf("build sync runner: %w", err)
	}

	mgr = economy.New(economy.Config{HistoryLimit: cfg.History.Limit}, a.Store, a.Queue,
		economy.WithBreakers(a.Breakers),
		economy.WithRemote(a.Backend),
		economy.WithKicker(a.Runner),
	)
	a.Economy = mgr

	a.Runner.OnReconnect(a.checkRemote)
	a.Runner.OnDrained(func(ctx context.Context) {
		if a.remoteDeferred.Load() {
			a.checkRemote(ctx)
		}
	})

	err = mgr.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load economy: %w", err)
	}

	a.Metrics.SetSyncStatus(a.Queue.Status())

	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	durable, err := sqlite.Open(ctx, a.Config.Storage.DurablePath)
	if err != nil {
		return fmt.Errorf("open durable tier: %w", err)
	}

	a.Store.Durable = durable

	a.shutdown.AddCloser("durable tier", durable)

	if a.Config.Storage.SessionPath == "" {
		a.Store.Session = memory.New()
		return nil
	}

	session, err := filetier.Open(a.Config.Storage.SessionPath)
	if err != nil {
		return fmt.Errorf("open session tier: %w", err)
	}

	a.Store.Session = session

	a.shutdown.AddCloser("session tier", session)

	return nil
}

// VerifyRemote compares the local balance with the backend now. A check that
// cannot run yet because transactions are still queued is remembered and
// repeated once a scheduled pass drains the queue.
func (a *App) VerifyRemote(ctx context.Context) error {
	err := a.Economy.CheckRemote(ctx)
	a.remoteDeferred.Store(errors.Is(err, reconcile.ErrDeferred))

	return err
}

// checkRemote runs on reconnect and after a deferred check's queue drains.
// Outcomes other than a mismatch are only worth a debug line.
func (a *App) checkRemote(ctx context.Context) {
	err := a.VerifyRemote(ctx)

	switch {
	case err == nil:
		slog.Debug("remote balance verified")
	case errors.Is(err, reconcile.ErrMismatch):
		// already logged and published by the manager
	default:
		slog.Debug("remote balance check skipped", "reason", err)
	}
}

// OnClose registers fn to run when the App is closed, before storage.
func (a *App) OnClose(name string, fn shutdownqueue.Task) {
	a.shutdown.Add(name, fn)
}

// Close runs the registered shutdown tasks in reverse order.
func (a *App) Close(ctx context.Context) error {
	return a.shutdown.Shutdown(ctx)
}
