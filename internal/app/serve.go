package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fastprodman/coinsync/internal/economy"
	"github.com/fastprodman/coinsync/internal/metrics"
	"github.com/fastprodman/coinsync/internal/notify"
)

// Handler exposes the local ledger to widgets and operators.
func (a *App) Handler(hub *notify.Hub) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(metrics.NewHTTP(a.Registry).Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/diagnostics", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, a.Economy.Diagnostics())
	})

	r.Get("/balance", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]int64{"balance": a.Economy.GetBalance()})
	})

	r.Get("/inventory", func(w http.ResponseWriter, r *http.Request) {
		if category := r.URL.Query().Get("category"); category != "" {
			writeJSON(w, http.StatusOK, a.Economy.GetItemsByType(category))
			return
		}

		writeJSON(w, http.StatusOK, a.Economy.GetInventory())
	})

	r.Get("/transactions/failed", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		err := a.Queue.ExportFailed(w)
		if err != nil {
			slog.Error("export failed transactions", "error", err)
		}
	})

	r.Handle("/metrics", metrics.Handler(a.Registry))
	r.Handle("/ws", hub)

	return r
}

// Serve runs the sync runner and the local HTTP surface until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	hub := notify.NewHub(func() notify.Message {
		return notify.Message{Type: "snapshot", Data: a.Economy.Diagnostics()}
	})

	unsubscribe := a.Economy.Subscribe(func(_ context.Context, ev economy.Event) {
		hub.Broadcast(notify.Message{Type: string(ev.Kind), Data: ev})
	})
	defer unsubscribe()

	srv := &http.Server{
		Addr:              a.Config.Serve.Addr,
		Handler:           a.Handler(hub),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)

	go func() {
		errCh <- a.Runner.Run(runCtx)
	}()

	go func() {
		serr := srv.ListenAndServe()
		if serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			errCh <- serr
			return
		}

		errCh <- nil
	}()

	slog.Info("ledger serving", "addr", srv.Addr, "account", a.Config.Account.ID)

	var runErr error

	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	cancel()

	shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer stop()

	err := srv.Shutdown(shutdownCtx)
	if err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("shutdown http: %w", err))
	}

	_ = hub.Close(shutdownCtx)

	return runErr
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}
