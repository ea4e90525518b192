package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fastprodman/coinsync/internal/api"
	"github.com/fastprodman/coinsync/internal/infra/logging"
	"github.com/fastprodman/coinsync/internal/infra/pgutils"
	"github.com/fastprodman/coinsync/internal/metrics"
	"github.com/fastprodman/coinsync/internal/services/ledger"
	"github.com/fastprodman/coinsync/pkg/envconf"
	"github.com/fastprodman/coinsync/pkg/shutdownqueue"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error running api: %v\n", err)
		//nolint:gocritic
		os.Exit(1)
	}
}

func run(ctx context.Context) (retErr error) {
	cfg := new(apiConfig)

	err := envconf.Load(cfg)
	if err != nil {
		return fmt.Errorf("init config: %w", err)
	}

	logging.SetupJSON(cfg.LogLevel)

	sq := shutdownqueue.New()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		serr := sq.Shutdown(shutdownCtx)
		if serr != nil {
			retErr = errors.Join(retErr, serr)
		}
	}()

	dbConns, err := pgutils.OpenDB(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}

	sq.AddCloser("postgres", dbConns)

	ledgerSrv := ledger.New(dbConns)
	registry := metrics.NewRegistry()

	if cfg.JWTSecret == "" {
		slog.Warn("API_JWT_SECRET not set; account routes are unauthenticated")
	}

	router := api.NewRouter(ledgerSrv, api.RouterOptions{
		JWTSecret: []byte(cfg.JWTSecret),
		RateLimit: cfg.RateLimit,
		Burst:     cfg.RateBurst,
		Registry:  registry,
	})
	srv := api.NewServer(cfg.Port, router)

	sq.Add("http", func(c context.Context) error {
		slog.Info("stopping api server")
		return srv.Shutdown(c)
	})

	return listen(ctx, srv)
}

// listen serves until ctx ends or the listener fails. Graceful shutdown is
// left to the shutdown queue.
func listen(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)

	go func() {
		errCh <- srv.ListenAndServe()
	}()

	slog.Info("api started", "addr", srv.Addr)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("listen %s: %w", srv.Addr, err)
	}
}
