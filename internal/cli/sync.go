package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fastprodman/coinsync/internal/app"
	"github.com/fastprodman/coinsync/internal/reconcile"
	"github.com/fastprodman/coinsync/internal/syncqueue"
)

type syncResult struct {
	Delivered int    `json:"delivered"`
	Retrying  int    `json:"retrying"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
	Pending   int    `json:"pending"`
	State     string `json:"state"`
	Remote    string `json:"remote"`
}

// remoteOutcome summarises a remote balance check for display.
func remoteOutcome(err error) string {
	switch {
	case err == nil:
		return "match"
	case errors.Is(err, reconcile.ErrMismatch):
		return "mismatch"
	case errors.Is(err, reconcile.ErrUnauthenticated):
		return "not configured"
	case errors.Is(err, reconcile.ErrDeferred):
		return "deferred"
	default:
		return "unavailable"
	}
}

// syncNow probes the backend, runs one pass that ignores backoff and then
// compares balances with the backend.
func syncNow(ctx context.Context, a *app.App) syncResult {
	a.Runner.Probe(ctx)

	pass, err := a.Economy.SyncWithBackend(ctx)
	if err != nil {
		slog.Warn("sync pass aborted", "error", err)
	}

	remote := remoteOutcome(a.VerifyRemote(ctx))
	st := a.Queue.Status()

	return syncResult{
		Remote:    remote,
		Delivered: pass.Delivered,
		Retrying:  pass.Retrying,
		Failed:    pass.Failed,
		Skipped:   pass.Skipped,
		Pending:   st.Pending,
		State:     string(st.State),
	}
}

func newSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Deliver queued transactions now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				res := syncNow(ctx, a)

				return opts.formatter(cmd).Success(res, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "delivered %d, retrying %d, failed %d, skipped %d; %d pending (%s); remote %s\n",
						res.Delivered, res.Retrying, res.Failed, res.Skipped, res.Pending, res.State, res.Remote)
					return err
				})
			})
		},
	}
}

func newStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync, breaker and persistence health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if a.Backend.Authenticated() {
					err := a.VerifyRemote(ctx)
					if err != nil && !errors.Is(err, reconcile.ErrMismatch) {
						slog.Debug("remote balance not compared", "reason", err)
					}
				}

				d := a.Economy.Diagnostics()

				return opts.formatter(cmd).Success(d, func(w io.Writer) error {
					return renderDiagnostics(w, d)
				})
			})
		},
	}
}

func newHistoryCommand(opts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent local transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(_ context.Context, a *app.App) error {
				txs := a.Economy.History()
				if limit > 0 && len(txs) > limit {
					txs = txs[len(txs)-limit:]
				}

				if txs == nil {
					txs = []syncqueue.Transaction{}
				}

				return opts.formatter(cmd).Success(txs, func(w io.Writer) error {
					return renderTransactions(w, txs)
				})
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "show at most n entries (0 for all)")

	return cmd
}

func newFailedCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "failed",
		Short: "Inspect and resolve permanently failed transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(_ context.Context, a *app.App) error {
				txs := a.Queue.Failed()
				if txs == nil {
					txs = []syncqueue.Transaction{}
				}

				return opts.formatter(cmd).Success(txs, func(w io.Writer) error {
					return renderTransactions(w, txs)
				})
			})
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "export",
			Short: "Write failed transactions as a JSON array",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return opts.withApp(cmd, func(_ context.Context, a *app.App) error {
					return a.Queue.ExportFailed(cmd.OutOrStdout())
				})
			},
		},
		newFailedMutationCommand(opts, "retry", "Requeue failed transactions (all when no ids are given)",
			func(ctx context.Context, a *app.App, ids []string) (int, error) {
				n, err := a.Queue.RetryFailed(ctx, ids...)
				if err == nil && n > 0 {
					a.Runner.Kick()
				}

				return n, err
			}),
		newFailedMutationCommand(opts, "clear", "Drop failed transactions (all when no ids are given)",
			func(ctx context.Context, a *app.App, ids []string) (int, error) {
				return a.Queue.ClearFailed(ctx, ids...)
			}),
	)

	return cmd
}

func newFailedMutationCommand(
	opts *RootOptions,
	use, short string,
	apply func(ctx context.Context, a *app.App, ids []string) (int, error),
) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [id...]",
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				n, err := apply(ctx, a, args)
				if err != nil {
					return WrapExitError(ExitCommandError, use+" failed transactions", err)
				}

				return opts.formatter(cmd).Success(map[string]int{"affected": n}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "%d transaction(s) affected\n", n)
					return err
				})
			})
		},
	}
}

func newServeCommand(opts *RootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync loop and the local status server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cmd.SetContext(ctx)

			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if addr != "" {
					a.Config.Serve.Addr = addr
				}

				return a.Serve(ctx)
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides serve.addr)")

	return cmd
}
