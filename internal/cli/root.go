// Package cli implements ledgerctl, the operator front end of the local
// ledger.
package cli

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/fastprodman/coinsync/internal/app"
	"github.com/fastprodman/coinsync/internal/config"
	"github.com/fastprodman/coinsync/internal/infra/logging"
)

// RootOptions holds the global flags.
type RootOptions struct {
	ConfigPath string
	Format     string
	Verbose    bool
}

var ValidFormats = []string{"text", "json"}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Inspect and operate the local coin ledger",
		Long: `ledgerctl reads and mutates the local-first coin ledger and drives its
delivery to the backend ledger.

Mutations are applied locally and queued; use "ledgerctl sync" or
"ledgerctl serve" to deliver them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}

			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to the YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(
		newBalanceCommand(opts),
		newCreditCommand(opts),
		newDebitCommand(opts),
		newSetBalanceCommand(opts),
		newInventoryCommand(opts),
		newGrantItemCommand(opts),
		newConsumeItemCommand(opts),
		newHistoryCommand(opts),
		newSyncCommand(opts),
		newStatusCommand(opts),
		newFailedCommand(opts),
		newServeCommand(opts),
	)

	return cmd
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}

// withApp loads the configured ledger, runs fn and closes the ledger.
func (o *RootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) (retErr error) {
	cfg, err := config.LoadClient(o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "load config", err)
	}

	level := logging.ParseLevel(cfg.Logging.Level)
	if o.Verbose {
		level = logging.ParseLevel("debug")
	}

	logging.SetupText(cmd.ErrOrStderr(), level)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "open ledger", err)
	}

	defer func() {
		cerr := a.Close(context.WithoutCancel(ctx))
		if cerr != nil {
			retErr = errors.Join(retErr, WrapExitError(ExitCommandError, "close ledger", cerr))
		}
	}()

	return fn(ctx, a)
}
