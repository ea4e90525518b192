package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fastprodman/coinsync/internal/app"
	"github.com/fastprodman/coinsync/internal/economy"
	"github.com/fastprodman/coinsync/internal/syncqueue"
)

type balanceResult struct {
	Balance int64  `json:"balance"`
	TxID    string `json:"txId,omitempty"`
	Pending int    `json:"pending"`
}

func newBalanceCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Print the local balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(_ context.Context, a *app.App) error {
				res := balanceResult{Balance: a.Economy.GetBalance(), Pending: a.Queue.Len()}

				return opts.formatter(cmd).Success(res, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "%d (%d pending)\n", res.Balance, res.Pending)
					return err
				})
			})
		},
	}
}

type mutationFlags struct {
	reason string
	typ    string
	sync   bool
}

func newCreditCommand(opts *RootOptions) *cobra.Command {
	return newCoinCommand(opts, "credit", "Add coins to the balance", syncqueue.TypeCredit,
		[]syncqueue.Type{syncqueue.TypeCredit, syncqueue.TypeWin, syncqueue.TypeReward})
}

func newDebitCommand(opts *RootOptions) *cobra.Command {
	return newCoinCommand(opts, "debit", "Remove coins from the balance", syncqueue.TypeDebit,
		[]syncqueue.Type{syncqueue.TypeDebit, syncqueue.TypeBet, syncqueue.TypeLoss, syncqueue.TypePurchase})
}

func newCoinCommand(opts *RootOptions, use, short string, def syncqueue.Type, allowed []syncqueue.Type) *cobra.Command {
	flags := &mutationFlags{}

	cmd := &cobra.Command{
		Use:   use + " <amount>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[0])
			if err != nil {
				return err
			}

			typ := syncqueue.Type(flags.typ)
			if !containsType(allowed, typ) {
				return NewExitError(ExitCommandError, fmt.Sprintf("--type must be one of %v", allowed))
			}

			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				out := opts.formatter(cmd)

				bal, err := a.Economy.Apply(ctx, typ, amount, flags.reason, nil)
				if err != nil {
					_ = out.Error(err)

					if errors.Is(err, economy.ErrInsufficientFunds) {
						return WrapExitError(ExitFailure, use+" refused", err)
					}

					return WrapExitError(ExitCommandError, use, err)
				}

				if flags.sync {
					syncNow(ctx, a)
				}

				return out.Success(mutationResult(a, bal), func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "balance %d, %d pending\n", bal, a.Queue.Len())
					return err
				})
			})
		},
	}

	cmd.Flags().StringVar(&flags.reason, "reason", use, "human readable reason")
	cmd.Flags().StringVar(&flags.typ, "type", string(def), "ledger transaction type")
	cmd.Flags().BoolVar(&flags.sync, "sync", false, "attempt delivery before exiting")

	return cmd
}

func newSetBalanceCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-balance <amount>",
		Short: "Correct the local balance without notifying the backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || amount < 0 {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid amount %q", args[0]))
			}

			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				bal, err := a.Economy.SetBalance(ctx, amount)
				if err != nil {
					return WrapExitError(ExitCommandError, "set balance", err)
				}

				return opts.formatter(cmd).Success(mutationResult(a, bal), func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "balance corrected to %d\n", bal)
					return err
				})
			})
		},
	}
}

func mutationResult(a *app.App, bal int64) balanceResult {
	res := balanceResult{Balance: bal, Pending: a.Queue.Len()}

	if h := a.Economy.History(); len(h) > 0 {
		res.TxID = h[len(h)-1].ID
	}

	return res
}

func parseAmount(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("amount must be a positive integer, got %q", s))
	}

	return n, nil
}

func containsType(types []syncqueue.Type, t syncqueue.Type) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}

	return false
}
