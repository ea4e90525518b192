package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/fastprodman/coinsync/internal/app"
	"github.com/fastprodman/coinsync/internal/wallet"
)

func newInventoryCommand(opts *RootOptions) *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "List held items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(_ context.Context, a *app.App) error {
				items := a.Economy.GetInventory()
				if category != "" {
					items = a.Economy.GetItemsByType(category)
				}

				if items == nil {
					items = []wallet.InventoryItem{}
				}

				return opts.formatter(cmd).Success(items, func(w io.Writer) error {
					return renderInventory(w, items)
				})
			})
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "only list items of this category")

	return cmd
}

func newGrantItemCommand(opts *RootOptions) *cobra.Command {
	var quantity int64

	cmd := &cobra.Command{
		Use:   "grant-item <item-id> <category>",
		Short: "Add an item to the inventory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if quantity < 1 {
				return NewExitError(ExitCommandError, "--quantity must be at least 1")
			}

			item := wallet.InventoryItem{ItemID: args[0], Category: args[1], Quantity: quantity}

			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				err := a.Economy.AddItem(ctx, item)
				if err != nil {
					return WrapExitError(ExitCommandError, "grant item", err)
				}

				return opts.formatter(cmd).Success(item, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "granted %d x %s (%s)\n", item.Quantity, item.ItemID, item.Category)
					return err
				})
			})
		},
	}

	cmd.Flags().Int64VarP(&quantity, "quantity", "n", 1, "number of items")

	return cmd
}

type consumeResult struct {
	ItemID   string `json:"itemId"`
	Category string `json:"category"`
	Consumed bool   `json:"consumed"`
}

func newConsumeItemCommand(opts *RootOptions) *cobra.Command {
	var quantity int64

	cmd := &cobra.Command{
		Use:   "consume-item <item-id> <category>",
		Short: "Remove items from the inventory",
		Long:  "Removes --quantity items. Exits 1 without changing anything when fewer are held.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if quantity < 1 {
				return NewExitError(ExitCommandError, "--quantity must be at least 1")
			}

			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				ok, err := a.Economy.RemoveItem(ctx, args[0], args[1], quantity)
				if err != nil {
					return WrapExitError(ExitCommandError, "consume item", err)
				}

				res := consumeResult{ItemID: args[0], Category: args[1], Consumed: ok}

				err = opts.formatter(cmd).Success(res, func(w io.Writer) error {
					if !ok {
						_, err := fmt.Fprintf(w, "not enough %s (%s) held\n", res.ItemID, res.Category)
						return err
					}

					_, err := fmt.Fprintf(w, "consumed %d x %s (%s)\n", quantity, res.ItemID, res.Category)

					return err
				})
				if err != nil {
					return err
				}

				if !ok {
					return NewExitError(ExitFailure, "item not held")
				}

				return nil
			})
		},
	}

	cmd.Flags().Int64VarP(&quantity, "quantity", "n", 1, "number of items")

	return cmd
}
