package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fastprodman/coinsync/internal/economy"
	"github.com/fastprodman/coinsync/internal/syncqueue"
	"github.com/fastprodman/coinsync/internal/wallet"
)

const timeLayout = "2006-01-02 15:04:05"

// renderTransactions draws one row per transaction, oldest first.
func renderTransactions(w io.Writer, txs []syncqueue.Transaction) error {
	if len(txs) == 0 {
		_, err := fmt.Fprintln(w, "no transactions")
		return err
	}

	_, err := fmt.Fprintf(w, "%-36s  %-9s  %-9s  %8s  %8s  %-19s  %s\n",
		"ID", "TYPE", "STATUS", "AMOUNT", "ATTEMPTS", "CREATED", "LAST ERROR")
	if err != nil {
		return err
	}

	for _, tx := range txs {
		_, err = fmt.Fprintf(w, "%-36s  %-9s  %-9s  %8d  %8d  %-19s  %s\n",
			tx.ID, tx.Type, tx.Status, tx.Amount, tx.Attempts,
			tx.CreatedAt.UTC().Format(timeLayout), orDash(tx.LastError))
		if err != nil {
			return err
		}
	}

	return nil
}

func renderInventory(w io.Writer, items []wallet.InventoryItem) error {
	if len(items) == 0 {
		_, err := fmt.Fprintln(w, "inventory is empty")
		return err
	}

	for _, it := range items {
		_, err := fmt.Fprintf(w, "%-24s  %-16s  %6d\n", it.ItemID, it.Category, it.Quantity)
		if err != nil {
			return err
		}
	}

	return nil
}

func renderDiagnostics(w io.Writer, d economy.Diagnostics) error {
	var b strings.Builder

	fmt.Fprintf(&b, "balance:       %d\n", d.Balance)
	fmt.Fprintf(&b, "connectivity:  %s\n", d.Sync.State)
	fmt.Fprintf(&b, "pending:       %d\n", d.QueueLength)
	fmt.Fprintf(&b, "failed:        %d\n", d.Failed)
	fmt.Fprintf(&b, "last sync:     %s\n", formatTime(d.LastSync))

	if d.Degraded {
		fmt.Fprintf(&b, "persistence:   DEGRADED (%d failures, last: %s)\n", d.PersistFailures, d.LastPersistError)
	}

	if d.Mismatch != nil {
		fmt.Fprintf(&b, "mismatch:      local %d, remote %d\n", d.Mismatch.Local, d.Mismatch.Remote)
	}

	for _, s := range d.Breakers {
		fmt.Fprintf(&b, "breaker %-9s %s failures=%d retry_at=%s\n",
			s.Endpoint+":", s.StateName, s.FailureCount, formatTime(s.RetryAt))
	}

	_, err := io.WriteString(w, b.String())

	return err
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	return t.UTC().Format(timeLayout)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}

	return s
}
