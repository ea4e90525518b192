package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fastprodman/coinsync/internal/cli"
)

func main() {
	err := cli.NewRootCommand().ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "ledgerctl:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
