// Command budgetctl administers budgets directly against the configured store.
package main

import (
	"os"

	"budgets/internal/cli"
)

func main() {
	cli.LoadEnvFile()
	if err := newRootCmd(&app{}).Execute(); err != nil {
		os.Exit(1)
	}
}
