package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"budgets/internal/backend"
	"budgets/internal/cli"
	applog "budgets/internal/log"
	"budgets/internal/services"
)

// app holds what every command needs. svc is opened lazily before the first
// command runs unless a test already set it.
type app struct {
	svc      *services.BudgetService
	cleanup  func() error
	logLevel string
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:          "budgetctl",
		Short:        "Manage budgets and transactions",
		Long:         "Create, inspect and delete budgets and transactions in the store configured by DATA_BACKEND.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd.Context())
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	root.AddCommand(newUserCmd(a), newBudgetCmd(a), newTxCmd(a), newDashboardCmd(a))
	return root
}

func (a *app) open(ctx context.Context) error {
	if a.svc != nil {
		return nil
	}
	logger := cli.SetupLoggerTo(os.Stderr, a.logLevel, applog.ComponentCLI)

	cfg, err := cli.LoadConfig()
	if err != nil {
		return err
	}
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	res, err := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return fmt.Errorf("open %s backend: %w", cfg.DataBackend, err)
	}

	var opts []services.Option
	if res.Publisher != nil {
		opts = append(opts, services.WithPublisher(res.Publisher))
	}
	a.svc = services.NewBudgetService(res.Store, opts...)
	a.cleanup = res.Cleanup
	return nil
}

func (a *app) close() error {
	if a.cleanup == nil {
		return nil
	}
	err := a.cleanup()
	a.cleanup = nil
	return err
}
