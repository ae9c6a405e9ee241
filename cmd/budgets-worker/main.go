package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"budgets/internal/amqp"
	"budgets/internal/cli"
	"budgets/internal/config"
	applog "budgets/internal/log"
	"budgets/internal/sheets"
	gsheet "budgets/internal/sheets/google"
	"budgets/internal/sheets/memory"
	"budgets/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig(cli.SetupLogger("info", applog.ComponentWorker))
	logger := cli.SetupLogger(cfg.LogLevel, applog.ComponentWorker)

	if !cfg.EventsEnabled() {
		cli.Fatal(logger, "Worker needs a broker", errors.New("AMQP_URL is not set"))
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Worker exited with error", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}

func run(cfg *config.Config, logger *applog.Logger) error {
	ctx, stop := cli.SignalContext(logger)
	defer stop()

	ledger, err := openLedger(ctx, cfg, logger)
	if err != nil {
		return err
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}

	exporter := worker.NewExportWorker(ledger)
	logger.Info("Starting budgets-worker", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue, "export", cfg.ExportEnabled())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := client.Consume(gctx, exporter.HandleEvent)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		return client.Close()
	})
	return g.Wait()
}

// openLedger returns the Google Sheets ledger when a spreadsheet is
// configured and an in-memory ledger otherwise.
func openLedger(ctx context.Context, cfg *config.Config, logger *applog.Logger) (sheets.LedgerWriter, error) {
	if !cfg.ExportEnabled() {
		logger.Warn("Google Sheets export disabled, rows are kept in memory only")
		return memory.New(), nil
	}
	client, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:      cfg.GoogleSpreadsheetID,
		SheetName:          cfg.GoogleSheetName,
		ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
		ServiceAccountFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize Google Sheets client: %w", err)
	}
	if err := client.EnsureHeader(ctx); err != nil {
		return nil, fmt.Errorf("prepare ledger sheet: %w", err)
	}
	logger.Info("Google Sheets ledger ready", "spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)
	return client, nil
}
