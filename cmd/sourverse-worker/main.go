package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"sourverse/internal/amqp"
	"sourverse/internal/cache"
	"sourverse/internal/cli"
	"sourverse/internal/config"
	applog "sourverse/internal/log"
	"sourverse/internal/sheets"
	gsheet "sourverse/internal/sheets/google"
	"sourverse/internal/sheets/memory"
	"sourverse/internal/worker"
)

func main() {
	cfg, logger := cli.Bootstrap(func(c *config.Config) error {
		return errors.Join(c.Validate(), c.ValidateWorker())
	})
	ctx, stop := cli.SignalContext(logger)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Worker exited with error", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *applog.Logger) error {
	logger.Info("Starting sourverse-worker")

	var journal sheets.InvestmentJournal
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.NewFromEnv(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName, logger)
		if err != nil {
			return err
		}
		journal = client
		logger.Info("Google Sheets journal initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		journal = memory.NewJournal()
		logger.Info("Google Sheets disabled, journaling in memory - no GOOGLE_SPREADSHEET_ID provided")
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	w := worker.NewJournalWorker(journal, logger)
	caches := cache.NewManager(logger)
	caches.Register(w.Seen())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return caches.Run(gctx, time.Hour) })
	g.Go(func() error { return client.ConsumeInvestments(gctx, w.HandleJournalMessage) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
