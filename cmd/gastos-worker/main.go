package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"gastos/internal/amqp"
	"gastos/internal/backend"
	"gastos/internal/cli"
	"gastos/internal/config"
	"gastos/internal/log"
	"gastos/internal/sheets"
	gsheet "gastos/internal/sheets/google"
	"gastos/internal/sink"
	"gastos/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL")).WithComponent(log.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).ValidateWorker)

	logger.Info("Starting gastos-worker")
	bootCtx := log.NewContext(context.Background(), logger)

	// The worker only reads the ledger; publishing from here would loop.
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	bcfg.Publish = false
	res, err := backend.NewFactory(logger).CreateBackend(bootCtx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer res.Close()

	var mirrors []worker.Mirror
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.New(bootCtx, gsheet.Config{
			SpreadsheetID:      cfg.GoogleSpreadsheetID,
			ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
			ServiceAccountFile: cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		mirrors = append(mirrors, sheets.NewMirror(client, cfg.GoogleSheetName))
		logger.Info("Google Sheets mirror enabled",
			"spreadsheet_id", cfg.GoogleSpreadsheetID,
			"sheet", cfg.GoogleSheetName)
	}
	if len(cfg.ElasticsearchURLs) > 0 {
		es, err := sink.NewElasticsearch(cfg.ElasticsearchIndex, cfg.ElasticsearchURLs...)
		if err != nil {
			logger.Error("Failed to initialize Elasticsearch sink", log.FieldError, err)
			os.Exit(1)
		}
		mirrors = append(mirrors, es)
		logger.Info("Elasticsearch mirror enabled", "index", cfg.ElasticsearchIndex)
	}

	client, err := amqp.NewClient(bootCtx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer client.Close()

	syncWorker := worker.NewSyncWorker(res.Store, mirrors...)
	reconciler := worker.NewReconciler(syncWorker, worker.DefaultReconcilerConfig())

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(ctx context.Context) {
		if err := reconciler.Stop(ctx); err != nil {
			logger.Warn("Reconciler stop failed", log.FieldError, err)
		}
	})
	ctx = log.NewContext(ctx, logger)

	// Catch up on anything missed while the worker was down.
	if err := reconciler.Start(ctx); err != nil {
		logger.Error("Failed to start reconciler", log.FieldError, err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := client.Consume(gctx, cfg.WorkerPrefetch, syncWorker.HandleEvent)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	logger.Info("Worker running", "mirrors", syncWorker.Mirrors(), "queue", cfg.AMQPQueue)
	if err := g.Wait(); err != nil {
		logger.Error("Message consumption failed", log.FieldError, err)
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
