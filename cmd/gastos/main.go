package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"gastos/internal/archive"
	"gastos/internal/auth"
	"gastos/internal/backend"
	"gastos/internal/cache"
	"gastos/internal/cli"
	"gastos/internal/config"
	apphttp "gastos/internal/http"
	"gastos/internal/log"
	"gastos/internal/middleware/ratelimit"
	"gastos/internal/services"
)

const (
	shutdownTimeout    = 30 * time.Second
	cacheSweepInterval = time.Minute
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).Validate)

	bootCtx := log.NewContext(context.Background(), logger)

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).CreateBackend(bootCtx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if err := res.Close(); err != nil {
			logger.Warn("Backend cleanup failed", log.FieldError, err)
		}
	}()

	opts := []services.Option{services.WithMaxUploadBytes(cfg.MaxUploadBytes)}
	if cfg.ImportArchiveBucket != "" {
		gcs, err := archive.NewGCS(bootCtx, cfg.ImportArchiveBucket)
		if err != nil {
			logger.Warn("Upload archive disabled", log.FieldError, err, "bucket", cfg.ImportArchiveBucket)
		} else {
			defer gcs.Close()
			opts = append(opts, services.WithArchiver(gcs))
			logger.Info("Archiving uploads", "bucket", cfg.ImportArchiveBucket)
		}
	}
	ledgerSvc := services.NewLedgerService(res.Store, opts...)

	gateway, err := auth.NewGateway(res.Users, auth.Config{
		SessionKey:        cfg.SessionKey,
		SessionSigningKey: cfg.SessionSigningKey,
		SessionTTL:        cfg.SessionTTL,
	})
	if err != nil {
		logger.Error("Failed to initialize identity gateway", log.FieldError, err)
		os.Exit(1)
	}

	caches := cache.NewManager(logger)
	ledgerSvc.RegisterCaches(caches)
	caches.Register("sessions", gateway.Sessions())
	caches.Start(cacheSweepInterval)
	defer caches.Stop()

	srv := apphttp.NewServer(apphttp.Config{
		Addr:           ":" + cfg.Port,
		Ledger:         ledgerSvc,
		Auth:           gateway,
		Logger:         logger,
		HouseholdUsers: cfg.HouseholdUsers,
		MaxUploadBytes: cfg.MaxUploadBytes,
		RateLimit:      ratelimit.DefaultConfig(),
	})

	events := gateway.Subscribe()
	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		gateway.Close()
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting gastos server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"publishing", res.Publishing)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logSessionEvents(gctx, logger, events)
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}

// logSessionEvents records sign-ins and sign-outs until the gateway closes
// the subscription or ctx ends.
func logSessionEvents(ctx context.Context, logger *log.Logger, sub *auth.Subscription) {
	logger = logger.WithComponent(log.ComponentAuth)
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.C:
			if !ok {
				return
			}
			if e.User == nil {
				logger.Info("Session ended", log.FieldOperation, log.OpSignOut)
				continue
			}
			logger.Info("Session started",
				log.FieldOperation, log.OpSignIn,
				log.FieldUserID, e.User.ID)
		}
	}
}
