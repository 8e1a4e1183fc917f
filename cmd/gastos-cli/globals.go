package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"gastos/internal/backend"
	cliutil "gastos/internal/cli"
	"gastos/internal/config"
	"gastos/internal/core"
	"gastos/internal/log"
	"gastos/internal/services"
)

// globals holds options shared by every command.
type globals struct {
	LogLevel string        `name:"log-level" default:"warn" env:"LOG_LEVEL" help:"Log level (debug, info, warn, error)."`
	Backend  string        `name:"backend" env:"DATA_BACKEND" help:"Override the data backend (memory, sqlite, postgres)."`
	Timeout  time.Duration `default:"2m" help:"Give up after this long."`
}

// session is what a command needs to talk to the ledger.
type session struct {
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *log.Logger
	cfg     *config.Config
	backend *backend.BackendResult
	ledger  *services.LedgerService
}

func (g *globals) open() (*session, error) {
	cliutil.LoadEnvFile()
	logger := cliutil.SetupLogger(g.LogLevel).WithComponent(log.ComponentCLI)

	cfg := config.Load()
	if g.Backend != "" {
		cfg.DataBackend = g.Backend
	}
	if err := cfg.ValidateStorage(); err != nil {
		return nil, err
	}
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(log.NewContext(context.Background(), logger), g.Timeout)
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		cancel()
		return nil, err
	}
	if bcfg.Type == backend.MemoryBackend {
		logger.Warn("Using the memory backend; changes are lost when the command exits")
	}
	return &session{
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
		cfg:     cfg,
		backend: res,
		ledger:  services.NewLedgerService(res.Store, services.WithMaxUploadBytes(cfg.MaxUploadBytes)),
	}, nil
}

func (s *session) Close() {
	if err := s.backend.Close(); err != nil {
		s.logger.Warn("Backend cleanup failed", log.FieldError, err)
	}
	s.cancel()
}

// period parses --month, defaulting to the current month.
func period(month string) (core.Period, error) {
	if month == "" {
		return core.CurrentPeriod(time.Now()), nil
	}
	return core.ParsePeriod(month)
}

// output opens path for writing; "-" and "" mean stdout.
func output(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return f, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
