package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gastos/internal/adapters"
	"gastos/internal/amqp"
	"gastos/internal/auth"
	"gastos/internal/ledger/memory"
	"gastos/internal/log"
	"gastos/internal/storage"
)

// amqpDialTimeout bounds startup when the broker is down; the server then
// runs without events and the worker reconciler catches up later.
const amqpDialTimeout = 30 * time.Second

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Default()
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentStorage)}
}

func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		res *BackendResult
		err error
	)
	switch config.Type {
	case SQLiteBackend:
		res, err = f.createSQLBackend(ctx, storage.DialectSQLite, config.SQLiteDBPath)
	case PostgresBackend:
		res, err = f.createSQLBackend(ctx, storage.DialectPostgres, config.DatabaseURL)
	case MemoryBackend:
		res = f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	if config.Publish {
		f.attachPublisher(ctx, config, res)
	}
	return res, nil
}

func (f *DefaultFactory) createSQLBackend(ctx context.Context, dialect storage.Dialect, dsn string) (*BackendResult, error) {
	repo, err := storage.Open(ctx, dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s repository: %w", dialect, err)
	}
	f.logger.Info("Initialized SQL backend", "dialect", string(dialect))
	return &BackendResult{
		Store:   repo,
		Users:   repo,
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) *BackendResult {
	dataDir := config.DataDirectory
	if dataDir == "" {
		dataDir = "data"
	}
	store := memory.NewFromFiles(dataDir)
	f.logger.Info("Initialized memory backend", "data_directory", dataDir, log.FieldCount, store.Len())
	return &BackendResult{
		Store: store,
		Users: auth.NewMemoryUserStore(),
	}
}

// attachPublisher wraps the store so writes emit events. A broker that
// cannot be reached is logged and skipped.
func (f *DefaultFactory) attachPublisher(ctx context.Context, config Config, res *BackendResult) {
	if config.Type == MemoryBackend {
		f.logger.Warn("Publishing events from the memory backend; the worker cannot read these records")
	}
	dialCtx, cancel := context.WithTimeout(ctx, amqpDialTimeout)
	defer cancel()

	client, err := amqp.NewClient(dialCtx, config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without events", log.FieldError, err)
		return
	}
	f.logger.Info("Initialized AMQP publisher", "exchange", config.AMQPExchange, "queue", config.AMQPQueue)

	res.Store = adapters.NewPublishingStore(res.Store, client)
	res.Publishing = true
	previous := res.Cleanup
	res.Cleanup = func() error {
		var errs []error
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
		if previous != nil {
			if err := previous(); err != nil {
				errs = append(errs, fmt.Errorf("storage: %w", err))
			}
		}
		return errors.Join(errs...)
	}
}
