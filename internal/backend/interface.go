package backend

import (
	"context"

	"gastos/internal/auth"
	"gastos/internal/ledger"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult carries the stores for one backend and the function that
// releases them.
type BackendResult struct {
	Store ledger.Store
	Users auth.UserStore
	// Publishing reports whether writes to Store emit AMQP events.
	Publishing bool
	Cleanup    CleanupFunc
}

// Close runs Cleanup when set.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQL backends
	SQLiteDBPath string
	DatabaseURL  string

	// Memory backend seed directory
	DataDirectory string

	// Change events. Publish is off for read-only consumers such as the worker.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
	Publish      bool
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
	MemoryBackend   BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, PostgresBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
