// Package cache holds the in-process caches used by the server: sessions,
// pending import batches and aggregated monthly reports.
package cache

import (
	"context"
	"sync"
	"time"

	"gastos/internal/log"
)

// Cache is the subset of LRUCache that consumers depend on.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string) bool
	Size() int
}

var _ Cache[int] = (*LRUCache[int])(nil)

// Cleaner is implemented by caches that can drop expired entries.
type Cleaner interface {
	CleanExpired() int
}

// Manager periodically sweeps expired entries from registered caches.
type Manager struct {
	mu       sync.Mutex
	caches   map[string]Cleaner
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	logger   *log.Logger
}

func NewManager(logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		caches: make(map[string]Cleaner),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger.WithComponent(log.ComponentCache),
	}
}

// Register adds a named cache to the sweep.
func (m *Manager) Register(name string, c Cleaner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caches[name] = c
}

// Sweep runs one cleanup pass and returns the number of removed entries.
func (m *Manager) Sweep(ctx context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for name, c := range m.caches {
		if n := c.CleanExpired(); n > 0 {
			m.logger.DebugContext(ctx, "Expired cache entries removed", "cache", name, log.FieldCount, n)
			total += n
		}
	}
	return total
}

// Start sweeps every interval until Stop is called.
func (m *Manager) Start(interval time.Duration) {
	go func() {
		defer close(m.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Sweep(context.Background())
			case <-m.stop:
				return
			}
		}
	}()
}

// Stop ends the sweep loop started by Start. It is safe to call more than once.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
}

// Wait blocks until the loop started by Start has returned.
func (m *Manager) Wait() {
	<-m.done
}
