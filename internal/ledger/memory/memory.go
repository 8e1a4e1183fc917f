package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"gastos/internal/core"
	"gastos/internal/ingest"
	"gastos/internal/ledger"
	"gastos/internal/log"
)

// Store is an in-process ledger.Store. Records are kept by value so callers
// never share mutable state with the store.
type Store struct {
	mu    sync.Mutex
	items map[string]core.Transaction
	now   func() time.Time
}

var _ ledger.Store = (*Store)(nil)

func New() *Store {
	return &Store{items: make(map[string]core.Transaction), now: time.Now}
}

// NewFromFiles seeds the store from base/seed_transactions.csv when present.
// The file uses the explicit-user CSV layout; bad rows are skipped.
func NewFromFiles(base string) *Store {
	s := New()
	path := filepath.Join(base, "seed_transactions.csv")
	f, err := os.Open(path)
	if err != nil {
		return s
	}
	defer f.Close()

	logger := log.Default().WithComponent(log.ComponentStorage)
	batch, err := ingest.Parse(context.Background(), f, ingest.Options{})
	if err != nil {
		logger.Warn("Failed to parse seed transactions", "path", path, log.FieldError, err)
		return s
	}
	if _, err := s.CreateBatch(context.Background(), batch.Pending); err != nil {
		logger.Warn("Failed to load seed transactions", "path", path, log.FieldError, err)
		return s
	}
	logger.Info("Seeded memory store", "path", path, log.FieldCount, len(batch.Pending), "rejected", batch.Rejected)
	return s
}

func (s *Store) Create(_ context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t = s.stamp(t)
	s.items[t.ID] = t
	return t, nil
}

// CreateBatch validates every record before storing any of them.
func (s *Store) CreateBatch(_ context.Context, txns []core.Transaction) ([]core.Transaction, error) {
	if len(txns) == 0 {
		return nil, ledger.ErrEmptyBatch
	}
	for i, t := range txns {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Transaction, len(txns))
	for i, t := range txns {
		out[i] = s.stamp(t)
	}
	for _, t := range out {
		s.items[t.ID] = t
	}
	return out, nil
}

func (s *Store) stamp(t core.Transaction) core.Transaction {
	t.ID = uuid.NewString()
	t.CreatedAt = s.now().UTC()
	return t
}

func (s *Store) List(_ context.Context, f ledger.Filter) ([]core.Transaction, error) {
	s.mu.Lock()
	out := make([]core.Transaction, 0, len(s.items))
	for _, t := range s.items {
		if f.Matches(t) {
			out = append(out, t)
		}
	}
	s.mu.Unlock()
	ledger.SortNewestFirst(out)
	return out, nil
}

func (s *Store) Get(_ context.Context, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.items[id]
	if !ok {
		return core.Transaction{}, ledger.ErrNotFound
	}
	return t, nil
}

func (s *Store) Update(_ context.Context, id string, p core.Patch) (core.Transaction, error) {
	if err := p.Validate(); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.items[id]
	if !ok {
		return core.Transaction{}, ledger.ErrNotFound
	}
	updated := p.Apply(t)
	if err := updated.Validate(); err != nil {
		return core.Transaction{}, err
	}
	s.items[id] = updated
	return updated, nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return ledger.ErrNotFound
	}
	delete(s.items, id)
	return nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
