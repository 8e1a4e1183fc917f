// Package ledger declares the persistence ports for transaction records.
// Implementations live in internal/storage (SQL) and internal/ledger/memory.
package ledger

import (
	"context"
	"errors"
	"sort"

	"gastos/internal/core"
)

// AllUsers selects every user in a Filter.
const AllUsers = "all"

var (
	ErrNotFound   = errors.New("transaction not found")
	ErrEmptyBatch = errors.New("no transactions to write")
)

// Filter narrows a List call. Zero fields match everything.
type Filter struct {
	UserID string
	Period core.Period
}

// Matches reports whether t passes the filter.
func (f Filter) Matches(t core.Transaction) bool {
	if f.UserID != "" && f.UserID != AllUsers && f.UserID != t.UserID {
		return false
	}
	if !f.Period.IsZero() && !f.Period.Contains(t.Date) {
		return false
	}
	return true
}

// Ports for outbound adapters.
type (
	Writer interface {
		// Create assigns ID and CreatedAt and returns the stored record.
		Create(ctx context.Context, t core.Transaction) (core.Transaction, error)
	}

	// BatchWriter writes every record or none.
	BatchWriter interface {
		CreateBatch(ctx context.Context, txns []core.Transaction) ([]core.Transaction, error)
	}

	// Lister returns records ordered by date descending.
	Lister interface {
		List(ctx context.Context, f Filter) ([]core.Transaction, error)
	}

	Getter interface {
		Get(ctx context.Context, id string) (core.Transaction, error)
	}

	Updater interface {
		Update(ctx context.Context, id string, p core.Patch) (core.Transaction, error)
	}

	Deleter interface {
		Delete(ctx context.Context, id string) error
	}

	Store interface {
		Writer
		BatchWriter
		Lister
		Getter
		Updater
		Deleter
	}
)

// SortNewestFirst orders by date descending, then creation time descending.
func SortNewestFirst(txns []core.Transaction) {
	sort.SliceStable(txns, func(i, j int) bool {
		a, b := txns[i], txns[j]
		if !a.Date.Equal(b.Date.Time) {
			return a.Date.After(b.Date.Time)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}
