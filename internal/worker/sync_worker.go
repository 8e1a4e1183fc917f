// Package worker mirrors ledger changes into secondary stores. Events carry
// only ids, so every write re-reads the current record from the ledger.
package worker

import (
	"context"
	"errors"
	"fmt"

	"gastos/internal/amqp"
	"gastos/internal/core"
	"gastos/internal/ledger"
	"gastos/internal/log"
)

// Mirror is a secondary store keyed by transaction id.
type Mirror interface {
	Name() string
	Upsert(ctx context.Context, txns []core.Transaction) error
	Remove(ctx context.Context, ids []string) error
}

// MonthIndexer is implemented by mirrors that can list what they hold for a
// month, which lets reconciliation remove rows deleted while the worker was down.
type MonthIndexer interface {
	IDs(ctx context.Context, month string) ([]string, error)
}

// Source is the read side of the ledger.
type Source interface {
	ledger.Getter
	ledger.Lister
}

type SyncWorker struct {
	source  Source
	mirrors []Mirror
}

func NewSyncWorker(source Source, mirrors ...Mirror) *SyncWorker {
	return &SyncWorker{source: source, mirrors: mirrors}
}

// Mirrors names the configured mirrors.
func (w *SyncWorker) Mirrors() []string {
	names := make([]string, len(w.mirrors))
	for i, m := range w.mirrors {
		names[i] = m.Name()
	}
	return names
}

// HandleEvent applies one change event to every mirror. A create or update
// whose record no longer exists is treated as a delete. Errors from all
// mirrors are joined so the message is retried.
func (w *SyncWorker) HandleEvent(ctx context.Context, e *amqp.TransactionEvent) error {
	logger := log.FromContext(ctx).WithComponent(log.ComponentWorker)
	logger.InfoContext(ctx, "Processing transaction event",
		log.FieldTransactionID, e.ID,
		log.FieldOperation, string(e.Op),
		log.FieldPeriod, e.Month)

	remove := e.Op == amqp.OpDeleted
	var current core.Transaction
	if !remove {
		t, err := w.source.Get(ctx, e.ID)
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			remove = true
		case err != nil:
			return fmt.Errorf("get transaction %s: %w", e.ID, err)
		default:
			current = t
		}
	}

	var errs []error
	for _, m := range w.mirrors {
		var err error
		if remove {
			err = m.Remove(ctx, []string{e.ID})
		} else {
			err = m.Upsert(ctx, []core.Transaction{current})
		}
		if err != nil {
			logger.ErrorContext(ctx, "Mirror write failed",
				"mirror", m.Name(),
				log.FieldTransactionID, e.ID,
				log.FieldError, err)
			errs = append(errs, fmt.Errorf("%s: %w", m.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// ReconcileResult counts what one reconciliation pass did.
type ReconcileResult struct {
	Upserted int
	Removed  int
}

// ReconcileMonth writes every record of the period to every mirror and
// removes mirrored ids that the ledger no longer has.
func (w *SyncWorker) ReconcileMonth(ctx context.Context, period core.Period) (ReconcileResult, error) {
	txns, err := w.source.List(ctx, ledger.Filter{UserID: ledger.AllUsers, Period: period})
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("list %s: %w", period, err)
	}
	live := make(map[string]bool, len(txns))
	for _, t := range txns {
		live[t.ID] = true
	}

	var res ReconcileResult
	var errs []error
	for _, m := range w.mirrors {
		if err := m.Upsert(ctx, txns); err != nil {
			errs = append(errs, fmt.Errorf("%s upsert: %w", m.Name(), err))
			continue
		}
		res.Upserted += len(txns)

		idx, ok := m.(MonthIndexer)
		if !ok {
			continue
		}
		ids, err := idx.IDs(ctx, period.String())
		if err != nil {
			errs = append(errs, fmt.Errorf("%s ids: %w", m.Name(), err))
			continue
		}
		var stale []string
		for _, id := range ids {
			if !live[id] {
				stale = append(stale, id)
			}
		}
		if err := m.Remove(ctx, stale); err != nil {
			errs = append(errs, fmt.Errorf("%s remove: %w", m.Name(), err))
			continue
		}
		res.Removed += len(stale)
	}

	log.FromContext(ctx).WithComponent(log.ComponentWorker).InfoContext(ctx, "Month reconciled",
		log.FieldOperation, log.OpSync,
		log.FieldPeriod, period.String(),
		"upserted", res.Upserted,
		"removed", res.Removed,
		"errors", len(errs))
	return res, errors.Join(errs...)
}
