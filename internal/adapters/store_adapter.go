// Package adapters decorates ledger stores with side effects that must
// follow a successful write.
package adapters

import (
	"context"

	"gastos/internal/amqp"
	"gastos/internal/core"
	"gastos/internal/ledger"
	"gastos/internal/log"
)

// PublishingStore forwards every call to the wrapped store and announces
// successful writes on AMQP. A failed publish is logged and never returned:
// the record is already committed and the worker reconciler catches up.
type PublishingStore struct {
	ledger.Store
	publisher amqp.Publisher
}

var _ ledger.Store = (*PublishingStore)(nil)

// NewPublishingStore returns store unchanged when publisher is nil.
func NewPublishingStore(store ledger.Store, publisher amqp.Publisher) ledger.Store {
	if publisher == nil {
		return store
	}
	return &PublishingStore{Store: store, publisher: publisher}
}

func (s *PublishingStore) Create(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	created, err := s.Store.Create(ctx, t)
	if err != nil {
		return created, err
	}
	s.publish(ctx, created, amqp.OpCreated)
	return created, nil
}

func (s *PublishingStore) CreateBatch(ctx context.Context, txns []core.Transaction) ([]core.Transaction, error) {
	created, err := s.Store.CreateBatch(ctx, txns)
	if err != nil {
		return created, err
	}
	for _, t := range created {
		s.publish(ctx, t, amqp.OpCreated)
	}
	return created, nil
}

func (s *PublishingStore) Update(ctx context.Context, id string, p core.Patch) (core.Transaction, error) {
	updated, err := s.Store.Update(ctx, id, p)
	if err != nil {
		return updated, err
	}
	s.publish(ctx, updated, amqp.OpUpdated)
	return updated, nil
}

// Delete reads the record first so the event still carries its month.
func (s *PublishingStore) Delete(ctx context.Context, id string) error {
	existing, err := s.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.Store.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, existing, amqp.OpDeleted)
	return nil
}

func (s *PublishingStore) publish(ctx context.Context, t core.Transaction, op amqp.Op) {
	event := amqp.NewTransactionEvent(t.ID, op, t.Month(), t.UserID)
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.FromContext(ctx).WithComponent(log.ComponentAMQP).WarnContext(ctx, "Failed to publish transaction event",
			log.FieldTransactionID, t.ID,
			log.FieldOperation, string(op),
			log.FieldError, err)
	}
}
