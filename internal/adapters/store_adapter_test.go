package adapters

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gastos/internal/amqp"
	"gastos/internal/core"
	"gastos/internal/ledger"
	"gastos/internal/ledger/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*amqp.TransactionEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e *amqp.TransactionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) ops() []amqp.Op {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]amqp.Op, len(p.events))
	for i, e := range p.events {
		out[i] = e.Op
	}
	return out
}

func sample(desc string) core.Transaction {
	return core.Transaction{
		UserID:      "maria",
		Date:        core.NewDate(2024, 3, 14),
		Amount:      core.MustMoney("12.50"),
		Category:    core.Categorize(desc),
		Description: desc,
		Shared:      true,
	}
}

func TestNewPublishingStore_NilPublisher(t *testing.T) {
	store := memory.New()
	assert.Same(t, ledger.Store(store), NewPublishingStore(store, nil))
}

func TestPublishingStore_PublishesAfterWrites(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	store := NewPublishingStore(memory.New(), pub)

	created, err := store.Create(ctx, sample("cena restaurante"))
	require.NoError(t, err)

	batch, err := store.CreateBatch(ctx, []core.Transaction{sample("bus"), sample("farmacia")})
	require.NoError(t, err)
	require.Len(t, batch, 2)

	moved := core.NewDate(2024, 4, 2)
	_, err = store.Update(ctx, created.ID, core.Patch{Date: &moved})
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, batch[0].ID))

	assert.Equal(t, []amqp.Op{amqp.OpCreated, amqp.OpCreated, amqp.OpCreated, amqp.OpUpdated, amqp.OpDeleted}, pub.ops())
	assert.Equal(t, created.ID, pub.events[0].ID)
	assert.Equal(t, "2024-04", pub.events[3].Month)
	assert.Equal(t, batch[0].ID, pub.events[4].ID)
	assert.Equal(t, "2024-03", pub.events[4].Month)
	assert.Equal(t, "maria", pub.events[4].UserID)
}

func TestPublishingStore_FailedWritesPublishNothing(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	store := NewPublishingStore(memory.New(), pub)

	_, err := store.Create(ctx, core.Transaction{})
	require.Error(t, err)

	_, err = store.CreateBatch(ctx, nil)
	require.ErrorIs(t, err, ledger.ErrEmptyBatch)

	shared := false
	_, err = store.Update(ctx, "missing", core.Patch{Shared: &shared})
	require.ErrorIs(t, err, ledger.ErrNotFound)

	require.ErrorIs(t, store.Delete(ctx, "missing"), ledger.ErrNotFound)

	assert.Empty(t, pub.ops())
}

func TestPublishingStore_PublishErrorIsSwallowed(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{err: errors.New("broker down")}
	inner := memory.New()
	store := NewPublishingStore(inner, pub)

	created, err := store.Create(ctx, sample("supermercado"))
	require.NoError(t, err)

	got, err := inner.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Len(t, pub.ops(), 1)
}
