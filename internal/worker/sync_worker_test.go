package worker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gastos/internal/amqp"
	"gastos/internal/core"
	"gastos/internal/ledger/memory"
)

// fakeMirror keeps the latest copy of each record.
type fakeMirror struct {
	mu      sync.Mutex
	name    string
	rows    map[string]core.Transaction
	err     error
	indexed bool
}

func newFakeMirror(name string) *fakeMirror {
	return &fakeMirror{name: name, rows: map[string]core.Transaction{}}
}

func (m *fakeMirror) Name() string { return m.name }

func (m *fakeMirror) Upsert(_ context.Context, txns []core.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, t := range txns {
		m.rows[t.ID] = t
	}
	return nil
}

func (m *fakeMirror) Remove(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, id := range ids {
		delete(m.rows, id)
	}
	return nil
}

func (m *fakeMirror) ids() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.rows))
	for id := range m.rows {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// indexedMirror also lists what it holds per month.
type indexedMirror struct{ *fakeMirror }

func (m indexedMirror) IDs(_ context.Context, month string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for id, t := range m.rows {
		if t.Month() == month {
			out = append(out, id)
		}
	}
	return out, nil
}

func record(user, date, amount string) core.Transaction {
	d, err := core.ParseDate(date)
	if err != nil {
		panic(err)
	}
	return core.Transaction{UserID: user, Date: d, Amount: core.MustMoney(amount), Category: "Ocio", Description: "cine"}
}

func TestHandleEvent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	sheet, search := newFakeMirror("sheet"), newFakeMirror("search")
	w := NewSyncWorker(store, sheet, search)
	assert.Equal(t, []string{"sheet", "search"}, w.Mirrors())

	created, err := store.Create(ctx, record("maria", "2024-03-01", "5"))
	require.NoError(t, err)

	require.NoError(t, w.HandleEvent(ctx, amqp.NewTransactionEvent(created.ID, amqp.OpCreated, "2024-03", "maria")))
	assert.Equal(t, []string{created.ID}, sheet.ids())
	assert.Equal(t, []string{created.ID}, search.ids())

	amount := core.MustMoney("7")
	_, err = store.Update(ctx, created.ID, core.Patch{Amount: &amount})
	require.NoError(t, err)
	require.NoError(t, w.HandleEvent(ctx, amqp.NewTransactionEvent(created.ID, amqp.OpUpdated, "2024-03", "maria")))
	assert.True(t, sheet.rows[created.ID].Amount.Equal(amount))

	require.NoError(t, store.Delete(ctx, created.ID))
	require.NoError(t, w.HandleEvent(ctx, amqp.NewTransactionEvent(created.ID, amqp.OpDeleted, "2024-03", "maria")))
	assert.Empty(t, sheet.ids())
	assert.Empty(t, search.ids())
}

func TestHandleEvent_StaleCreateRemoves(t *testing.T) {
	ctx := context.Background()
	sheet := newFakeMirror("sheet")
	sheet.rows["gone"] = record("maria", "2024-03-01", "1")
	w := NewSyncWorker(memory.New(), sheet)

	require.NoError(t, w.HandleEvent(ctx, amqp.NewTransactionEvent("gone", amqp.OpUpdated, "2024-03", "")))
	assert.Empty(t, sheet.ids())
}

func TestHandleEvent_JoinsMirrorErrors(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	created, err := store.Create(ctx, record("maria", "2024-03-01", "5"))
	require.NoError(t, err)

	broken, ok := newFakeMirror("broken"), newFakeMirror("ok")
	broken.err = errors.New("quota exceeded")
	w := NewSyncWorker(store, broken, ok)

	err = w.HandleEvent(ctx, amqp.NewTransactionEvent(created.ID, amqp.OpCreated, "2024-03", ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken: quota exceeded")
	assert.Equal(t, []string{created.ID}, ok.ids(), "healthy mirrors still receive the write")
}

func TestReconcileMonth(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	a, err := store.Create(ctx, record("maria", "2024-03-01", "5"))
	require.NoError(t, err)
	b, err := store.Create(ctx, record("francis", "2024-03-09", "6"))
	require.NoError(t, err)
	_, err = store.Create(ctx, record("francis", "2024-04-01", "6"))
	require.NoError(t, err)

	indexed := indexedMirror{newFakeMirror("sheet")}
	indexed.rows["deleted-meanwhile"] = record("maria", "2024-03-15", "1")
	indexed.rows["other-month"] = record("maria", "2024-02-15", "1")
	plain := newFakeMirror("search")

	w := NewSyncWorker(store, indexed, plain)
	res, err := w.ReconcileMonth(ctx, core.Period{Year: 2024, Month: time.March})
	require.NoError(t, err)
	assert.Equal(t, ReconcileResult{Upserted: 4, Removed: 1}, res)

	want := []string{a.ID, b.ID}
	sort.Strings(want)
	assert.Equal(t, append(want, "other-month"), indexed.ids())
	assert.Equal(t, want, plain.ids())
}
