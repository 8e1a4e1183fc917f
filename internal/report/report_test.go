package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gastos/internal/core"
	"gastos/internal/ledger"
	"gastos/internal/ledger/memory"
)

var aug = core.Period{Year: 2025, Month: time.August}

func tx(id, user string, day int, amount, category string) core.Transaction {
	return core.Transaction{
		ID:          id,
		UserID:      user,
		Date:        core.NewDate(2025, time.August, day),
		Amount:      core.MustMoney(amount),
		Category:    category,
		Description: "desc " + id,
		CreatedAt:   time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC),
	}
}

func sample() []core.Transaction {
	return []core.Transaction{
		tx("1", "maria", 9, "45.20", "Comer fuera"),
		tx("2", "francis", 9, "10.10", "Comer fuera"),
		tx("3", "maria", 12, "60", "Supermercado"),
		tx("4", "francis", 1, "2000", "Sueldo Francis"),
		tx("5", "maria", 2, "300", "Fondos indexados María"),
	}
}

func summaryOf(r Report, category string) (CategorySummary, bool) {
	for _, c := range r.Categories {
		if c.Category == category {
			return c, true
		}
	}
	return CategorySummary{}, false
}

func TestAggregate(t *testing.T) {
	r := Aggregate(ledger.AllUsers, aug, sample())

	assert.Equal(t, "2025-08", r.Month)
	assert.True(t, r.TotalAmount.Equal(core.MustMoney("2415.30")), "total %s", r.TotalAmount)
	assert.Len(t, r.Categories, 4)

	eat, ok := summaryOf(r, "Comer fuera")
	require.True(t, ok)
	assert.Equal(t, 2, eat.Count)
	assert.True(t, eat.Total.Equal(core.MustMoney("55.30")))

	// the full category table keeps index funds
	_, ok = summaryOf(r, "Fondos indexados María")
	assert.True(t, ok)

	// largest category first
	assert.Equal(t, "Sueldo Francis", r.Categories[0].Category)

	// newest first
	assert.Equal(t, "3", r.Expenses[0].ID)
	assert.Equal(t, "4", r.Expenses[len(r.Expenses)-1].ID)

	require.Len(t, r.ByUser, 2)
	assert.Equal(t, "francis", r.ByUser[0].UserID)
	assert.True(t, r.ByUser[1].Total.Equal(core.MustMoney("405.20")))

	require.Len(t, r.Daily, 4)
	assert.Equal(t, "2025-08-01", r.Daily[0].Date.String())
	assert.True(t, r.Daily[2].Total.Equal(core.MustMoney("55.30")))

	assert.Equal(t, "483.06", r.Average.StringFixed())
}

func TestAggregateEmpty(t *testing.T) {
	r := Aggregate("maria", aug, nil)
	assert.True(t, r.TotalAmount.IsZero())
	assert.True(t, r.Average.IsZero())
	assert.Empty(t, r.Categories)
	assert.NotNil(t, r.Categories)
}

func TestAggregateIsIdempotent(t *testing.T) {
	first := Aggregate(ledger.AllUsers, aug, sample())
	second := Aggregate(ledger.AllUsers, aug, first.Expenses)

	assert.True(t, first.TotalAmount.Equal(second.TotalAmount))
	require.Equal(t, len(first.Categories), len(second.Categories))
	for i := range first.Categories {
		assert.Equal(t, first.Categories[i].Category, second.Categories[i].Category)
		assert.Equal(t, first.Categories[i].Count, second.Categories[i].Count)
		assert.True(t, first.Categories[i].Total.Equal(second.Categories[i].Total))
	}
}

func TestViews(t *testing.T) {
	r := Aggregate(ledger.AllUsers, aug, sample())

	income := r.IncomeView()
	assert.Equal(t, 1, income.Count())
	assert.True(t, income.TotalAmount.Equal(core.MustMoney("2000")))

	expense := r.ExpenseView()
	assert.Equal(t, 3, expense.Count())
	assert.True(t, expense.TotalAmount.Equal(core.MustMoney("115.30")))
	_, ok := summaryOf(expense, "Fondos indexados María")
	assert.False(t, ok, "index funds are in neither view")

	assert.True(t, r.Balance().Equal(core.MustMoney("1884.70")))
}

func TestApplyPatchMatchesFreshAggregate(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	saved, err := store.CreateBatch(ctx, sample())
	require.NoError(t, err)

	builder := NewBuilder(store)
	r, err := builder.Build(ctx, ledger.AllUsers, aug)
	require.NoError(t, err)

	target := saved[2].ID
	amount := core.MustMoney("75.55")
	category := "Comer fuera"
	patch := core.Patch{Amount: &amount, Category: &category}

	local, err := r.ApplyPatch(target, patch)
	require.NoError(t, err)

	_, err = store.Update(ctx, target, patch)
	require.NoError(t, err)
	fresh, err := builder.Build(ctx, ledger.AllUsers, aug)
	require.NoError(t, err)

	assert.True(t, local.TotalAmount.Equal(fresh.TotalAmount))
	require.Equal(t, len(fresh.Categories), len(local.Categories))
	for i := range fresh.Categories {
		assert.Equal(t, fresh.Categories[i].Category, local.Categories[i].Category)
		assert.Equal(t, fresh.Categories[i].Count, local.Categories[i].Count)
		assert.True(t, fresh.Categories[i].Total.Equal(local.Categories[i].Total))
	}
	assert.Equal(t, len(fresh.Expenses), len(local.Expenses))
}

func TestApplyPatchMovesRecordOutOfPeriod(t *testing.T) {
	r := Aggregate(ledger.AllUsers, aug, sample())
	sept := core.NewDate(2025, time.September, 1)

	moved, err := r.ApplyPatch("1", core.Patch{Date: &sept})
	require.NoError(t, err)
	assert.Equal(t, 4, moved.Count())
	assert.True(t, moved.TotalAmount.Equal(core.MustMoney("2370.10")))
	assert.Equal(t, 5, r.Count(), "original report untouched")
}

func TestApplyPatchErrors(t *testing.T) {
	r := Aggregate(ledger.AllUsers, aug, sample())
	amount := core.MustMoney("1")

	_, err := r.ApplyPatch("missing", core.Patch{Amount: &amount})
	assert.ErrorIs(t, err, ErrNotInReport)

	_, err = r.ApplyPatch("1", core.Patch{})
	assert.ErrorIs(t, err, core.ErrEmptyPatch)
}

func TestRemove(t *testing.T) {
	r := Aggregate(ledger.AllUsers, aug, sample()).Remove("4")
	assert.Equal(t, 4, r.Count())
	_, ok := summaryOf(r, "Sueldo Francis")
	assert.False(t, ok)
}

type failingLister struct{}

func (failingLister) List(context.Context, ledger.Filter) ([]core.Transaction, error) {
	return nil, errors.New("backend down")
}

func TestBuildFiltersAndErrors(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	_, err := store.CreateBatch(ctx, append(sample(), core.Transaction{
		UserID: "maria", Date: core.NewDate(2025, time.July, 31), Amount: core.MustMoney("1"), Category: "Ocio", Description: "julio",
	}))
	require.NoError(t, err)

	r, err := NewBuilder(store).Build(ctx, "maria", aug)
	require.NoError(t, err)
	assert.Equal(t, 3, r.Count())
	assert.Equal(t, "maria", r.UserID)

	r, err = NewBuilder(store).Build(ctx, "", aug)
	require.NoError(t, err)
	assert.Equal(t, ledger.AllUsers, r.UserID)
	assert.Equal(t, 5, r.Count())

	_, err = NewBuilder(failingLister{}).Build(ctx, "maria", aug)
	assert.Error(t, err)
}
