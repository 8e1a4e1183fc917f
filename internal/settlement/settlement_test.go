package settlement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gastos/internal/core"
)

func shared(user, amount, category string) core.Transaction {
	return core.Transaction{UserID: user, Date: core.NewDate(2025, 8, 1), Amount: core.MustMoney(amount), Category: category, Description: "x", Shared: true}
}

func TestComputeTwoUsers(t *testing.T) {
	debts := Compute([]core.Transaction{
		shared("userA", "70", "Supermercado"),
		shared("userA", "30", "Hogar"),
		shared("userB", "60", "Comer fuera"),
	})
	require.Len(t, debts, 1)
	assert.Equal(t, "userA", debts[0].From)
	assert.Equal(t, "userB", debts[0].To)
	assert.True(t, debts[0].Amount.Equal(core.MustMoney("20")), "got %s", debts[0].Amount)
}

func TestComputeIgnoresUnsharedAndIncome(t *testing.T) {
	notShared := shared("userB", "500", "Hogar")
	notShared.Shared = false
	debts := Compute([]core.Transaction{
		shared("userA", "100", "Hogar"),
		shared("userB", "60", "Hogar"),
		notShared,
		shared("userB", "1000", "Sueldo María"),
		shared("userB", "300", "Fondos indexados María"),
	})
	require.Len(t, debts, 1)
	assert.True(t, debts[0].Amount.Equal(core.MustMoney("20")))
}

func TestComputeEqualTotals(t *testing.T) {
	s := Summarize([]core.Transaction{shared("a", "50", "Hogar"), shared("b", "50.00", "Ocio")})
	assert.True(t, s.Settleable)
	assert.Empty(t, s.Debts)
	assert.True(t, s.Half.Equal(core.MustMoney("50")))
}

func TestComputeRequiresExactlyTwoPayers(t *testing.T) {
	assert.Empty(t, Compute(nil))
	assert.Empty(t, Compute([]core.Transaction{shared("a", "10", "Hogar")}))

	three := Summarize([]core.Transaction{
		shared("a", "10", "Hogar"),
		shared("b", "20", "Hogar"),
		shared("c", "30", "Hogar"),
	})
	assert.False(t, three.Settleable)
	assert.Empty(t, three.Debts)
	assert.Len(t, three.Contributions, 3)
	assert.True(t, three.Total.Equal(core.MustMoney("60")))
}

func TestComputeKeepsPrecision(t *testing.T) {
	debts := Compute([]core.Transaction{
		shared("a", "10.01", "Hogar"),
		shared("b", "10.00", "Hogar"),
	})
	require.Len(t, debts, 1)
	assert.Equal(t, "0.005", debts[0].Amount.String())
	assert.Equal(t, "0.01", debts[0].Amount.StringFixed())
}
