package sheets

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gastos/internal/core"
)

// memSheet is a ValuesAPI over an in-memory grid.
type memSheet struct {
	grid    [][]string
	deletes [][]int
}

var cellRange = regexp.MustCompile(`!A(\d+):H(\d+)$`)

func (s *memSheet) Get(_ context.Context, _ string) ([][]string, error) {
	out := make([][]string, len(s.grid))
	for i, r := range s.grid {
		out[i] = append([]string(nil), r...)
	}
	return out, nil
}

func toCells(row []any) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = fmt.Sprint(v)
	}
	return out
}

func (s *memSheet) Update(_ context.Context, rng string, rows [][]any) error {
	m := cellRange.FindStringSubmatch(rng)
	if m == nil {
		return fmt.Errorf("unexpected range %s", rng)
	}
	n, _ := strconv.Atoi(m[1])
	for len(s.grid) < n {
		s.grid = append(s.grid, nil)
	}
	s.grid[n-1] = toCells(rows[0])
	return nil
}

func (s *memSheet) Append(_ context.Context, _ string, rows [][]any) error {
	for _, r := range rows {
		s.grid = append(s.grid, toCells(r))
	}
	return nil
}

func (s *memSheet) DeleteRows(_ context.Context, _ string, rows []int) error {
	s.deletes = append(s.deletes, rows)
	for _, n := range rows {
		s.grid = append(s.grid[:n-1], s.grid[n:]...)
	}
	return nil
}

func sampleTxn(id, date, amount string) core.Transaction {
	d, err := core.ParseDate(date)
	if err != nil {
		panic(err)
	}
	return core.Transaction{
		ID:          id,
		UserID:      "francis",
		Date:        d,
		Amount:      core.MustMoney(amount),
		Category:    "Supermercado",
		Description: "compra",
		Shared:      true,
		CreatedAt:   time.Now(),
	}
}

func TestEncodeDecodeRow(t *testing.T) {
	tx := sampleTxn("abc", "2024-03-05", "45.2")
	cells := toCells(EncodeRow(tx))
	assert.Equal(t, []string{"abc", "2024-03-05", "francis", "45.2", "Supermercado", "compra", "Sí", "2024-03"}, cells)

	r, err := DecodeRow(2, cells)
	require.NoError(t, err)
	assert.Equal(t, "abc", r.ID)
	assert.Equal(t, "2024-03", r.Month)
	assert.True(t, r.Txn.Amount.Equal(core.MustMoney("45.20")))
	assert.True(t, r.Txn.Shared)

	cells[colAmount] = "45,20"
	r, err = DecodeRow(2, cells)
	require.NoError(t, err)
	assert.True(t, r.Txn.Amount.Equal(core.MustMoney("45.20")))

	_, err = DecodeRow(3, cells[:3])
	assert.ErrorIs(t, err, errShortRow)
}

func TestMirror_UpsertWritesHeaderThenUpdatesInPlace(t *testing.T) {
	ctx := context.Background()
	sheet := &memSheet{}
	m := NewMirror(sheet, "Transacciones")
	assert.Equal(t, "sheets:Transacciones", m.Name())

	require.NoError(t, m.Upsert(ctx, []core.Transaction{sampleTxn("a", "2024-03-01", "1"), sampleTxn("b", "2024-03-02", "2")}))
	require.Len(t, sheet.grid, 3)
	assert.Equal(t, Header, sheet.grid[0])

	require.NoError(t, m.Upsert(ctx, []core.Transaction{sampleTxn("a", "2024-04-01", "9"), sampleTxn("c", "2024-03-03", "3")}))
	require.Len(t, sheet.grid, 4)
	assert.Equal(t, "2024-04-01", sheet.grid[1][colDate])
	assert.Equal(t, "2024-04", sheet.grid[1][colMonth])
	assert.Equal(t, "c", sheet.grid[3][colID])
}

func TestMirror_RemoveAndIDs(t *testing.T) {
	ctx := context.Background()
	sheet := &memSheet{}
	m := NewMirror(sheet, "Transacciones")
	require.NoError(t, m.Upsert(ctx, []core.Transaction{
		sampleTxn("a", "2024-03-01", "1"),
		sampleTxn("b", "2024-04-02", "2"),
		sampleTxn("c", "2024-03-03", "3"),
	}))

	ids, err := m.IDs(ctx, "2024-03")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, ids)

	require.NoError(t, m.Remove(ctx, []string{"a", "c", "zzz"}))
	assert.Equal(t, [][]int{{4, 2}}, sheet.deletes, "rows deleted bottom up")
	require.Len(t, sheet.grid, 2)
	assert.Equal(t, "b", sheet.grid[1][colID])

	require.NoError(t, m.Remove(ctx, []string{"zzz"}))
	assert.Len(t, sheet.deletes, 1)
}
