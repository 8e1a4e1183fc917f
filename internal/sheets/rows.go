package sheets

import (
	"errors"
	"fmt"
	"strings"

	"gastos/internal/core"
)

// Header is the first row of the mirror tab.
var Header = []string{"ID", "Fecha", "Usuario", "Importe", "Categoría", "Descripción", "Compartido", "Mes"}

// lastColumn is the column letter of the last Header cell.
const lastColumn = "H"

const (
	colID = iota
	colDate
	colUser
	colAmount
	colCategory
	colDescription
	colShared
	colMonth
)

var errShortRow = errors.New("row has fewer cells than the header")

// Row is a decoded sheet row.
type Row struct {
	Number int
	ID     string
	Month  string
	Txn    core.Transaction
}

// EncodeRow renders a transaction in Header order. The amount is written as
// a number so the sheet can sum it.
func EncodeRow(t core.Transaction) []any {
	shared := "No"
	if t.Shared {
		shared = "Sí"
	}
	return []any{
		t.ID,
		t.Date.String(),
		t.UserID,
		t.Amount.Float64(),
		t.Category,
		t.Description,
		shared,
		t.Month(),
	}
}

// DecodeRow parses one data row. Cells may come back formatted by the
// sheet, so amounts accept either decimal separator.
func DecodeRow(number int, cells []string) (Row, error) {
	if len(cells) < len(Header) {
		return Row{}, fmt.Errorf("row %d: %w", number, errShortRow)
	}
	get := func(i int) string { return strings.TrimSpace(cells[i]) }

	date, err := core.ParseDate(get(colDate))
	if err != nil {
		return Row{}, fmt.Errorf("row %d: %w", number, err)
	}
	amount, err := core.ParseAmount(get(colAmount))
	if err != nil {
		return Row{}, fmt.Errorf("row %d: %w", number, err)
	}
	r := Row{
		Number: number,
		ID:     get(colID),
		Month:  get(colMonth),
		Txn: core.Transaction{
			ID:          get(colID),
			UserID:      get(colUser),
			Date:        date,
			Amount:      amount,
			Category:    get(colCategory),
			Description: get(colDescription),
			Shared:      core.ParseBool(get(colShared)),
		},
	}
	if r.Month == "" {
		r.Month = date.Period().String()
	}
	return r, nil
}

func isHeader(cells []string) bool {
	return len(cells) > 0 && strings.EqualFold(strings.TrimSpace(cells[0]), Header[0])
}

func headerRow() []any {
	out := make([]any, len(Header))
	for i, h := range Header {
		out[i] = h
	}
	return out
}
