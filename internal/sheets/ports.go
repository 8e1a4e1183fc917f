// Package sheets mirrors transactions into a Google Sheets tab, one row per
// transaction keyed by id in column A.
package sheets

import "context"

// Ports for the spreadsheet backend. Ranges use A1 notation including the
// tab name; row numbers are 1-based.
type (
	ValuesReader interface {
		Get(ctx context.Context, rng string) ([][]string, error)
	}

	ValuesWriter interface {
		Update(ctx context.Context, rng string, rows [][]any) error
		Append(ctx context.Context, rng string, rows [][]any) error
	}

	RowDeleter interface {
		DeleteRows(ctx context.Context, sheet string, rows []int) error
	}

	ValuesAPI interface {
		ValuesReader
		ValuesWriter
		RowDeleter
	}
)
