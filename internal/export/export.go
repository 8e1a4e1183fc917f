// Package export writes transactions as CSV files that the importer can read
// back.
package export

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"gastos/internal/core"
)

// Options controls the exported columns.
type Options struct {
	// IncludeUser adds a Usuario column, used for household-wide exports.
	IncludeUser bool
}

// FileName is the download name for a month.
func FileName(p core.Period) string {
	return fmt.Sprintf("gastos-%s.csv", p)
}

// Header returns the column names for opts.
func Header(opts Options) []string {
	if opts.IncludeUser {
		return []string{"Fecha", "Usuario", "Importe", "Categoría", "Descripción", "Compartido"}
	}
	return []string{"Fecha", "Importe", "Categoría", "Descripción", "Compartido"}
}

// Write emits a header line and one line per transaction, in the given order.
// Descriptions are always quoted; other fields only when they need it.
func Write(w io.Writer, txns []core.Transaction, opts Options) error {
	bw := bufio.NewWriter(w)
	if err := writeLine(bw, Header(opts), -1); err != nil {
		return err
	}

	descCol := 3
	if opts.IncludeUser {
		descCol = 4
	}
	for _, t := range txns {
		fields := []string{t.Date.String()}
		if opts.IncludeUser {
			fields = append(fields, t.UserID)
		}
		fields = append(fields,
			t.Amount.String(),
			t.Category,
			t.Description,
			sharedLabel(t.Shared),
		)
		if err := writeLine(bw, fields, descCol); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func sharedLabel(shared bool) string {
	if shared {
		return "Sí"
	}
	return "No"
}

func writeLine(w *bufio.Writer, fields []string, forceQuote int) error {
	for i, f := range fields {
		if i > 0 {
			if err := w.WriteByte(','); err != nil {
				return err
			}
		}
		if i == forceQuote || needsQuotes(f) {
			f = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
		}
		if _, err := w.WriteString(f); err != nil {
			return err
		}
	}
	_, err := w.WriteString("\r\n")
	return err
}

func needsQuotes(s string) bool {
	return s != "" && (strings.ContainsAny(s, ",\"\r\n;") || s[0] == ' ')
}
