// Package ingest parses uploaded CSV files into pending transactions that can
// be reviewed, edited and committed as one atomic batch.
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"gastos/internal/log"
)

// Variant tells where the owning user of each row comes from.
type Variant string

const (
	// VariantSession files (fecha, importe, descripcion, categoria) belong to the signed-in user.
	VariantSession Variant = "session"
	// VariantExplicit files (date, userid, description, amount, category, shared) name the user per row.
	VariantExplicit Variant = "explicit"
)

// Options configures Parse.
type Options struct {
	// SessionUser owns rows of files without a user column.
	SessionUser string
	// MaxRows stops reading after this many data rows. Zero means no limit.
	MaxRows int
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Parse reads a whole CSV file. Row-level problems are recorded in the batch
// and never abort parsing; only an unreadable header is fatal.
func Parse(ctx context.Context, r io.Reader, opts Options) (*Batch, error) {
	logger := log.FromContext(ctx).WithComponent(log.ComponentIngest)

	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	delim, err := sniffDelimiter(br)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(br)
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", ErrMissingColumns)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	columns := make([]string, len(header))
	present := map[string]bool{}
	for i, h := range header {
		columns[i] = CanonicalColumn(h)
		if columns[i] != "" {
			present[columns[i]] = true
		}
	}

	var missing []string
	for _, c := range []string{ColDate, ColAmount, ColDescription} {
		if !present[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	variant := VariantSession
	if present[ColUser] {
		variant = VariantExplicit
	} else if strings.TrimSpace(opts.SessionUser) == "" {
		return nil, ErrNoSessionUser
	}

	batch := &Batch{ID: uuid.NewString(), Variant: variant, Owner: NormalizeUser(opts.SessionUser)}
	rows := 0
	for {
		if opts.MaxRows > 0 && rows >= opts.MaxRows {
			break
		}
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		rows++
		if err != nil {
			line := 0
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				line = pe.StartLine
			}
			batch.reject(line, err)
			logger.WarnContext(ctx, "Rejected CSV row", "line", line, "error", err)
			continue
		}
		line, _ := cr.FieldPos(0)

		row := make(Row, len(columns))
		for i, v := range record {
			if i < len(columns) && columns[i] != "" {
				row[columns[i]] = v
			}
		}

		t, err := ProcessRow(row, opts.SessionUser)
		if err != nil {
			batch.reject(line, err)
			logger.WarnContext(ctx, "Rejected CSV row", "line", line, "error", err)
			continue
		}
		batch.Pending = append(batch.Pending, t)
	}

	logger.InfoContext(ctx, "Parsed CSV file",
		"batch_id", batch.ID,
		"variant", string(variant),
		"accepted", len(batch.Pending),
		"rejected", batch.Rejected)

	return batch, nil
}

// sniffDelimiter picks ';' when the header line has more semicolons than commas.
func sniffDelimiter(br *bufio.Reader) (rune, error) {
	peek, err := br.Peek(4096)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return 0, fmt.Errorf("read csv: %w", err)
	}
	line, _, _ := bytes.Cut(peek, []byte("\n"))
	if bytes.Count(line, []byte(";")) > bytes.Count(line, []byte(",")) {
		return ';', nil
	}
	return ',', nil
}
