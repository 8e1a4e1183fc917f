package ingest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"gastos/internal/core"
	"gastos/internal/ledger"
)

// PreviewRows is how many pending rows the import screen shows.
const PreviewRows = 5

// ErrEmptyBatch is returned when committing a batch with no accepted rows.
var ErrEmptyBatch = ledger.ErrEmptyBatch

var (
	ErrRowIndex     = errors.New("row index out of range")
	ErrUnknownField = errors.New("unknown field")
)

// Field names an editable column of a pending row.
type Field string

const (
	FieldDate        Field = "date"
	FieldAmount      Field = "amount"
	FieldCategory    Field = "category"
	FieldDescription Field = "description"
	FieldShared      Field = "shared"
	FieldUser        Field = "user"
)

// ParseField validates a field name coming from a form.
func ParseField(s string) (Field, error) {
	f := Field(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case FieldDate, FieldAmount, FieldCategory, FieldDescription, FieldShared, FieldUser:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, s)
}

// RowError records why a CSV line was dropped.
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

// Batch holds the accepted rows of an upload until they are committed.
type Batch struct {
	ID       string
	Variant  Variant
	Owner    string
	Pending  []core.Transaction
	Rejected int
	Errors   []RowError
}

func (b *Batch) reject(line int, err error) {
	b.Rejected++
	b.Errors = append(b.Errors, RowError{Line: line, Err: err})
}

// Preview returns up to n pending rows, or all of them when n <= 0.
func (b *Batch) Preview(n int) []core.Transaction {
	if n > len(b.Pending) || n <= 0 {
		n = len(b.Pending)
	}
	out := make([]core.Transaction, n)
	copy(out, b.Pending[:n])
	return out
}

// Total sums every pending amount.
func (b *Batch) Total() core.Money {
	total := core.Zero
	for _, t := range b.Pending {
		total = total.Add(t.Amount)
	}
	return total
}

// EditableFields lists the fields EditFields applies, in the order it
// applies them.
var EditableFields = []Field{FieldDate, FieldAmount, FieldCategory, FieldDescription, FieldShared, FieldUser}

// Edit overrides one field of a pending row. See EditFields.
func (b *Batch) Edit(index int, field Field, value string) error {
	return b.EditFields(index, map[Field]string{field: value})
}

// EditFields overrides several fields of a pending row at once. Values are
// parsed and validated the same way as during import, and the row is only
// replaced when every field is valid.
func (b *Batch) EditFields(index int, values map[Field]string) error {
	if index < 0 || index >= len(b.Pending) {
		return fmt.Errorf("%w: %d", ErrRowIndex, index)
	}
	for f := range values {
		if !slices.Contains(EditableFields, f) {
			return fmt.Errorf("%w: %q", ErrUnknownField, f)
		}
	}

	t := b.Pending[index]
	for _, field := range EditableFields {
		value, ok := values[field]
		if !ok {
			continue
		}
		if err := setField(&t, field, value); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
	}
	if err := t.Validate(); err != nil {
		return err
	}
	b.Pending[index] = t
	return nil
}

func setField(t *core.Transaction, field Field, value string) error {
	switch field {
	case FieldDate:
		d, err := core.ParseDate(value)
		if err != nil {
			return err
		}
		t.Date = d
	case FieldAmount:
		m, err := core.ParseAmount(value)
		if err != nil {
			return err
		}
		t.Amount = m
	case FieldCategory:
		c, ok := core.NormalizeCategory(value)
		if !ok {
			return fmt.Errorf("%w: %q", core.ErrUnknownCategory, value)
		}
		t.Category = c
	case FieldDescription:
		t.Description = strings.TrimSpace(value)
	case FieldShared:
		v, err := core.ParseBoolStrict(value)
		if err != nil {
			return err
		}
		t.Shared = v
	case FieldUser:
		u := NormalizeUser(value)
		if u == "" {
			return core.ErrEmptyUser
		}
		t.UserID = u
	}
	return nil
}

// Remove drops a pending row.
func (b *Batch) Remove(index int) error {
	if index < 0 || index >= len(b.Pending) {
		return fmt.Errorf("%w: %d", ErrRowIndex, index)
	}
	b.Pending = append(b.Pending[:index], b.Pending[index+1:]...)
	return nil
}

// Commit writes every pending row in one atomic call.
func (b *Batch) Commit(ctx context.Context, w ledger.BatchWriter) ([]core.Transaction, error) {
	if len(b.Pending) == 0 {
		return nil, ErrEmptyBatch
	}
	saved, err := w.CreateBatch(ctx, b.Pending)
	if err != nil {
		return nil, fmt.Errorf("commit batch %s: %w", b.ID, err)
	}
	return saved, nil
}
