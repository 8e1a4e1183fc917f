package sheets

import (
	"context"
	"fmt"
	"sort"

	"gastos/internal/core"
	"gastos/internal/log"
)

// Mirror keeps one tab in sync with the ledger. Writes are idempotent:
// an id already present is updated in place, a new id is appended.
type Mirror struct {
	api   ValuesAPI
	sheet string
}

func NewMirror(api ValuesAPI, sheet string) *Mirror {
	return &Mirror{api: api, sheet: sheet}
}

func (m *Mirror) Name() string { return "sheets:" + m.sheet }

func (m *Mirror) rng(cells string) string {
	return fmt.Sprintf("'%s'!%s", m.sheet, cells)
}

// rows reads the whole tab and indexes data rows by id.
func (m *Mirror) rows(ctx context.Context) (values [][]string, byID map[string]int, err error) {
	values, err = m.api.Get(ctx, m.rng("A:"+lastColumn))
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", m.sheet, err)
	}
	byID = make(map[string]int, len(values))
	for i, cells := range values {
		if i == 0 && isHeader(cells) {
			continue
		}
		if len(cells) == 0 || cells[colID] == "" {
			continue
		}
		byID[cells[colID]] = i + 1
	}
	return values, byID, nil
}

func (m *Mirror) Upsert(ctx context.Context, txns []core.Transaction) error {
	if len(txns) == 0 {
		return nil
	}
	values, byID, err := m.rows(ctx)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		if err := m.api.Update(ctx, m.rng("A1:"+lastColumn+"1"), [][]any{headerRow()}); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	var appended [][]any
	updated := 0
	for _, t := range txns {
		row, ok := byID[t.ID]
		if !ok {
			appended = append(appended, EncodeRow(t))
			continue
		}
		r := m.rng(fmt.Sprintf("A%d:%s%d", row, lastColumn, row))
		if err := m.api.Update(ctx, r, [][]any{EncodeRow(t)}); err != nil {
			return fmt.Errorf("update %s: %w", t.ID, err)
		}
		updated++
	}
	if len(appended) > 0 {
		if err := m.api.Append(ctx, m.rng("A:"+lastColumn), appended); err != nil {
			return fmt.Errorf("append %d rows: %w", len(appended), err)
		}
	}

	log.FromContext(ctx).WithComponent(log.ComponentSheets).DebugContext(ctx, "Sheet rows written",
		"sheet", m.sheet,
		"updated", updated,
		"appended", len(appended))
	return nil
}

// Remove deletes the rows of the given ids. Unknown ids are ignored.
func (m *Mirror) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, byID, err := m.rows(ctx)
	if err != nil {
		return err
	}
	var rows []int
	for _, id := range ids {
		if n, ok := byID[id]; ok {
			rows = append(rows, n)
		}
	}
	if len(rows) == 0 {
		return nil
	}
	sort.Sort(sort.Reverse(sort.IntSlice(rows)))
	if err := m.api.DeleteRows(ctx, m.sheet, rows); err != nil {
		return fmt.Errorf("delete %d rows: %w", len(rows), err)
	}
	return nil
}

// IDs lists the ids of rows tagged with month (YYYY-MM).
func (m *Mirror) IDs(ctx context.Context, month string) ([]string, error) {
	values, _, err := m.rows(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	for i, cells := range values {
		if i == 0 && isHeader(cells) {
			continue
		}
		r, err := DecodeRow(i+1, cells)
		if err != nil {
			log.FromContext(ctx).WithComponent(log.ComponentSheets).WarnContext(ctx, "Skipping unreadable sheet row",
				"sheet", m.sheet, log.FieldError, err)
			continue
		}
		if r.Month == month && r.ID != "" {
			ids = append(ids, r.ID)
		}
	}
	return ids, nil
}
