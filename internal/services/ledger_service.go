// Package services orchestrates the ledger use cases behind the HTTP
// handlers and the CLI: manual entry, reports with local re-aggregation,
// settlement, export and the staged CSV import.
package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"gastos/internal/archive"
	"gastos/internal/cache"
	"gastos/internal/core"
	"gastos/internal/export"
	"gastos/internal/ingest"
	"gastos/internal/ledger"
	"gastos/internal/log"
	"gastos/internal/report"
	"gastos/internal/settlement"
)

const (
	defaultReportCacheSize = 64
	defaultReportCacheTTL  = 5 * time.Minute
	defaultImportCacheSize = 32
	defaultImportTTL       = 30 * time.Minute
	// DefaultMaxUploadBytes caps a raw CSV upload.
	DefaultMaxUploadBytes = 5 << 20
)

var (
	ErrImportNotFound = errors.New("import not found or expired")
	ErrUploadTooLarge = errors.New("upload too large")
	ErrEmptyUpload    = errors.New("empty upload")
)

// ImportPreview is a snapshot of a pending import with every pending row.
// It never aliases the batch held by the service.
type ImportPreview struct {
	ID       string             `json:"id"`
	Variant  ingest.Variant     `json:"variant"`
	Owner    string             `json:"owner"`
	Rows     []core.Transaction `json:"rows"`
	Count    int                `json:"count"`
	Total    core.Money         `json:"total"`
	Rejected int                `json:"rejected"`
	Errors   []string           `json:"errors,omitempty"`
	Archive  string             `json:"archive,omitempty"`
}

type pendingImport struct {
	batch   *ingest.Batch
	archive string
}

// LedgerService ties the store to the report cache and the import staging
// area. It is safe for concurrent use.
type LedgerService struct {
	store    ledger.Store
	builder  *report.Builder
	archiver archive.Archiver
	now      func() time.Time

	maxUploadBytes int64
	reports        *cache.LRUCache[report.Report]

	importMu sync.Mutex
	imports  *cache.LRUCache[*pendingImport]
}

type Option func(*LedgerService)

// WithArchiver copies every raw upload to the archiver before parsing.
func WithArchiver(a archive.Archiver) Option {
	return func(s *LedgerService) { s.archiver = a }
}

func WithMaxUploadBytes(n int64) Option {
	return func(s *LedgerService) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *LedgerService) { s.now = now }
}

func NewLedgerService(store ledger.Store, opts ...Option) *LedgerService {
	s := &LedgerService{
		store:          store,
		builder:        report.NewBuilder(store),
		now:            time.Now,
		maxUploadBytes: DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.reports = cache.NewLRUCache[report.Report](defaultReportCacheSize, defaultReportCacheTTL,
		cache.WithClock[report.Report](s.now))
	s.imports = cache.NewLRUCache[*pendingImport](defaultImportCacheSize, defaultImportTTL,
		cache.WithClock[*pendingImport](s.now))
	return s
}

// RegisterCaches hands the service caches to a sweeper.
func (s *LedgerService) RegisterCaches(m *cache.Manager) {
	m.Register("reports", s.reports)
	m.Register("imports", s.imports)
}

func (s *LedgerService) logger(ctx context.Context) *log.Logger {
	return log.FromContext(ctx).WithComponent(log.ComponentLedger)
}

// CreateTransaction stores a manual entry. An empty category is derived from
// the description.
func (s *LedgerService) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	t.Description = strings.TrimSpace(t.Description)
	if strings.TrimSpace(t.Category) == "" {
		t.Category = core.Categorize(t.Description)
	} else if c, ok := core.NormalizeCategory(t.Category); ok {
		t.Category = c
	}
	if err := t.ValidateEntry(); err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	created, err := s.store.Create(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	s.invalidate(created.Month())
	s.logger(ctx).InfoContext(ctx, "Transaction created",
		log.NewFields().
			WithOperation(log.OpCreate).
			WithTransaction(created.ID, created.UserID, created.Category, created.Amount.String(), created.Shared).
			ToSlice()...)
	return created, nil
}

// Transactions lists records straight from the store.
func (s *LedgerService) Transactions(ctx context.Context, f ledger.Filter) ([]core.Transaction, error) {
	return s.store.List(ctx, f)
}

func (s *LedgerService) Transaction(ctx context.Context, id string) (core.Transaction, error) {
	return s.store.Get(ctx, id)
}

// UpdateTransaction applies a patch in the store and drops cached reports
// of both the old and the new month.
func (s *LedgerService) UpdateTransaction(ctx context.Context, id string, p core.Patch) (core.Transaction, error) {
	if err := p.Validate(); err != nil {
		return core.Transaction{}, err
	}
	before, err := s.store.Get(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}
	updated, err := s.store.Update(ctx, id, p)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction %s: %w", id, err)
	}
	s.invalidate(before.Month(), updated.Month())
	s.logger(ctx).InfoContext(ctx, "Transaction updated",
		log.FieldOperation, log.OpUpdate,
		log.FieldTransactionID, id,
		"fields", strings.Join(p.Fields(), ","))
	return updated, nil
}

func (s *LedgerService) DeleteTransaction(ctx context.Context, id string) error {
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	s.invalidate(existing.Month())
	s.logger(ctx).InfoContext(ctx, "Transaction deleted",
		log.FieldOperation, log.OpDelete,
		log.FieldTransactionID, id)
	return nil
}

func reportKey(userID string, p core.Period) string {
	if userID == "" {
		userID = ledger.AllUsers
	}
	return p.String() + "|" + userID
}

// invalidate drops every cached report of the given months, for all users.
func (s *LedgerService) invalidate(months ...string) {
	s.reports.DeleteFunc(func(key string, _ report.Report) bool {
		for _, m := range months {
			if strings.HasPrefix(key, m+"|") {
				return true
			}
		}
		return false
	})
}

// Report returns the aggregation of one period for a user or for
// ledger.AllUsers, served from cache when fresh.
func (s *LedgerService) Report(ctx context.Context, userID string, period core.Period) (report.Report, error) {
	key := reportKey(userID, period)
	if r, ok := s.reports.Get(key); ok {
		return r, nil
	}
	r, err := s.builder.Build(ctx, userID, period)
	if err != nil {
		return report.Report{}, err
	}
	s.reports.Set(key, r)
	return r, nil
}

// ApplyEdit writes a patch for a record shown in r and returns r
// re-aggregated locally with the stored result, without refetching the
// period. The record must belong to r.
func (s *LedgerService) ApplyEdit(ctx context.Context, r report.Report, id string, p core.Patch) (report.Report, core.Transaction, error) {
	if _, ok := r.Find(id); !ok {
		return r, core.Transaction{}, fmt.Errorf("%w: %s", report.ErrNotInReport, id)
	}
	// Validate against the in-memory copy first so a bad edit never reaches the store.
	if _, err := r.ApplyPatch(id, p); err != nil {
		return r, core.Transaction{}, err
	}
	updated, err := s.UpdateTransaction(ctx, id, p)
	if err != nil {
		return r, core.Transaction{}, err
	}
	next := r.Replace(updated)
	s.reports.Set(reportKey(next.UserID, next.Period), next)
	return next, updated, nil
}

// RemoveFromReport deletes a record and returns r without it.
func (s *LedgerService) RemoveFromReport(ctx context.Context, r report.Report, id string) (report.Report, error) {
	if _, ok := r.Find(id); !ok {
		return r, fmt.Errorf("%w: %s", report.ErrNotInReport, id)
	}
	if err := s.DeleteTransaction(ctx, id); err != nil {
		return r, err
	}
	next := r.Remove(id)
	s.reports.Set(reportKey(next.UserID, next.Period), next)
	return next, nil
}

// Settlement computes the two-party balance of shared expenses in a period
// across every user.
func (s *LedgerService) Settlement(ctx context.Context, period core.Period) (settlement.Summary, error) {
	r, err := s.Report(ctx, ledger.AllUsers, period)
	if err != nil {
		return settlement.Summary{}, err
	}
	return settlement.Summarize(r.Expenses), nil
}

// Export writes a period as CSV. The user column is included when exporting
// every user.
func (s *LedgerService) Export(ctx context.Context, w io.Writer, userID string, period core.Period) error {
	r, err := s.Report(ctx, userID, period)
	if err != nil {
		return err
	}
	opts := export.Options{IncludeUser: userID == "" || userID == ledger.AllUsers}
	if err := export.Write(w, r.Expenses, opts); err != nil {
		return fmt.Errorf("export %s: %w", period, err)
	}
	s.logger(ctx).InfoContext(ctx, "Period exported",
		log.FieldOperation, log.OpExport,
		log.FieldUserID, r.UserID,
		log.FieldPeriod, period.String(),
		log.FieldCount, r.Count())
	return nil
}

// StartImport parses an upload for owner and stages it until commit. Rows
// without a user column belong to owner.
func (s *LedgerService) StartImport(ctx context.Context, owner string, body io.Reader) (ImportPreview, error) {
	raw, err := io.ReadAll(io.LimitReader(body, s.maxUploadBytes+1))
	if err != nil {
		return ImportPreview{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(raw)) > s.maxUploadBytes {
		return ImportPreview{}, ErrUploadTooLarge
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return ImportPreview{}, ErrEmptyUpload
	}

	batch, err := ingest.Parse(ctx, bytes.NewReader(raw), ingest.Options{SessionUser: owner})
	if err != nil {
		return ImportPreview{}, err
	}

	p := &pendingImport{batch: batch}
	if s.archiver != nil {
		uri, err := s.archiver.Archive(ctx, archive.Upload{
			Owner:    batch.Owner,
			BatchID:  batch.ID,
			Received: s.now(),
			Body:     raw,
		})
		if err != nil {
			s.logger(ctx).WarnContext(ctx, "Failed to archive upload",
				log.FieldBatchID, batch.ID,
				log.FieldError, err)
		}
		p.archive = uri
	}

	s.importMu.Lock()
	s.imports.Set(batch.ID, p)
	preview := snapshot(p)
	s.importMu.Unlock()

	s.logger(ctx).InfoContext(ctx, "Import staged",
		log.FieldOperation, log.OpImport,
		log.FieldBatchID, batch.ID,
		log.FieldUserID, batch.Owner,
		log.FieldCount, len(batch.Pending),
		"rejected", batch.Rejected,
		"variant", string(batch.Variant))
	return preview, nil
}

// lookupImport must be called with importMu held.
func (s *LedgerService) lookupImport(owner, id string) (*pendingImport, error) {
	p, ok := s.imports.Get(id)
	if !ok || p.batch.Owner != ingest.NormalizeUser(owner) {
		return nil, fmt.Errorf("%w: %s", ErrImportNotFound, id)
	}
	return p, nil
}

func (s *LedgerService) PendingImport(owner, id string) (ImportPreview, error) {
	s.importMu.Lock()
	defer s.importMu.Unlock()
	p, err := s.lookupImport(owner, id)
	if err != nil {
		return ImportPreview{}, err
	}
	return snapshot(p), nil
}

// EditImport overrides fields of one pending row. Either every value is
// applied or none is.
func (s *LedgerService) EditImport(owner, id string, index int, values map[ingest.Field]string) (ImportPreview, error) {
	s.importMu.Lock()
	defer s.importMu.Unlock()
	p, err := s.lookupImport(owner, id)
	if err != nil {
		return ImportPreview{}, err
	}
	if err := p.batch.EditFields(index, values); err != nil {
		return snapshot(p), err
	}
	return snapshot(p), nil
}

func (s *LedgerService) RemoveImportRow(owner, id string, index int) (ImportPreview, error) {
	s.importMu.Lock()
	defer s.importMu.Unlock()
	p, err := s.lookupImport(owner, id)
	if err != nil {
		return ImportPreview{}, err
	}
	if err := p.batch.Remove(index); err != nil {
		return snapshot(p), err
	}
	return snapshot(p), nil
}

// CancelImport discards a staged import. It reports whether one existed.
func (s *LedgerService) CancelImport(owner, id string) bool {
	s.importMu.Lock()
	defer s.importMu.Unlock()
	if _, err := s.lookupImport(owner, id); err != nil {
		return false
	}
	return s.imports.Delete(id)
}

// CommitImport writes every pending row atomically. On failure the batch
// stays staged so the user can fix it and retry.
func (s *LedgerService) CommitImport(ctx context.Context, owner, id string) ([]core.Transaction, error) {
	s.importMu.Lock()
	p, err := s.lookupImport(owner, id)
	if err == nil {
		s.imports.Delete(id)
	}
	s.importMu.Unlock()
	if err != nil {
		return nil, err
	}

	saved, err := p.batch.Commit(ctx, s.store)
	if err != nil {
		s.importMu.Lock()
		s.imports.Set(id, p)
		s.importMu.Unlock()
		return nil, err
	}

	months := make([]string, 0, 1)
	seen := map[string]bool{}
	for _, t := range saved {
		if m := t.Month(); !seen[m] {
			seen[m] = true
			months = append(months, m)
		}
	}
	s.invalidate(months...)

	s.logger(ctx).InfoContext(ctx, "Import committed",
		log.FieldOperation, log.OpImport,
		log.FieldBatchID, id,
		log.FieldUserID, p.batch.Owner,
		log.FieldCount, len(saved))
	return saved, nil
}

func snapshot(p *pendingImport) ImportPreview {
	b := p.batch
	preview := ImportPreview{
		ID:       b.ID,
		Variant:  b.Variant,
		Owner:    b.Owner,
		Rows:     b.Preview(0),
		Count:    len(b.Pending),
		Total:    b.Total(),
		Rejected: b.Rejected,
		Archive:  p.archive,
	}
	for _, e := range b.Errors {
		preview.Errors = append(preview.Errors, e.Error())
	}
	return preview
}
