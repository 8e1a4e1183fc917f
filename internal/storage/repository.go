// Package storage is the SQL implementation of the ledger and user stores,
// backed by sqlite (modernc) or postgres (lib/pq).
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"gastos/internal/auth"
	"gastos/internal/core"
	"gastos/internal/ledger"
	"gastos/internal/log"
)

// Dialect selects the SQL driver and migration set.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

var ErrUnknownDialect = errors.New("unknown sql dialect")

// driverName is the database/sql driver registered by the blank imports.
func (d Dialect) driverName() string { return string(d) }

// timeLayout is fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const txColumns = "id, user_id, date, amount, category, description, shared, created_at"

type Repository struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

var (
	_ ledger.Store   = (*Repository)(nil)
	_ auth.UserStore = (*Repository)(nil)
)

// Open connects, migrates and returns a ready repository. For sqlite dsn is a
// file path whose directory is created if needed.
func Open(ctx context.Context, dialect Dialect, dsn string) (*Repository, error) {
	switch dialect {
	case DialectSQLite:
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	case DialectPostgres:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDialect, dialect)
	}

	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dialect, dsn); err != nil {
		db.Close()
		return nil, err
	}

	log.FromContext(ctx).WithComponent(log.ComponentStorage).InfoContext(ctx, "Database ready", "dialect", string(dialect))
	return &Repository{db: db, dialect: dialect, now: time.Now}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// rebind rewrites ? placeholders as $1, $2, ... for postgres.
func (r *Repository) rebind(query string) string {
	if r.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *Repository) insert(ctx context.Context, ex execer, t core.Transaction) error {
	_, err := ex.ExecContext(ctx, r.rebind(`INSERT INTO transactions (`+txColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		t.ID, t.UserID, t.Date.String(), t.Amount, t.Category, t.Description, t.Shared, t.CreatedAt.UTC().Format(timeLayout))
	return err
}

func (r *Repository) stamp(t core.Transaction) core.Transaction {
	t.ID = uuid.NewString()
	t.CreatedAt = r.now().UTC()
	return t
}

func scanTransaction(s rowScanner) (core.Transaction, error) {
	var (
		t               core.Transaction
		date, createdAt string
	)
	if err := s.Scan(&t.ID, &t.UserID, &date, &t.Amount, &t.Category, &t.Description, &t.Shared, &createdAt); err != nil {
		return core.Transaction{}, err
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", t.ID, err)
	}
	t.Date = d
	if t.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %s created_at: %w", t.ID, err)
	}
	return t, nil
}

func (r *Repository) Create(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	t = r.stamp(t)
	if err := r.insert(ctx, r.db, t); err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	log.FromContext(ctx).WithComponent(log.ComponentStorage).InfoContext(ctx, "Transaction saved",
		log.FieldTransactionID, t.ID,
		log.FieldUserID, t.UserID,
		log.FieldCategory, t.Category,
		log.FieldAmount, t.Amount.String())
	return t, nil
}

// CreateBatch inserts every record in one database transaction.
func (r *Repository) CreateBatch(ctx context.Context, txns []core.Transaction) ([]core.Transaction, error) {
	if len(txns) == 0 {
		return nil, ledger.ErrEmptyBatch
	}
	for i, t := range txns {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback()

	out := make([]core.Transaction, len(txns))
	for i, t := range txns {
		out[i] = r.stamp(t)
		if err := r.insert(ctx, tx, out[i]); err != nil {
			return nil, fmt.Errorf("insert record %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit batch: %w", err)
	}

	log.FromContext(ctx).WithComponent(log.ComponentStorage).InfoContext(ctx, "Transaction batch saved", log.FieldCount, len(out))
	return out, nil
}

func (r *Repository) List(ctx context.Context, f ledger.Filter) ([]core.Transaction, error) {
	var (
		where []string
		args  []any
	)
	if f.UserID != "" && f.UserID != ledger.AllUsers {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if !f.Period.IsZero() {
		start, end := f.Period.Bounds()
		where = append(where, "date >= ?", "date < ?")
		args = append(args, start.String(), end.String())
	}

	query := `SELECT ` + txColumns + ` FROM transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date DESC, created_at DESC, id DESC"

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := []core.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repository) Get(ctx context.Context, id string) (core.Transaction, error) {
	return r.get(ctx, r.db, id, false)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *Repository) get(ctx context.Context, q querier, id string, lock bool) (core.Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM transactions WHERE id = ?`
	if lock && r.dialect == DialectPostgres {
		query += " FOR UPDATE"
	}
	t, err := scanTransaction(q.QueryRowContext(ctx, r.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, ledger.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return t, nil
}

// Update reads, patches, validates and writes back inside one transaction.
func (r *Repository) Update(ctx context.Context, id string, p core.Patch) (core.Transaction, error) {
	if err := p.Validate(); err != nil {
		return core.Transaction{}, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	current, err := r.get(ctx, tx, id, true)
	if err != nil {
		return core.Transaction{}, err
	}
	updated := p.Apply(current)
	if err := updated.Validate(); err != nil {
		return core.Transaction{}, err
	}

	_, err = tx.ExecContext(ctx, r.rebind(`UPDATE transactions SET date = ?, amount = ?, category = ?, description = ?, shared = ? WHERE id = ?`),
		updated.Date.String(), updated.Amount, updated.Category, updated.Description, updated.Shared, id)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return core.Transaction{}, fmt.Errorf("commit update: %w", err)
	}

	log.FromContext(ctx).WithComponent(log.ComponentStorage).InfoContext(ctx, "Transaction updated",
		log.FieldTransactionID, id, "fields", strings.Join(p.Fields(), ","))
	return updated, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM transactions WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	if n == 0 {
		return ledger.ErrNotFound
	}
	log.FromContext(ctx).WithComponent(log.ComponentStorage).InfoContext(ctx, "Transaction deleted", log.FieldTransactionID, id)
	return nil
}
