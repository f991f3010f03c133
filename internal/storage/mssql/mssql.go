// Package mssql is the SQL Server storage backend. SQL Server has no
// ON CONFLICT, so order-line idempotency is a per-row NOT EXISTS guard
// inside a single transaction.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/microsoft/go-mssqldb"

	"mezzetl/internal/csvmap"
	"mezzetl/internal/storage"
	"mezzetl/internal/weekly"
)

func init() {
	storage.Register("mssql", New)
}

type Repo struct {
	db *sql.DB
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}

	// Bursty batch loads; keep a generous pool.
	db.SetMaxOpenConns(64)
	db.SetMaxIdleConns(64)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

const createOrderLinesSQL = `
IF OBJECT_ID('order_lines', 'U') IS NULL
CREATE TABLE order_lines (
  id BIGINT IDENTITY PRIMARY KEY,
  source_tab NVARCHAR(255) NOT NULL,
  source_row INT NOT NULL,
  product NVARCHAR(255) NOT NULL,
  unit_type NVARCHAR(16) NOT NULL,
  run_id NVARCHAR(64) NOT NULL,
  week_start DATE NULL,
  week_end DATE NULL,
  day_of_week NVARCHAR(16) NOT NULL,
  customer NVARCHAR(255) NOT NULL,
  customer_raw NVARCHAR(255) NOT NULL,
  po_hint NVARCHAR(255) NOT NULL DEFAULT '',
  quantity FLOAT NOT NULL,
  raw_value NVARCHAR(255) NOT NULL,
  loaded_at DATETIMEOFFSET NOT NULL,
  CONSTRAINT uq_order_lines_natural UNIQUE (source_tab, source_row, product, unit_type)
);`

const createRecordsSQL = `
IF OBJECT_ID('mapped_records', 'U') IS NULL
CREATE TABLE mapped_records (
  id BIGINT IDENTITY PRIMARY KEY,
  run_id NVARCHAR(64) NOT NULL,
  mapping NVARCHAR(255) NOT NULL,
  source_row INT NOT NULL,
  fields NVARCHAR(MAX) NOT NULL,
  loaded_at DATETIMEOFFSET NOT NULL
);`

func (r *Repo) EnsureSchema(ctx context.Context) error {
	for _, ddl := range []string{createOrderLinesSQL, createRecordsSQL} {
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("mssql ensure schema: %w", err)
		}
	}
	return nil
}

func (r *Repo) InsertOrderLines(ctx context.Context, runID string, lines []weekly.OrderLine) (int64, error) {
	if len(lines) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	q := insertOrderLineSQL()
	now := time.Now().UTC()
	var inserted int64
	for _, line := range lines {
		res, err := tx.ExecContext(ctx, q, storage.OrderLineValues(runID, line, now)...)
		if err != nil {
			return inserted, fmt.Errorf("mssql insert order line (tab %s row %d): %w", line.SourceTab, line.SourceRow, err)
		}
		n, _ := res.RowsAffected()
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return inserted, err
	}
	return inserted, nil
}

func (r *Repo) InsertRecords(ctx context.Context, runID, mapping string, records []csvmap.Record) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	q := insertRecordSQL()
	now := time.Now().UTC()
	var inserted int64
	for _, rec := range records {
		vals, err := storage.RecordValues(runID, mapping, rec, now)
		if err != nil {
			return inserted, err
		}
		res, err := tx.ExecContext(ctx, q, vals...)
		if err != nil {
			return inserted, fmt.Errorf("mssql insert record (row %d): %w", rec.SourceRow, err)
		}
		n, _ := res.RowsAffected()
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return inserted, err
	}
	return inserted, nil
}

// insertOrderLineSQL builds the per-row guarded insert. The guard predicates
// reference @p1..@p4, which are the natural-key columns by OrderLineColumns
// order.
func insertOrderLineSQL() string {
	cols := storage.OrderLineColumns
	return fmt.Sprintf(
		`INSERT INTO order_lines (%s)
SELECT %s
WHERE NOT EXISTS (
  SELECT 1 FROM order_lines
  WHERE source_tab = @p1 AND source_row = @p2 AND product = @p3 AND unit_type = @p4
)`,
		strings.Join(cols, ", "),
		placeholderList(len(cols)),
	)
}

// insertRecordSQL builds the per-row mapped-record append.
func insertRecordSQL() string {
	cols := storage.RecordColumns
	return fmt.Sprintf(
		`INSERT INTO mapped_records (%s) VALUES (%s)`,
		strings.Join(cols, ", "),
		placeholderList(len(cols)),
	)
}

// placeholderList builds "@p1, @p2, ..." for n parameters.
func placeholderList(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("@p%d", i+1)
	}
	return strings.Join(parts, ", ")
}
