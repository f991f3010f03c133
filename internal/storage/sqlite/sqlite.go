// Package sqlite is the SQLite storage backend, handy for local runs and
// tests. Timestamps are stored as RFC3339Nano TEXT because modernc.org/sqlite
// gives dates TEXT affinity anyway; storing a fixed format keeps round-trips
// predictable.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"mezzetl/internal/csvmap"
	"mezzetl/internal/storage"
	"mezzetl/internal/weekly"
)

func init() {
	storage.Register("sqlite", New)
}

type Repo struct {
	db *sql.DB
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

const createOrderLinesSQL = `
CREATE TABLE IF NOT EXISTS order_lines (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  source_tab TEXT NOT NULL,
  source_row INTEGER NOT NULL,
  product TEXT NOT NULL,
  unit_type TEXT NOT NULL,
  run_id TEXT NOT NULL,
  week_start TEXT,
  week_end TEXT,
  day_of_week TEXT NOT NULL,
  customer TEXT NOT NULL,
  customer_raw TEXT NOT NULL,
  po_hint TEXT NOT NULL DEFAULT '',
  quantity REAL NOT NULL,
  raw_value TEXT NOT NULL,
  loaded_at TEXT NOT NULL,
  UNIQUE (source_tab, source_row, product, unit_type)
);`

const createRecordsSQL = `
CREATE TABLE IF NOT EXISTS mapped_records (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  run_id TEXT NOT NULL,
  mapping TEXT NOT NULL,
  source_row INTEGER NOT NULL,
  fields TEXT NOT NULL,
  loaded_at TEXT NOT NULL
);`

func (r *Repo) EnsureSchema(ctx context.Context) error {
	for _, ddl := range []string{createOrderLinesSQL, createRecordsSQL} {
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("sqlite ensure schema: %w", err)
		}
	}
	return nil
}

// InsertOrderLines uses INSERT OR IGNORE, which relies on the natural-key
// UNIQUE constraint created by EnsureSchema.
func (r *Repo) InsertOrderLines(ctx context.Context, runID string, lines []weekly.OrderLine) (int64, error) {
	if len(lines) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	cols := storage.OrderLineColumns
	args := make([]any, 0, len(lines)*len(cols))
	for _, line := range lines {
		args = append(args, textTimes(storage.OrderLineValues(runID, line, now))...)
	}

	q := fmt.Sprintf(
		`INSERT OR IGNORE INTO order_lines (%s) VALUES %s`,
		strings.Join(cols, ", "),
		valuesClause(len(lines), len(cols)),
	)

	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("sqlite insert order lines: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *Repo) InsertRecords(ctx context.Context, runID, mapping string, records []csvmap.Record) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	cols := storage.RecordColumns
	args := make([]any, 0, len(records)*len(cols))
	for _, rec := range records {
		vals, err := storage.RecordValues(runID, mapping, rec, now)
		if err != nil {
			return 0, err
		}
		args = append(args, textTimes(vals)...)
	}

	q := fmt.Sprintf(
		`INSERT INTO mapped_records (%s) VALUES %s`,
		strings.Join(cols, ", "),
		valuesClause(len(records), len(cols)),
	)

	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("sqlite insert records: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// textTimes rewrites time.Time args as RFC3339Nano strings in place.
func textTimes(vals []any) []any {
	for i, v := range vals {
		if t, ok := v.(time.Time); ok {
			vals[i] = t.UTC().Format(time.RFC3339Nano)
		}
	}
	return vals
}

func valuesClause(nRows, nCols int) string {
	row := "(" + strings.TrimRight(strings.Repeat("?,", nCols), ",") + ")"
	parts := make([]string, nRows)
	for i := range parts {
		parts[i] = row
	}
	return strings.Join(parts, ", ")
}
