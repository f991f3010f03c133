// Package postgres is the Postgres storage backend, built on pgx pools.
// Idempotency uses ON CONFLICT DO NOTHING against the order-line natural key.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"mezzetl/internal/csvmap"
	"mezzetl/internal/storage"
	"mezzetl/internal/weekly"
)

func init() {
	storage.Register("postgres", New)
}

type Repo struct {
	pool *pgxpool.Pool
}

// New connects a pool and verifies connectivity.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

func (r *Repo) Close() { r.pool.Close() }

const createOrderLinesSQL = `
CREATE TABLE IF NOT EXISTS order_lines (
  id BIGSERIAL PRIMARY KEY,
  source_tab TEXT NOT NULL,
  source_row INTEGER NOT NULL,
  product TEXT NOT NULL,
  unit_type TEXT NOT NULL,
  run_id TEXT NOT NULL,
  week_start DATE,
  week_end DATE,
  day_of_week TEXT NOT NULL,
  customer TEXT NOT NULL,
  customer_raw TEXT NOT NULL,
  po_hint TEXT NOT NULL DEFAULT '',
  quantity DOUBLE PRECISION NOT NULL,
  raw_value TEXT NOT NULL,
  loaded_at TIMESTAMPTZ NOT NULL,
  UNIQUE (source_tab, source_row, product, unit_type)
);`

const createRecordsSQL = `
CREATE TABLE IF NOT EXISTS mapped_records (
  id BIGSERIAL PRIMARY KEY,
  run_id TEXT NOT NULL,
  mapping TEXT NOT NULL,
  source_row INTEGER NOT NULL,
  fields JSONB NOT NULL,
  loaded_at TIMESTAMPTZ NOT NULL
);`

func (r *Repo) EnsureSchema(ctx context.Context) error {
	for _, ddl := range []string{createOrderLinesSQL, createRecordsSQL} {
		if _, err := r.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("postgres ensure schema: %w", err)
		}
	}
	return nil
}

func (r *Repo) InsertOrderLines(ctx context.Context, runID string, lines []weekly.OrderLine) (int64, error) {
	if len(lines) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	cols := storage.OrderLineColumns
	args := make([]any, 0, len(lines)*len(cols))
	for _, line := range lines {
		args = append(args, storage.OrderLineValues(runID, line, now)...)
	}

	tag, err := r.pool.Exec(ctx, insertOrderLinesSQL(len(lines)), args...)
	if err != nil {
		return 0, fmt.Errorf("postgres insert order lines: %w", err)
	}
	return tag.RowsAffected(), nil
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
		args = append(args, vals...)
	}

	tag, err := r.pool.Exec(ctx, insertRecordsSQL(len(records)), args...)
	if err != nil {
		return 0, fmt.Errorf("postgres insert records: %w", err)
	}
	return tag.RowsAffected(), nil
}

// insertOrderLinesSQL builds the multi-row upsert for nRows order lines.
// The conflict target is the natural key, so re-ingesting a workbook is a no-op.
func insertOrderLinesSQL(nRows int) string {
	cols := storage.OrderLineColumns
	return fmt.Sprintf(
		`INSERT INTO order_lines (%s) VALUES %s ON CONFLICT (%s) DO NOTHING`,
		strings.Join(cols, ", "),
		valuesClause(nRows, len(cols)),
		strings.Join(storage.OrderLineKeyColumns, ", "),
	)
}

// insertRecordsSQL builds the multi-row append for nRows mapped records.
func insertRecordsSQL(nRows int) string {
	cols := storage.RecordColumns
	return fmt.Sprintf(
		`INSERT INTO mapped_records (%s) VALUES %s`,
		strings.Join(cols, ", "),
		valuesClause(nRows, len(cols)),
	)
}

// valuesClause builds "($1,$2,...),($n+1,...)" for nRows rows of nCols columns.
func valuesClause(nRows, nCols int) string {
	var b strings.Builder
	p := 1
	for i := 0; i < nRows; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := 0; j < nCols; j++ {
			if j > 0 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, "$%d", p)
			p++
		}
		b.WriteString(")")
	}
	return b.String()
}
