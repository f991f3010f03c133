package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"mezzetl/internal/csvmap"
	"mezzetl/internal/weekly"
)

// OrderLineColumns is the destination column order shared by every backend.
// The first four columns form the natural key used for dedupe.
var OrderLineColumns = []string{
	"source_tab",
	"source_row",
	"product",
	"unit_type",
	"run_id",
	"week_start",
	"week_end",
	"day_of_week",
	"customer",
	"customer_raw",
	"po_hint",
	"quantity",
	"raw_value",
	"loaded_at",
}

// OrderLineKeyColumns is the natural-key prefix of OrderLineColumns.
var OrderLineKeyColumns = OrderLineColumns[:4]

// OrderLineValues flattens one order line in OrderLineColumns order.
// Zero dates are stored as NULL.
func OrderLineValues(runID string, line weekly.OrderLine, loadedAt time.Time) []any {
	return []any{
		line.SourceTab,
		line.SourceRow,
		line.Product,
		string(line.UnitType),
		runID,
		nullableDate(line.WeekStart),
		nullableDate(line.WeekEnd),
		line.DayOfWeek,
		line.Customer,
		line.CustomerRaw,
		line.POHint,
		line.Quantity,
		line.RawValue,
		loadedAt.UTC(),
	}
}

func nullableDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

// RecordColumns is the destination column order for mapped records.
var RecordColumns = []string{
	"run_id",
	"mapping",
	"source_row",
	"fields",
	"loaded_at",
}

// RecordValues flattens one mapped record. Fields are serialized as JSON so
// arbitrary mapping shapes land in one table.
func RecordValues(runID, mapping string, rec csvmap.Record, loadedAt time.Time) ([]any, error) {
	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return nil, fmt.Errorf("marshal record fields (row %d): %w", rec.SourceRow, err)
	}
	return []any{runID, mapping, rec.SourceRow, string(fields), loadedAt.UTC()}, nil
}
