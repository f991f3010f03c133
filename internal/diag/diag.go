// Package diag provides the shared warnings/errors/stats accumulator used by
// both extraction modes.
//
// The distinction between a warning and an error is fixed across the engine:
//   - warning: anomaly noted, processing continued, output still includable
//   - error:   the affected unit (row, tab, or whole source) was excluded
//
// Nothing in this package is concurrency-safe. Each parse invocation owns its
// own Collector; parallel invocations must not share one.
package diag

// Entry kinds used across the engine. Callers may introduce additional kinds,
// but these are the ones tests and downstream consumers match on.
const (
	KindFileNotFound          = "file_not_found"
	KindMissingRequiredColumn = "missing_required_column"
	KindMissingRequiredValue  = "missing_required_value"
	KindUnknownTransform      = "unknown_transform"
	KindUnparseableQuantity   = "unparseable_quantity"
	KindTabParseError         = "tab_parse_error"
	KindBadMapping            = "bad_mapping"
)

// Entry is a single structured diagnostic. Location and context fields are
// populated as far as the producing stage knows them; unset numeric fields are
// zero and unset strings are empty.
type Entry struct {
	Kind string `json:"type"`

	// Location.
	Row  int    `json:"row,omitempty"`
	Cell string `json:"cell,omitempty"` // A1-style coordinate, weekly parser only
	Tab  string `json:"tab,omitempty"`

	// Context sufficient to fix the source data without re-running the parse.
	Column    string `json:"column,omitempty"`
	Target    string `json:"target,omitempty"`
	Value     string `json:"value,omitempty"`
	Customer  string `json:"customer,omitempty"`
	Product   string `json:"product,omitempty"`
	Transform string `json:"transform,omitempty"`
	Message   string `json:"message,omitempty"`

	// Available lists candidate column names for missing_required_column.
	Available []string `json:"available,omitempty"`
}

// Stats aggregates counters for one parse invocation.
type Stats struct {
	RowsProcessed  int `json:"rows_processed"`
	RowsSkipped    int `json:"rows_skipped"`
	RecordsCreated int `json:"records_created"`
	WarningsCount  int `json:"warnings_count"`
	ErrorsCount    int `json:"errors_count"`
}

// Collector accumulates diagnostics for one parse invocation.
//
// The zero value is ready to use.
type Collector struct {
	warnings []Entry
	errors   []Entry
}

// Warn records a non-blocking anomaly.
func (c *Collector) Warn(e Entry) { c.warnings = append(c.warnings, e) }

// Error records an anomaly that excluded a unit of output.
func (c *Collector) Error(e Entry) { c.errors = append(c.errors, e) }

// Warnings returns the accumulated warnings in append order.
// The returned slice is never nil so results serialize as [] rather than null.
func (c *Collector) Warnings() []Entry {
	if c.warnings == nil {
		return []Entry{}
	}
	return c.warnings
}

// Errors returns the accumulated errors in append order.
func (c *Collector) Errors() []Entry {
	if c.errors == nil {
		return []Entry{}
	}
	return c.errors
}

// HasErrors reports whether any error entry has been recorded.
func (c *Collector) HasErrors() bool { return len(c.errors) > 0 }

// Merge appends another collector's entries, preserving each side's order.
// Used when per-tab results are concatenated into a whole-source result.
func (c *Collector) Merge(other *Collector) {
	if other == nil {
		return
	}
	c.warnings = append(c.warnings, other.warnings...)
	c.errors = append(c.errors, other.errors...)
}

// Counts fills the warning/error counters of a Stats from the collector.
func (c *Collector) Counts(s *Stats) {
	s.WarningsCount = len(c.warnings)
	s.ErrorsCount = len(c.errors)
}
