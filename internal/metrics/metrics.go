// Package metrics is the thin seam between the extraction engine and any
// metrics vendor. Engine code depends only on Backend; vendor backends live
// in subpackages.
package metrics

// Labels are free-form metric dimensions (e.g. {"tab": "Weekly Order 3/4"}).
type Labels map[string]string

// Backend receives metric observations. Implementations must be safe for
// concurrent use; the engine calls them from per-tab workers.
type Backend interface {
	// IncCounter adds delta to a named counter. Non-positive deltas are ignored.
	IncCounter(name string, delta float64, labels Labels)

	// ObserveHistogram records one sample of a named distribution.
	ObserveHistogram(name string, value float64, labels Labels)

	// Flush pushes buffered observations to the vendor. Optional for
	// backends that submit synchronously.
	Flush() error

	// Close flushes once more and releases resources. Call once at shutdown.
	Close() error
}

// Metric names used by the engine. Backends may ignore names they do not know.
const (
	TabsTotal          = "extract_tabs_total"           // labels: status=ok|error
	LinesTotal         = "extract_lines_total"          // labels: product, unit
	RowsTotal          = "extract_rows_total"           // labels: kind=processed|skipped
	WarningsTotal      = "extract_warnings_total"       // labels: type
	TabDurationSeconds = "extract_tab_duration_seconds" // labels: status=ok|error
)

// Nop discards everything. Used when no metrics backend is configured so
// callers never nil-check.
type Nop struct{}

func (Nop) IncCounter(string, float64, Labels)       {}
func (Nop) ObserveHistogram(string, float64, Labels) {}
func (Nop) Flush() error                             { return nil }
func (Nop) Close() error                             { return nil }

var _ Backend = Nop{}
