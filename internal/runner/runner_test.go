package runner

import (
	"context"
	"errors"
	"sync"
	"testing"

	"mezzetl/internal/csvmap"
	"mezzetl/internal/diag"
	"mezzetl/internal/metrics"
	"mezzetl/internal/storage"
	"mezzetl/internal/weekly"
)

type fakeSource struct {
	tabs []string
	rows map[string][][]string
	errs map[string]error
}

func (f *fakeSource) Tabs(ctx context.Context) ([]string, error) {
	return f.tabs, nil
}

func (f *fakeSource) Rows(ctx context.Context, tab string) ([][]string, error) {
	if err := f.errs[tab]; err != nil {
		return nil, err
	}
	return f.rows[tab], nil
}

func orderGrid(customer, qty string) [][]string {
	return [][]string{
		{"01/12/26 - 01/16/26", "", "HUMMUS", ""},
		{"", "", "CASE", "EACH"},
		{"Monday"},
		{customer, "", qty, ""},
	}
}

type counterKey struct {
	name   string
	status string
}

// fakeMetrics records counter increments; concurrency-safe because tab
// parsing emits from worker goroutines.
type fakeMetrics struct {
	mu       sync.Mutex
	counters map[counterKey]float64
	observed int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{counters: make(map[counterKey]float64)}
}

func (f *fakeMetrics) IncCounter(name string, delta float64, labels metrics.Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := counterKey{
		name:   name,
		status: labels["status"] + labels["kind"] + labels["type"] + labels["product"] + labels["unit"],
	}
	f.counters[key] += delta
}

func (f *fakeMetrics) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observed++
}

func (f *fakeMetrics) Flush() error { return nil }
func (f *fakeMetrics) Close() error { return nil }

func (f *fakeMetrics) counter(name, label string) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counters[counterKey{name: name, status: label}]
}

type fakeRepo struct {
	schemaEnsured bool
	runID         string
	lines         []weekly.OrderLine
	insertErr     error
}

func (f *fakeRepo) Close()                                 {}
func (f *fakeRepo) EnsureSchema(ctx context.Context) error { f.schemaEnsured = true; return nil }

func (f *fakeRepo) InsertOrderLines(ctx context.Context, runID string, lines []weekly.OrderLine) (int64, error) {
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	f.runID = runID
	f.lines = lines
	return int64(len(lines)), nil
}

func (f *fakeRepo) InsertRecords(ctx context.Context, runID, mapping string, records []csvmap.Record) (int64, error) {
	return 0, nil
}

func TestRunMergesInTabOrder(t *testing.T) {
	src := &fakeSource{
		tabs: []string{"tab-a", "tab-b", "tab-c"},
		rows: map[string][][]string{
			"tab-a": orderGrid("Crown", "5"),
			"tab-b": orderGrid("PSFH", "7"),
			"tab-c": orderGrid("Crown", "2"),
		},
	}

	r := &Runner{Workers: 2}
	rep, err := r.Run(context.Background(), src, Options{RunID: "run-1"})
	if err != nil {
		t.Fatal(err)
	}

	if rep.RunID != "run-1" {
		t.Errorf("run id = %q", rep.RunID)
	}
	lines := rep.Result.Lines
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3", len(lines))
	}
	// Output order follows tab order, not completion order.
	for i, want := range []string{"tab-a", "tab-b", "tab-c"} {
		if lines[i].SourceTab != want {
			t.Errorf("lines[%d].SourceTab = %q, want %q", i, lines[i].SourceTab, want)
		}
	}

	s := rep.Result.Stats
	if s.TabsProcessed != 3 || s.RecordsCreated != 3 {
		t.Errorf("stats = %+v", s)
	}
	if s.UniqueCustomers != 2 || s.UniqueProducts != 1 {
		t.Errorf("unique counts = %+v", s)
	}
}

func TestRunGeneratesRunID(t *testing.T) {
	src := &fakeSource{tabs: []string{"t"}, rows: map[string][][]string{"t": nil}}
	rep, err := (&Runner{}).Run(context.Background(), src, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if rep.RunID == "" {
		t.Fatal("expected a generated run id")
	}
}

func TestRunIsolatesTabErrors(t *testing.T) {
	src := &fakeSource{
		tabs: []string{"good", "bad"},
		rows: map[string][][]string{"good": orderGrid("Crown", "5")},
		errs: map[string]error{"bad": errors.New("quota exceeded")},
	}

	m := newFakeMetrics()
	r := &Runner{Metrics: m}
	rep, err := r.Run(context.Background(), src, Options{RunID: "run-1"})
	if err != nil {
		t.Fatal(err)
	}

	if len(rep.Result.Lines) != 1 {
		t.Fatalf("lines = %+v", rep.Result.Lines)
	}
	if len(rep.Result.Errors) != 1 {
		t.Fatalf("errors = %+v", rep.Result.Errors)
	}
	e := rep.Result.Errors[0]
	if e.Kind != diag.KindTabParseError || e.Tab != "bad" {
		t.Errorf("entry = %+v", e)
	}
	// The failed tab still counts as attempted.
	if rep.Result.Stats.TabsProcessed != 2 || rep.Result.Stats.ErrorsCount != 1 {
		t.Errorf("stats = %+v", rep.Result.Stats)
	}

	if got := m.counter(metrics.TabsTotal, "ok"); got != 1 {
		t.Errorf("tabs ok = %v", got)
	}
	if got := m.counter(metrics.TabsTotal, "error"); got != 1 {
		t.Errorf("tabs error = %v", got)
	}
	if m.observed != 2 {
		t.Errorf("duration observations = %d, want 2", m.observed)
	}
}

func TestRunEmitsRowAndLineCounters(t *testing.T) {
	src := &fakeSource{
		tabs: []string{"t"},
		rows: map[string][][]string{"t": orderGrid("Crown", "5")},
	}

	m := newFakeMetrics()
	_, err := (&Runner{Metrics: m}).Run(context.Background(), src, Options{RunID: "r"})
	if err != nil {
		t.Fatal(err)
	}

	if got := m.counter(metrics.RowsTotal, "processed"); got != 1 {
		t.Errorf("rows processed = %v", got)
	}
	if got := m.counter(metrics.LinesTotal, "HUMMUSCASE"); got != 1 {
		t.Errorf("line counter = %v", got)
	}
}

func TestRunPersistsThroughRepositorySeam(t *testing.T) {
	src := &fakeSource{
		tabs: []string{"t"},
		rows: map[string][][]string{"t": orderGrid("Crown", "5")},
	}

	repo := &fakeRepo{}
	var gotCfg storage.Config
	r := &Runner{
		NewRepository: func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
			gotCfg = cfg
			return repo, nil
		},
	}

	rep, err := r.Run(context.Background(), src, Options{
		RunID:   "run-1",
		Storage: &storage.Config{Kind: "sqlite", DSN: "orders.db"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if gotCfg.Kind != "sqlite" || gotCfg.DSN != "orders.db" {
		t.Errorf("config = %+v", gotCfg)
	}
	if !repo.schemaEnsured {
		t.Error("schema was not ensured before insert")
	}
	if repo.runID != "run-1" || len(repo.lines) != 1 {
		t.Errorf("insert = run %q, %d lines", repo.runID, len(repo.lines))
	}
	if rep.LinesStored != 1 {
		t.Errorf("stored = %d", rep.LinesStored)
	}
}

func TestRunPersistFailureIsFatal(t *testing.T) {
	src := &fakeSource{
		tabs: []string{"t"},
		rows: map[string][][]string{"t": orderGrid("Crown", "5")},
	}

	r := &Runner{
		NewRepository: func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
			return &fakeRepo{insertErr: errors.New("disk full")}, nil
		},
	}
	_, err := r.Run(context.Background(), src, Options{Storage: &storage.Config{Kind: "sqlite"}})
	if err == nil {
		t.Fatal("expected persistence error")
	}
}

func TestRunWithoutStorageSkipsPersistence(t *testing.T) {
	src := &fakeSource{
		tabs: []string{"t"},
		rows: map[string][][]string{"t": orderGrid("Crown", "5")},
	}

	called := false
	r := &Runner{
		NewRepository: func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
			called = true
			return &fakeRepo{}, nil
		},
	}
	rep, err := r.Run(context.Background(), src, Options{RunID: "run-1"})
	if err != nil {
		t.Fatal(err)
	}
	if called {
		t.Error("repository factory called without storage config")
	}
	if rep.LinesStored != 0 {
		t.Errorf("stored = %d", rep.LinesStored)
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &fakeSource{tabs: []string{"a", "b"}, rows: map[string][][]string{}}
	_, err := (&Runner{}).Run(ctx, src, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
