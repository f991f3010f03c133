// Package runner orchestrates a full extraction run: concurrent per-tab
// parsing, metrics emission, and optional persistence. It owns everything
// the parser deliberately does not: worker pools, run identity, sinks.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"mezzetl/internal/diag"
	"mezzetl/internal/metrics"
	"mezzetl/internal/storage"
	"mezzetl/internal/weekly"
)

// Logger is the minimal logging interface used by the runner.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Runner runs extractions. Zero value works; all fields are optional seams.
type Runner struct {
	Parser  *weekly.Parser
	Metrics metrics.Backend
	Logger  Logger

	// Workers bounds concurrent tab parsing. Defaults to 4.
	Workers int

	// NewRepository is the storage factory seam, defaulting to storage.New.
	// Tests swap it for a fake.
	NewRepository func(ctx context.Context, cfg storage.Config) (storage.Repository, error)
}

// Report is the outcome of one run.
type Report struct {
	RunID  string
	Result weekly.Result

	// LinesStored is the number of rows the sink accepted; zero when no
	// storage was configured or every line was a duplicate.
	LinesStored int64
}

// Options configures a single run.
type Options struct {
	// RunID tags persisted rows and log lines. Defaults to a random UUID.
	RunID string

	// Storage, when non-nil, persists extracted lines after parsing.
	Storage *storage.Config
}

func (r *Runner) logf(format string, v ...any) {
	if r.Logger == nil {
		return
	}
	r.Logger.Printf(format, v...)
}

func (r *Runner) metric() metrics.Backend {
	if r.Metrics == nil {
		return metrics.Nop{}
	}
	return r.Metrics
}

func (r *Runner) parser() *weekly.Parser {
	if r.Parser == nil {
		return &weekly.Parser{Logger: r.Logger}
	}
	return r.Parser
}

// Run fetches every tab from the source, parses them concurrently, and merges
// results in tab order so output is deterministic regardless of scheduling.
// Per-tab failures become tab-scoped error entries, not run failures.
func (r *Runner) Run(ctx context.Context, src weekly.GridSource, opts Options) (Report, error) {
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	rep := Report{RunID: runID}

	tabs, err := src.Tabs(ctx)
	if err != nil {
		return rep, fmt.Errorf("list tabs: %w", err)
	}
	r.logf("stage=run_start run_id=%s tabs=%d", runID, len(tabs))

	tabResults, tabErrs := r.parseTabs(ctx, src, tabs)
	if err := ctx.Err(); err != nil {
		return rep, err
	}

	rep.Result = merge(tabs, tabResults, tabErrs)
	r.emitRunMetrics(tabs, tabResults, tabErrs)

	if opts.Storage != nil {
		stored, err := r.persist(ctx, runID, *opts.Storage, rep.Result.Lines)
		if err != nil {
			return rep, err
		}
		rep.LinesStored = stored
	}

	s := rep.Result.Stats
	r.logf("stage=run_done run_id=%s lines=%d warnings=%d errors=%d tabs=%d",
		runID, len(rep.Result.Lines), s.WarningsCount, s.ErrorsCount, s.TabsProcessed)
	return rep, nil
}

// parseTabs fans tab work out to a bounded pool. Results land in slots
// indexed by tab position; exactly one of tabResults[i] / tabErrs[i] is set.
func (r *Runner) parseTabs(ctx context.Context, src weekly.GridSource, tabs []string) ([]*weekly.TabResult, []*diag.Entry) {
	workers := r.Workers
	if workers <= 0 {
		workers = 4
	}
	if workers > len(tabs) {
		workers = len(tabs)
	}

	tabResults := make([]*weekly.TabResult, len(tabs))
	tabErrs := make([]*diag.Entry, len(tabs))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				r.parseOne(ctx, src, tabs[i], &tabResults[i], &tabErrs[i])
			}
		}()
	}

feed:
	for i := range tabs {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	return tabResults, tabErrs
}

func (r *Runner) parseOne(ctx context.Context, src weekly.GridSource, tab string, out **weekly.TabResult, outErr **diag.Entry) {
	start := time.Now()

	rows, err := src.Rows(ctx, tab)
	if err != nil {
		*outErr = &diag.Entry{Kind: diag.KindTabParseError, Tab: tab, Message: err.Error()}
		r.metric().IncCounter(metrics.TabsTotal, 1, metrics.Labels{"status": "error"})
		r.metric().ObserveHistogram(metrics.TabDurationSeconds, time.Since(start).Seconds(), metrics.Labels{"status": "error"})
		return
	}

	tr := r.parser().ParseTab(tab, rows)
	*out = &tr

	r.metric().IncCounter(metrics.TabsTotal, 1, metrics.Labels{"status": "ok"})
	r.metric().ObserveHistogram(metrics.TabDurationSeconds, time.Since(start).Seconds(), metrics.Labels{"status": "ok"})
	r.logf("stage=parse_tab tab=%q lines=%d warnings=%d", tab, len(tr.Lines), len(tr.Warnings))
}

// merge combines per-tab outcomes into one Result in tab order.
func merge(tabs []string, tabResults []*weekly.TabResult, tabErrs []*diag.Entry) weekly.Result {
	res := weekly.Result{Lines: []weekly.OrderLine{}}
	var c diag.Collector

	for i := range tabs {
		if e := tabErrs[i]; e != nil {
			c.Error(*e)
			res.Stats.TabsProcessed++
			continue
		}
		tr := tabResults[i]
		if tr == nil {
			continue // run was cancelled before this tab was parsed
		}
		res.Lines = append(res.Lines, tr.Lines...)
		for _, w := range tr.Warnings {
			c.Warn(w)
		}
		res.Stats.RowsProcessed += tr.RowsProcessed
		res.Stats.RowsSkipped += tr.RowsSkipped
		res.Stats.TabsProcessed++
	}

	res.Warnings = c.Warnings()
	res.Errors = c.Errors()
	res.Stats.RecordsCreated = len(res.Lines)
	c.Counts(&res.Stats.Stats)

	customers := make(map[string]struct{})
	products := make(map[string]struct{})
	for _, ol := range res.Lines {
		customers[ol.Customer] = struct{}{}
		products[ol.Product] = struct{}{}
	}
	res.Stats.UniqueCustomers = len(customers)
	res.Stats.UniqueProducts = len(products)

	return res
}

func (r *Runner) emitRunMetrics(tabs []string, tabResults []*weekly.TabResult, tabErrs []*diag.Entry) {
	m := r.metric()
	for i := range tabs {
		tr := tabResults[i]
		if tr == nil {
			continue
		}
		m.IncCounter(metrics.RowsTotal, float64(tr.RowsProcessed), metrics.Labels{"kind": "processed"})
		m.IncCounter(metrics.RowsTotal, float64(tr.RowsSkipped), metrics.Labels{"kind": "skipped"})
		for _, w := range tr.Warnings {
			m.IncCounter(metrics.WarningsTotal, 1, metrics.Labels{"type": w.Kind})
		}
		for _, line := range tr.Lines {
			m.IncCounter(metrics.LinesTotal, 1, metrics.Labels{
				"product": line.Product,
				"unit":    string(line.UnitType),
			})
		}
	}
}

func (r *Runner) persist(ctx context.Context, runID string, cfg storage.Config, lines []weekly.OrderLine) (int64, error) {
	newRepo := r.NewRepository
	if newRepo == nil {
		newRepo = storage.New
	}

	repo, err := newRepo(ctx, cfg)
	if err != nil {
		return 0, fmt.Errorf("storage init: %w", err)
	}
	defer repo.Close()

	if err := repo.EnsureSchema(ctx); err != nil {
		return 0, err
	}

	stored, err := repo.InsertOrderLines(ctx, runID, lines)
	if err != nil {
		return 0, err
	}
	r.logf("stage=persist run_id=%s kind=%s lines=%d stored=%d", runID, cfg.Kind, len(lines), stored)
	return stored, nil
}
