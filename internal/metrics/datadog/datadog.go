// Package datadog implements a Datadog backend for the internal/metrics package.
//
// Observations are buffered in memory under a mutex, flushed on a ticker
// (default once per minute) and once more on Close. Long extractions get a
// time series instead of a single spike at exit; short CLI runs still get
// the final flush.
//
// Concurrency model:
//   - per-tab workers call IncCounter/ObserveHistogram at any time
//   - Flush snapshots and resets buffers under the mutex, then submits outside it
//   - the flush loop calls Flush periodically; Close stops the loop
package datadog

import (
	"context"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"mezzetl/internal/metrics"
)

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric. Defaults to "extract".
	JobName string

	// Tags are extra Datadog tags (e.g. []string{"env:prod", "service:orders"}).
	Tags []string

	// FlushEvery controls how often buffered metrics are submitted.
	// Defaults to 60 seconds when <= 0.
	FlushEvery time.Duration

	// Unexported test seams. Production code never sets these; tests use them
	// to avoid real submission and nondeterministic clocks.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the minimal slice of the Datadog SDK the backend needs.
// The SDK exposes a concrete *datadogV2.MetricsApi; depending on this
// interface instead lets tests substitute a fake without HTTP.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}

	baseTags []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu sync.Mutex

	// keyed by label key (see labelKey); reset on every flush
	counters   map[string]map[string]float64
	histograms map[string]map[string][]float64
}

// New constructs a Datadog backend using the official client. Credentials
// come from the DD_API_KEY / DD_APP_KEY environment, resolved by the SDK.
func New(parent context.Context, opts Options) *Backend {
	job := opts.JobName
	if job == "" {
		job = "extract"
	}

	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}

	submitter := opts.submitter
	if submitter == nil {
		client := dd.NewAPIClient(dd.NewConfiguration())
		submitter = datadogV2.NewMetricsApi(client)
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		baseTags:   baseTags,
		now:        nowFn,
		newTicker:  newTicker,
		counters:   make(map[string]map[string]float64),
		histograms: make(map[string]map[string][]float64),
	}

	go b.loop()
	return b
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the flush loop and performs one final Flush. Call once; a
// second Close panics on the closed channel, matching usual Close-once
// semantics for process-lifetime backends.
func (b *Backend) Close() error {
	close(b.stopCh)
	<-b.doneCh
	return b.Flush()
}

// IncCounter implements metrics.Backend. Non-positive deltas are dropped.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	byLabel := b.counters[name]
	if byLabel == nil {
		byLabel = make(map[string]float64)
		b.counters[name] = byLabel
	}
	byLabel[labelKey(labels)] += delta
}

// ObserveHistogram implements metrics.Backend. Negative samples are dropped.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	byLabel := b.histograms[name]
	if byLabel == nil {
		byLabel = make(map[string][]float64)
		b.histograms[name] = byLabel
	}
	k := labelKey(labels)
	byLabel[k] = append(byLabel[k], value)
}

type snapshot struct {
	counters   map[string]map[string]float64
	histograms map[string]map[string][]float64
}

// snapshotAndReset detaches the current buffers under the lock so Flush can
// build and submit the payload without holding it.
func (b *Backend) snapshotAndReset() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := snapshot{counters: b.counters, histograms: b.histograms}
	b.counters = make(map[string]map[string]float64)
	b.histograms = make(map[string]map[string][]float64)
	return s
}

func (s snapshot) isEmpty() bool {
	return len(s.counters) == 0 && len(s.histograms) == 0
}

// Flush submits buffered metrics and resets local buffers. Buffers reset even
// when submission fails; dropped points beat a blocked extraction.
func (b *Backend) Flush() error {
	snap := b.snapshotAndReset()
	if snap.isEmpty() {
		return nil
	}

	payload := datadogV2.MetricPayload{Series: b.buildSeries(snap, b.now().Unix())}
	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	return err
}

// buildSeries is pure (no locks, network, or clocks) so tests can assert on
// the exact payload. Counter names map to "<name with _ as .>"; histogram
// sample sets publish fixed percentile gauges.
func (b *Backend) buildSeries(s snapshot, nowUnix int64) []datadogV2.MetricSeries {
	var series []datadogV2.MetricSeries

	for name, byLabel := range s.counters {
		metric := dottedName(name)
		for lk, v := range byLabel {
			if v == 0 {
				continue
			}
			series = append(series, datadogV2.MetricSeries{
				Metric: metric,
				Type:   datadogV2.METRICINTAKETYPE_COUNT.Ptr(),
				Points: []datadogV2.MetricPoint{
					{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(v)},
				},
				Tags: withTags(b.baseTags, splitLabelKey(lk)...),
			})
		}
	}

	for name, byLabel := range s.histograms {
		metric := dottedName(name)
		for lk, samples := range byLabel {
			if len(samples) == 0 {
				continue
			}
			cp := append([]float64(nil), samples...)
			sort.Float64s(cp)
			tags := withTags(b.baseTags, splitLabelKey(lk)...)

			series = append(series,
				gaugeSeries(metric+".p50", percentileNearestRank(cp, 0.50), tags, nowUnix),
				gaugeSeries(metric+".p95", percentileNearestRank(cp, 0.95), tags, nowUnix),
				gaugeSeries(metric+".p99", percentileNearestRank(cp, 0.99), tags, nowUnix),
				gaugeSeries(metric+".max", cp[len(cp)-1], tags, nowUnix),
				gaugeSeries(metric+".samples", float64(len(cp)), tags, nowUnix),
			)
		}
	}

	return series
}

func gaugeSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_GAUGE.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func dottedName(name string) string {
	return strings.ReplaceAll(name, "_", ".")
}

// labelKey flattens labels in sorted key order so identical label sets land
// in the same bucket regardless of map iteration order.
func labelKey(labels metrics.Labels) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+":"+labels[k])
	}
	return strings.Join(parts, "\x00")
}

func splitLabelKey(lk string) []string {
	if lk == "" {
		return nil
	}
	return strings.Split(lk, "\x00")
}

func withTags(base []string, extras ...string) []string {
	out := make([]string, 0, len(base)+len(extras))
	out = append(out, base...)
	out = append(out, extras...)
	return out
}

func percentileNearestRank(s []float64, p float64) float64 {
	n := len(s)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return s[0]
	}
	if p >= 1 {
		return s[n-1]
	}
	idx := int(p*float64(n-1) + 0.5)
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return s[idx]
}

var _ metrics.Backend = (*Backend)(nil)

// ParseTagsCSV parses comma-separated tags like "env:prod,service:orders".
func ParseTagsCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
