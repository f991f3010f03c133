package datadog

import (
	"context"
	"net/http"
	"sort"
	"testing"
	"time"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"mezzetl/internal/metrics"
)

type fakeSubmitter struct {
	payloads []datadogV2.MetricPayload
}

func (f *fakeSubmitter) SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error) {
	f.payloads = append(f.payloads, body)
	return datadogV2.IntakePayloadAccepted{}, nil, nil
}

func newTestBackend(t *testing.T) (*Backend, *fakeSubmitter) {
	t.Helper()

	fake := &fakeSubmitter{}
	b := New(context.Background(), Options{
		JobName:    "test",
		FlushEvery: time.Hour, // flush only when the test asks
		now:        func() time.Time { return time.Unix(1700000000, 0) },
		submitter:  fake,
	})
	t.Cleanup(func() { _ = b.Close() })
	return b, fake
}

func TestFlushEmptyDoesNotSubmit(t *testing.T) {
	b, fake := newTestBackend(t)

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(fake.payloads) != 0 {
		t.Fatalf("expected no submission for empty buffers, got %d", len(fake.payloads))
	}
}

func TestCountersAggregateByLabelSet(t *testing.T) {
	b, fake := newTestBackend(t)

	b.IncCounter(metrics.TabsTotal, 1, metrics.Labels{"status": "ok"})
	b.IncCounter(metrics.TabsTotal, 1, metrics.Labels{"status": "ok"})
	b.IncCounter(metrics.TabsTotal, 1, metrics.Labels{"status": "error"})
	b.IncCounter(metrics.TabsTotal, -5, metrics.Labels{"status": "ok"}) // dropped

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(fake.payloads) != 1 {
		t.Fatalf("expected 1 payload, got %d", len(fake.payloads))
	}

	series := fake.payloads[0].Series
	if len(series) != 2 {
		t.Fatalf("expected 2 series, got %d", len(series))
	}

	byTag := map[string]float64{}
	for _, s := range series {
		if s.Metric != "extract.tabs.total" {
			t.Fatalf("unexpected metric name %q", s.Metric)
		}
		if len(s.Points) != 1 || *s.Points[0].Timestamp != 1700000000 {
			t.Fatalf("unexpected points %+v", s.Points)
		}
		for _, tag := range s.Tags {
			if tag == "status:ok" || tag == "status:error" {
				byTag[tag] = *s.Points[0].Value
			}
		}
	}
	if byTag["status:ok"] != 2 || byTag["status:error"] != 1 {
		t.Fatalf("unexpected counts %v", byTag)
	}
}

func TestFlushResetsBuffers(t *testing.T) {
	b, fake := newTestBackend(t)

	b.IncCounter(metrics.LinesTotal, 3, nil)
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := b.Flush(); err != nil {
		t.Fatalf("second Flush: %v", err)
	}
	if len(fake.payloads) != 1 {
		t.Fatalf("expected buffers to reset after flush, got %d payloads", len(fake.payloads))
	}
}

func TestHistogramPublishesPercentileGauges(t *testing.T) {
	b, fake := newTestBackend(t)

	for _, v := range []float64{0.1, 0.2, 0.3, 0.4, 0.5} {
		b.ObserveHistogram(metrics.TabDurationSeconds, v, metrics.Labels{"status": "ok"})
	}
	b.ObserveHistogram(metrics.TabDurationSeconds, -1, metrics.Labels{"status": "ok"}) // dropped

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	series := fake.payloads[0].Series
	var names []string
	for _, s := range series {
		names = append(names, s.Metric)
		if s.Metric == "extract.tab.duration.seconds.max" && *s.Points[0].Value != 0.5 {
			t.Fatalf("max = %v, want 0.5", *s.Points[0].Value)
		}
		if s.Metric == "extract.tab.duration.seconds.samples" && *s.Points[0].Value != 5 {
			t.Fatalf("samples = %v, want 5", *s.Points[0].Value)
		}
	}
	sort.Strings(names)
	want := []string{
		"extract.tab.duration.seconds.max",
		"extract.tab.duration.seconds.p50",
		"extract.tab.duration.seconds.p95",
		"extract.tab.duration.seconds.p99",
		"extract.tab.duration.seconds.samples",
	}
	if len(names) != len(want) {
		t.Fatalf("series names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("series names = %v, want %v", names, want)
		}
	}
}

func TestLabelKeyIsOrderIndependent(t *testing.T) {
	a := labelKey(metrics.Labels{"a": "1", "b": "2"})
	b := labelKey(metrics.Labels{"b": "2", "a": "1"})
	if a != b {
		t.Fatalf("labelKey order-dependent: %q vs %q", a, b)
	}
	if got := labelKey(nil); got != "" {
		t.Fatalf("labelKey(nil) = %q, want empty", got)
	}
}

func TestPercentileNearestRank(t *testing.T) {
	s := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	tests := []struct {
		p    float64
		want float64
	}{
		{0, 1},
		{0.5, 6},
		{1, 10},
	}
	for _, tt := range tests {
		if got := percentileNearestRank(s, tt.p); got != tt.want {
			t.Errorf("p%.0f = %v, want %v", tt.p*100, got, tt.want)
		}
	}
	if got := percentileNearestRank(nil, 0.5); got != 0 {
		t.Errorf("empty samples = %v, want 0", got)
	}
}

func TestParseTagsCSV(t *testing.T) {
	got := ParseTagsCSV(" env:prod , service:orders ,, ")
	if len(got) != 2 || got[0] != "env:prod" || got[1] != "service:orders" {
		t.Fatalf("ParseTagsCSV = %v", got)
	}
	if ParseTagsCSV("") != nil {
		t.Fatal("expected nil for empty input")
	}
}
