package authguard

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricLoginSuccess)

	if got := m.Value(MetricLoginSuccess); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if snap := m.Snapshot(); len(snap.Counters) != 0 {
		t.Fatalf("expected empty snapshot, got %v", snap.Counters)
	}
}

func TestMetricsEnabledIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginSuccess)

	if got := m.Value(MetricLoginSuccess); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricIdentityResolved)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricIdentityResolved); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		5 * time.Millisecond,
		10 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		700 * time.Millisecond,
	}

	for _, d := range observations {
		m.Observe(MetricIdentityLatency, d)
	}
	// Only the identity latency histogram exists.
	m.Observe(MetricLoginSuccess, time.Millisecond)

	snap := m.Snapshot()
	buckets := snap.Histograms[MetricIdentityLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}
	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
	if len(snap.Histograms) != 1 {
		t.Fatalf("expected a single histogram, got %d", len(snap.Histograms))
	}
}

func TestMetricNamesAreUnique(t *testing.T) {
	seen := make(map[string]MetricID)
	for _, id := range MetricIDs() {
		name := id.String()
		if name == "" || name == "unknown" {
			t.Fatalf("metric %d has no name", id)
		}
		if prev, dup := seen[name]; dup {
			t.Fatalf("metric name %q used by %d and %d", name, prev, id)
		}
		seen[name] = id
	}
}

func TestEngineRecordsMetrics(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.EnableLatencyHistograms = true
	engine, _, done := newTestEngine(t, cfg)
	defer done()
	ctx := context.Background()

	res, err := engine.Login(ctx, 1, LoginOptions{})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := engine.Identity(ctx, res.Cookie); err != nil {
		t.Fatalf("identity failed: %v", err)
	}
	_, _ = engine.Identity(ctx, "bogus")

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricLoginSuccess] != 1 ||
		snap.Counters[MetricIdentityResolved] != 1 ||
		snap.Counters[MetricIdentityMissing] != 1 {
		t.Fatalf("unexpected counters: %v", snap.Counters)
	}

	var observed uint64
	for _, v := range snap.Histograms[MetricIdentityLatency] {
		observed += v
	}
	if observed != 2 {
		t.Fatalf("expected 2 latency observations, got %d", observed)
	}
}
