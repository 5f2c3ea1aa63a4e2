package authguard

import (
	"sync/atomic"
	"time"
)

// MetricID names one in-process counter.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricSessionRenewed
	MetricIdentityResolved
	MetricIdentityMissing
	MetricLogout
	MetricLogoutAll
	MetricUserPurged
	MetricSessionAcknowledged
	MetricAcknowledgeNotFound
	MetricResourceLimitHit
	MetricResourceIncrementFailure
	MetricLockFailureRecorded
	MetricResourceLocked
	MetricStoreUnavailable
	// MetricIdentityLatency is the only histogram; its counter stays zero.
	MetricIdentityLatency
	metricIDCount
)

var metricNames = [metricIDCount]string{
	MetricLoginSuccess:             "login_success",
	MetricLoginFailure:             "login_failure",
	MetricSessionRenewed:           "session_renewed",
	MetricIdentityResolved:         "identity_resolved",
	MetricIdentityMissing:          "identity_missing",
	MetricLogout:                   "logout",
	MetricLogoutAll:                "logout_all",
	MetricUserPurged:               "user_purged",
	MetricSessionAcknowledged:      "session_acknowledged",
	MetricAcknowledgeNotFound:      "acknowledge_not_found",
	MetricResourceLimitHit:         "resource_limit_hit",
	MetricResourceIncrementFailure: "resource_increment_failure",
	MetricLockFailureRecorded:      "lock_failure_recorded",
	MetricResourceLocked:           "resource_locked",
	MetricStoreUnavailable:         "store_unavailable",
	MetricIdentityLatency:          "identity_latency",
}

// String returns the snake_case name used by exporters.
func (id MetricID) String() string {
	if id >= metricIDCount {
		return "unknown"
	}
	return metricNames[id]
}

// MetricIDs returns every defined metric id in order.
func MetricIDs() []MetricID {
	out := make([]MetricID, 0, metricIDCount)
	for id := MetricID(0); id < metricIDCount; id++ {
		out = append(out, id)
	}
	return out
}

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a lock-free set of counters and one latency histogram. Each
// counter sits on its own cache line so hot paths never contend.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates counters according to cfg. A disabled Metrics ignores
// every update.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether latency histograms are recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the identity latency histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricIdentityLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current value of id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and, when enabled, the histogram buckets.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricIdentityLatency].buckets[i])
		}
		s.Histograms[MetricIdentityLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
