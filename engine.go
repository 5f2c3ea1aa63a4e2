package authguard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/penwell/authguard/cookie"
	"github.com/penwell/authguard/internal/limiters"
	"github.com/penwell/authguard/internal/rate"
	"github.com/penwell/authguard/session"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Engine is the session and abuse-protection facade. It is built once by
// [Builder.Build], holds no mutable state of its own besides metrics, and is
// safe for concurrent use.
type Engine struct {
	config    Config
	codec     *cookie.Codec
	cookies   cookie.Options
	redis     redis.UniversalClient
	sessions  *session.Store
	limiter   *rate.Limiter
	locks     *limiters.ResourceLock
	devices   DeviceClassifier
	locations LocationResolver
	log       zerolog.Logger
	audit     *auditDispatcher
	metrics   *Metrics
	now       func() time.Time
}

// Close flushes pending audit events. The Redis client is owned by the
// caller and stays open.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were dropped because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Metrics exposes the live counters, e.g. for the Prometheus and
// OpenTelemetry exporters.
func (e *Engine) Metrics() *Metrics {
	if e == nil {
		return nil
	}
	return e.metrics
}

// MetricsSnapshot returns a point-in-time copy of every counter and histogram.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Health pings Redis once.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil || e.sessions == nil {
		return HealthStatus{}
	}

	ctx, cancel := e.storeContext(ctx)
	defer cancel()

	latency, err := e.sessions.Ping(ctx)
	return HealthStatus{
		RedisAvailable: err == nil,
		RedisLatency:   latency,
	}
}

func (e *Engine) ready() bool {
	return e != nil && e.codec != nil && e.sessions != nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// storeContext bounds one store round trip by Store.OperationTimeout.
func (e *Engine) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(nonNilContext(ctx), e.config.Store.OperationTimeout)
}

func nonNilContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// storeError maps a failure of one of the Redis-backed components to
// ErrStoreUnavailable while keeping the cause inspectable.
func (e *Engine) storeError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, session.ErrRedisUnavailable) ||
		errors.Is(err, rate.ErrRedisUnavailable) ||
		errors.Is(err, limiters.ErrLockUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		e.metricInc(MetricStoreUnavailable)
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return err
}
