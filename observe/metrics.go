package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records operational metrics for the data-access layer.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must return quickly.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordOperation records one observed operation (for example a
	// generation call) with its duration and outcome.
	RecordOperation(ctx context.Context, op Operation, duration time.Duration, err error)

	// RecordCacheLookup records a result-cache hit or miss.
	RecordCacheLookup(ctx context.Context, namespace string, hit bool)

	// RecordCacheError records a backing-store failure absorbed by the cache.
	RecordCacheError(ctx context.Context, backend, op string)

	// RecordPoolAcquire records a connection checkout and how long it waited.
	RecordPoolAcquire(ctx context.Context, wait time.Duration, err error)
}

type metricsImpl struct {
	opTotal      metric.Int64Counter
	opErrors     metric.Int64Counter
	opDuration   metric.Float64Histogram
	cacheLookups metric.Int64Counter
	cacheErrors  metric.Int64Counter
	poolAcquires metric.Int64Counter
	poolWait     metric.Float64Histogram
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	var (
		m   metricsImpl
		err error
	)

	if m.opTotal, err = meter.Int64Counter(
		"sqlops.op.total",
		metric.WithDescription("Total number of observed operations"),
		metric.WithUnit("{call}"),
	); err != nil {
		return nil, err
	}

	if m.opErrors, err = meter.Int64Counter(
		"sqlops.op.errors",
		metric.WithDescription("Total number of failed operations"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, err
	}

	if m.opDuration, err = meter.Float64Histogram(
		"sqlops.op.duration_ms",
		metric.WithDescription("Operation duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}

	if m.cacheLookups, err = meter.Int64Counter(
		"sqlops.cache.lookups",
		metric.WithDescription("Result cache lookups by outcome"),
		metric.WithUnit("{lookup}"),
	); err != nil {
		return nil, err
	}

	if m.cacheErrors, err = meter.Int64Counter(
		"sqlops.cache.store_errors",
		metric.WithDescription("Backing store failures absorbed as cache misses"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, err
	}

	if m.poolAcquires, err = meter.Int64Counter(
		"sqlops.pool.acquires",
		metric.WithDescription("Warehouse connection checkouts by outcome"),
		metric.WithUnit("{acquire}"),
	); err != nil {
		return nil, err
	}

	if m.poolWait, err = meter.Float64Histogram(
		"sqlops.pool.wait_ms",
		metric.WithDescription("Time spent waiting for a warehouse connection"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}

	return &m, nil
}

func (m *metricsImpl) RecordOperation(ctx context.Context, op Operation, duration time.Duration, err error) {
	opt := metric.WithAttributes(op.attributes()...)

	m.opTotal.Add(ctx, 1, opt)
	if err != nil {
		m.opErrors.Add(ctx, 1, opt)
	}
	m.opDuration.Record(ctx, float64(duration.Milliseconds()), opt)
}

func (m *metricsImpl) RecordCacheLookup(ctx context.Context, namespace string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cache.namespace", namespace),
		attribute.String("cache.result", result),
	))
}

func (m *metricsImpl) RecordCacheError(ctx context.Context, backend, op string) {
	m.cacheErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cache.backend", backend),
		attribute.String("cache.op", op),
	))
}

func (m *metricsImpl) RecordPoolAcquire(ctx context.Context, wait time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	opt := metric.WithAttributes(attribute.String("pool.outcome", outcome))
	m.poolAcquires.Add(ctx, 1, opt)
	m.poolWait.Record(ctx, float64(wait.Milliseconds()), opt)
}

// NopMetrics returns a Metrics that records nothing.
func NopMetrics() Metrics {
	return nopMetrics{}
}

type nopMetrics struct{}

func (nopMetrics) RecordOperation(context.Context, Operation, time.Duration, error) {}
func (nopMetrics) RecordCacheLookup(context.Context, string, bool)                  {}
func (nopMetrics) RecordCacheError(context.Context, string, string)                 {}
func (nopMetrics) RecordPoolAcquire(context.Context, time.Duration, error)          {}
