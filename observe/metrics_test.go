package observe

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func sumWhere(t *testing.T, m *metricdata.Metrics, key, value string) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s: expected Sum[int64], got %T", m.Name, m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			total += dp.Value
		}
	}
	return total
}

func TestMetrics_RecordOperation(t *testing.T) {
	m, reader := newTestMetrics(t)
	op := Operation{Component: "workflow", Name: "generate"}

	m.RecordOperation(context.Background(), op, 120*time.Millisecond, nil)
	m.RecordOperation(context.Background(), op, 80*time.Millisecond, errors.New("chain failed"))

	rm := collect(t, reader)

	total := findMetric(rm, "sqlops.op.total")
	if total == nil {
		t.Fatal("sqlops.op.total not found")
	}
	if got := sumWhere(t, total, "sqlops.op", "generate"); got != 2 {
		t.Errorf("op.total = %d, want 2", got)
	}

	errs := findMetric(rm, "sqlops.op.errors")
	if errs == nil {
		t.Fatal("sqlops.op.errors not found")
	}
	if got := sumWhere(t, errs, "sqlops.op", "generate"); got != 1 {
		t.Errorf("op.errors = %d, want 1", got)
	}

	hist := findMetric(rm, "sqlops.op.duration_ms")
	if hist == nil {
		t.Fatal("sqlops.op.duration_ms not found")
	}
	h, ok := hist.Data.(metricdata.Histogram[float64])
	if !ok || len(h.DataPoints) == 0 || h.DataPoints[0].Count != 2 {
		t.Errorf("unexpected histogram data: %#v", hist.Data)
	}
}

func TestMetrics_RecordCacheLookup(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCacheLookup(ctx, "sql-result", true)
	m.RecordCacheLookup(ctx, "sql-result", false)
	m.RecordCacheLookup(ctx, "sql-result", false)

	lookups := findMetric(collect(t, reader), "sqlops.cache.lookups")
	if lookups == nil {
		t.Fatal("sqlops.cache.lookups not found")
	}
	if got := sumWhere(t, lookups, "cache.result", "hit"); got != 1 {
		t.Errorf("hits = %d, want 1", got)
	}
	if got := sumWhere(t, lookups, "cache.result", "miss"); got != 2 {
		t.Errorf("misses = %d, want 2", got)
	}
}

func TestMetrics_RecordCacheErrorAndPool(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCacheError(ctx, "redis", "get")
	m.RecordPoolAcquire(ctx, 5*time.Millisecond, nil)
	m.RecordPoolAcquire(ctx, 10*time.Second, errors.New("pool exhausted"))

	rm := collect(t, reader)

	if got := sumWhere(t, findMetric(rm, "sqlops.cache.store_errors"), "cache.backend", "redis"); got != 1 {
		t.Errorf("store_errors = %d, want 1", got)
	}
	acq := findMetric(rm, "sqlops.pool.acquires")
	if got := sumWhere(t, acq, "pool.outcome", "ok"); got != 1 {
		t.Errorf("acquires ok = %d, want 1", got)
	}
	if got := sumWhere(t, acq, "pool.outcome", "error"); got != 1 {
		t.Errorf("acquires error = %d, want 1", got)
	}
	if findMetric(rm, "sqlops.pool.wait_ms") == nil {
		t.Error("sqlops.pool.wait_ms not found")
	}
}

func TestNopMetrics(t *testing.T) {
	m := NopMetrics()
	ctx := context.Background()
	m.RecordOperation(ctx, Operation{Name: "x"}, time.Millisecond, nil)
	m.RecordCacheLookup(ctx, "ns", true)
	m.RecordCacheError(ctx, "memory", "set")
	m.RecordPoolAcquire(ctx, 0, nil)
}
