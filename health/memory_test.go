package health

import (
	"context"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func withHeap(m *MemoryChecker, heap, sys uint64) *MemoryChecker {
	m.readMem = func(s *runtime.MemStats) {
		s.HeapAlloc = heap
		s.Sys = sys
	}
	return m
}

func TestNewMemoryChecker_Thresholds(t *testing.T) {
	tests := []struct {
		name           string
		in             MemoryCheckerConfig
		warn, critical float64
	}{
		{"defaults", MemoryCheckerConfig{}, 0.8, 0.95},
		{"custom", MemoryCheckerConfig{WarningThreshold: 0.5, CriticalThreshold: 0.7}, 0.5, 0.7},
		{"out of range", MemoryCheckerConfig{WarningThreshold: 2, CriticalThreshold: -1}, 0.8, 0.95},
		{"critical below warning", MemoryCheckerConfig{WarningThreshold: 0.9, CriticalThreshold: 0.5}, 0.9, 0.99},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMemoryChecker(tt.in)
			assert.InDelta(t, tt.warn, m.config.WarningThreshold, 1e-9)
			assert.InDelta(t, tt.critical, m.config.CriticalThreshold, 1e-9)
		})
	}
}

func TestMemoryChecker_Check(t *testing.T) {
	tests := []struct {
		name string
		heap uint64
		want Status
	}{
		{"low", 100, StatusHealthy},
		{"warning", 850, StatusDegraded},
		{"critical", 990, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := withHeap(NewMemoryChecker(MemoryCheckerConfig{MaxHeapBytes: 1000}), tt.heap, 1<<30)
			r := m.Check(context.Background())
			assert.Equal(t, tt.want, r.Status)
			assert.Equal(t, tt.heap, r.Details["heap_alloc"])
		})
	}
}

func TestMemoryChecker_FallsBackToSys(t *testing.T) {
	m := withHeap(NewMemoryChecker(MemoryCheckerConfig{}), 90, 100)
	assert.Equal(t, StatusDegraded, m.Check(context.Background()).Status)

	m = withHeap(NewMemoryChecker(MemoryCheckerConfig{}), 0, 0)
	r := m.Check(context.Background())
	assert.Equal(t, StatusHealthy, r.Status)
	assert.Equal(t, "memory stats unavailable", r.Message)
}

func TestMemoryChecker_Real(t *testing.T) {
	m := NewMemoryChecker(MemoryCheckerConfig{})
	assert.Equal(t, "memory", m.Name())
	r := m.Check(context.Background())
	assert.Contains(t, r.Details, "goroutines")
}

func TestMemoryChecker_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewMemoryChecker(MemoryCheckerConfig{}).Check(ctx)
	assert.Equal(t, StatusUnhealthy, r.Status)
	assert.ErrorIs(t, r.Error, context.Canceled)
}
