package health

import (
	"context"
	"fmt"
	"runtime"
)

// MemoryCheckerConfig configures the memory health checker.
type MemoryCheckerConfig struct {
	// MaxHeapBytes is the heap size considered full. Zero uses the memory
	// obtained from the OS.
	MaxHeapBytes uint64

	// WarningThreshold is the fraction of MaxHeapBytes that degrades.
	// Default: 0.8
	WarningThreshold float64

	// CriticalThreshold is the fraction of MaxHeapBytes that fails.
	// Default: 0.95
	CriticalThreshold float64
}

// MemoryChecker reports heap usage of the running process.
type MemoryChecker struct {
	config  MemoryCheckerConfig
	readMem func(*runtime.MemStats)
}

// NewMemoryChecker creates a new memory health checker.
func NewMemoryChecker(config MemoryCheckerConfig) *MemoryChecker {
	if config.WarningThreshold <= 0 || config.WarningThreshold >= 1 {
		config.WarningThreshold = 0.8
	}
	if config.CriticalThreshold <= 0 || config.CriticalThreshold >= 1 {
		config.CriticalThreshold = 0.95
	}
	if config.CriticalThreshold < config.WarningThreshold {
		config.CriticalThreshold = min(config.WarningThreshold+0.1, 0.99)
	}
	return &MemoryChecker{config: config, readMem: runtime.ReadMemStats}
}

// Name returns the name of this checker.
func (m *MemoryChecker) Name() string {
	return "memory"
}

// Check compares the live heap against the configured ceiling.
func (m *MemoryChecker) Check(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return Unhealthy("context cancelled", err)
	}

	var stats runtime.MemStats
	m.readMem(&stats)

	ceiling := m.config.MaxHeapBytes
	if ceiling == 0 {
		ceiling = stats.Sys
	}
	details := map[string]any{
		"heap_alloc": stats.HeapAlloc,
		"sys":        stats.Sys,
		"num_gc":     stats.NumGC,
		"goroutines": runtime.NumGoroutine(),
	}
	if ceiling == 0 {
		return Healthy("memory stats unavailable").WithDetails(details)
	}

	usage := float64(stats.HeapAlloc) / float64(ceiling)
	details["usage"] = usage
	msg := fmt.Sprintf("heap at %.1f%% of %d bytes", usage*100, ceiling)

	switch {
	case usage >= m.config.CriticalThreshold:
		return Unhealthy(msg, ErrCheckFailed).WithDetails(details)
	case usage >= m.config.WarningThreshold:
		return Degraded(msg).WithDetails(details)
	default:
		return Healthy(msg).WithDetails(details)
	}
}
