package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// BulkheadConfig configures the bulkhead.
type BulkheadConfig struct {
	// MaxConcurrent is the number of slots.
	// Default: 10
	MaxConcurrent int

	// MaxWait bounds how long Acquire blocks for a slot. Zero fails
	// immediately when the bulkhead is full.
	MaxWait time.Duration
}

// Bulkhead caps how many holders may be inside at once.
type Bulkhead struct {
	config BulkheadConfig
	sem    *semaphore.Weighted

	mu    sync.Mutex
	stats BulkheadMetrics
}

// BulkheadMetrics is a snapshot of slot usage. Waited and Rejected are
// cumulative.
type BulkheadMetrics struct {
	Active        int
	MaxActive     int
	Available     int
	MaxConcurrent int
	// Waited counts acquisitions that found the bulkhead full and had to block.
	Waited   int64
	Rejected int64
}

// NewBulkhead creates a bulkhead with all slots free.
func NewBulkhead(config BulkheadConfig) *Bulkhead {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 10
	}
	return &Bulkhead{
		config: config,
		sem:    semaphore.NewWeighted(int64(config.MaxConcurrent)),
		stats:  BulkheadMetrics{MaxConcurrent: config.MaxConcurrent},
	}
}

// Acquire takes a slot. It returns ErrBulkheadFull when MaxWait elapses
// first, or ctx.Err() if the context ends while waiting.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	if b.sem.TryAcquire(1) {
		b.update(func(s *BulkheadMetrics) {
			s.Active++
			s.MaxActive = max(s.MaxActive, s.Active)
		})
		return nil
	}
	if b.config.MaxWait <= 0 {
		b.update(func(s *BulkheadMetrics) { s.Rejected++ })
		return ErrBulkheadFull
	}

	b.update(func(s *BulkheadMetrics) { s.Waited++ })
	waitCtx, cancel := context.WithTimeout(ctx, b.config.MaxWait)
	defer cancel()

	if err := b.sem.Acquire(waitCtx, 1); err != nil {
		b.update(func(s *BulkheadMetrics) { s.Rejected++ })
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrBulkheadFull
		}
		return err
	}
	b.update(func(s *BulkheadMetrics) {
		s.Active++
		s.MaxActive = max(s.MaxActive, s.Active)
	})
	return nil
}

// Release returns a slot. Releasing more slots than were acquired is a no-op.
func (b *Bulkhead) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stats.Active == 0 {
		return
	}
	b.stats.Active--
	b.sem.Release(1)
}

// Execute runs op while holding a slot.
func (b *Bulkhead) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := b.Acquire(ctx); err != nil {
		return err
	}
	defer b.Release()
	return op(ctx)
}

// Metrics returns current slot usage.
func (b *Bulkhead) Metrics() BulkheadMetrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.stats
	m.Available = m.MaxConcurrent - m.Active
	return m
}

func (b *Bulkhead) update(fn func(*BulkheadMetrics)) {
	b.mu.Lock()
	fn(&b.stats)
	b.mu.Unlock()
}
