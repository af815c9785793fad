package resilience

import (
	"context"
	"errors"
	"time"
)

// DefaultTimeout is used when a Timeout is built with a non-positive duration.
const DefaultTimeout = 30 * time.Second

// Timeout bounds a single operation. The operation receives a context
// carrying the deadline. One that ignores it keeps running in the
// background after Execute has returned ErrTimeout.
type Timeout struct {
	d time.Duration
}

// NewTimeout returns a Timeout of d, or DefaultTimeout when d <= 0.
func NewTimeout(d time.Duration) *Timeout {
	if d <= 0 {
		d = DefaultTimeout
	}
	return &Timeout{d: d}
}

// Duration returns the bound.
func (t *Timeout) Duration() time.Duration {
	return t.d
}

// Execute runs op under the deadline. ErrTimeout is returned when the
// deadline passes first; cancellation of the parent returns ctx.Err().
func (t *Timeout) Execute(ctx context.Context, op func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- op(ctx) }()

	select {
	case err := <-done:
		if errors.Is(err, context.DeadlineExceeded) && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ctx.Err()
	}
}

// ExecuteWithTimeout runs op bounded by d.
func ExecuteWithTimeout(ctx context.Context, d time.Duration, op func(context.Context) error) error {
	return NewTimeout(d).Execute(ctx, op)
}
