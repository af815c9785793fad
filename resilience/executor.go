package resilience

import (
	"context"
	"time"
)

// Policy is anything that can run an operation on a caller's behalf.
// Retry, Bulkhead, CircuitBreaker, RateLimiter and Timeout all satisfy it.
type Policy interface {
	Execute(ctx context.Context, op func(context.Context) error) error
}

// Executor applies policies around an operation in a fixed order,
// outermost first: rate limiter, bulkhead, circuit breaker, retry, timeout.
// Each retry attempt gets its own timeout, and a rate-limited call never
// takes a bulkhead slot.
type Executor struct {
	rateLimiter    Policy
	bulkhead       Policy
	circuitBreaker Policy
	retry          Policy
	timeout        Policy
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// NewExecutor creates an executor. With no options it simply calls op.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithRateLimiter adds rate limiting. Nil options are ignored.
func WithRateLimiter(rl *RateLimiter) ExecutorOption {
	return func(e *Executor) {
		if rl != nil {
			e.rateLimiter = rl
		}
	}
}

// WithBulkhead adds a concurrency gate.
func WithBulkhead(b *Bulkhead) ExecutorOption {
	return func(e *Executor) {
		if b != nil {
			e.bulkhead = b
		}
	}
}

// WithCircuitBreaker adds a circuit breaker.
func WithCircuitBreaker(cb *CircuitBreaker) ExecutorOption {
	return func(e *Executor) {
		if cb != nil {
			e.circuitBreaker = cb
		}
	}
}

// WithRetry adds retries.
func WithRetry(r *Retry) ExecutorOption {
	return func(e *Executor) {
		if r != nil {
			e.retry = r
		}
	}
}

// WithTimeout bounds each attempt by d.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.timeout = NewTimeout(d) }
}

// Execute runs op through the configured policies.
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) error {
	run := op
	for _, p := range []Policy{e.timeout, e.retry, e.circuitBreaker, e.bulkhead, e.rateLimiter} {
		if p == nil {
			continue
		}
		run = wrap(p, run)
	}
	return run(ctx)
}

func wrap(p Policy, inner func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		return p.Execute(ctx, inner)
	}
}
