package resilience

import (
	"context"
	"sync"
	"time"
)

// RateLimiterConfig configures the rate limiter.
type RateLimiterConfig struct {
	// Rate is the number of operations allowed per second.
	// Default: 100
	Rate float64

	// Burst is the bucket size.
	// Default: 10
	Burst int

	// WaitOnLimit makes Execute wait up to MaxWait for a token instead of
	// failing fast.
	WaitOnLimit bool

	// MaxWait bounds waiting for a token.
	// Default: 1 second
	MaxWait time.Duration
}

// RateLimiter is a token bucket.
//
// Deployments usually express limits as "N requests per window" (for example
// 100 generations per hour); NewWindowRateLimiter converts that form.
type RateLimiter struct {
	config RateLimiterConfig
	now    func() time.Time

	mu     sync.Mutex
	tokens float64
	last   time.Time
}

// NewRateLimiter creates a rate limiter with a full bucket.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.Rate <= 0 {
		config.Rate = 100
	}
	if config.Burst <= 0 {
		config.Burst = 10
	}
	if config.MaxWait <= 0 {
		config.MaxWait = time.Second
	}
	rl := &RateLimiter{config: config, now: time.Now}
	rl.tokens = float64(config.Burst)
	rl.last = rl.now()
	return rl
}

// NewWindowRateLimiter allows requests operations per window, with the whole
// allowance available as an initial burst. When wait is true, callers block up
// to maxWait for a token instead of failing fast.
func NewWindowRateLimiter(requests int, window time.Duration, wait bool, maxWait time.Duration) *RateLimiter {
	if requests <= 0 {
		requests = 100
	}
	if window <= 0 {
		window = time.Hour
	}
	return NewRateLimiter(RateLimiterConfig{
		Rate:        float64(requests) / window.Seconds(),
		Burst:       requests,
		WaitOnLimit: wait,
		MaxWait:     maxWait,
	})
}

// Allow takes a token if one is available.
func (rl *RateLimiter) Allow() bool {
	_, ok := rl.reserve()
	return ok
}

// reserve takes a token, or reports how long until one is available.
func (rl *RateLimiter) reserve() (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.tokens = min(rl.tokens+now.Sub(rl.last).Seconds()*rl.config.Rate, float64(rl.config.Burst))
	rl.last = now

	if rl.tokens >= 1 {
		rl.tokens--
		return 0, true
	}
	return time.Duration((1 - rl.tokens) / rl.config.Rate * float64(time.Second)), false
}

// Wait blocks until a token is taken, MaxWait would be exceeded, or ctx ends.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	deadline := rl.now().Add(rl.config.MaxWait)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		need, ok := rl.reserve()
		if ok {
			return nil
		}
		if rl.now().Add(need).After(deadline) {
			return ErrRateLimitExceeded
		}

		timer := time.NewTimer(need)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Execute runs op once a token is available.
func (rl *RateLimiter) Execute(ctx context.Context, op func(context.Context) error) error {
	if rl.config.WaitOnLimit {
		if err := rl.Wait(ctx); err != nil {
			return err
		}
	} else if !rl.Allow() {
		return ErrRateLimitExceeded
	}
	return op(ctx)
}

// Tokens returns the tokens currently in the bucket.
func (rl *RateLimiter) Tokens() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	rl.tokens = min(rl.tokens+now.Sub(rl.last).Seconds()*rl.config.Rate, float64(rl.config.Burst))
	rl.last = now
	return rl.tokens
}
