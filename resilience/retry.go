package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// RetryConfig configures the retry behavior.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	// Default: 3
	MaxAttempts int

	// InitialDelay is the wait before the first retry and the floor for
	// every later one.
	// Default: 100ms
	InitialDelay time.Duration

	// MaxDelay caps the wait between retries.
	// Default: 30s
	MaxDelay time.Duration

	// Multiplier grows the delay after each failed attempt.
	// Default: 2.0
	Multiplier float64

	// Jitter adds up to 25% to each delay.
	Jitter bool

	// RetryIf reports whether err is worth another attempt.
	// Default: every non-nil error.
	RetryIf func(err error) bool

	// OnRetry is called before sleeping for the next attempt.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Retry runs an operation with bounded exponential backoff.
type Retry struct {
	config RetryConfig
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRetry creates a retry policy, filling unset fields with defaults.
func NewRetry(config RetryConfig) *Retry {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 100 * time.Millisecond
	}
	if config.MaxDelay < config.InitialDelay {
		if config.MaxDelay <= 0 {
			config.MaxDelay = 30 * time.Second
		}
		config.MaxDelay = max(config.MaxDelay, config.InitialDelay)
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}
	if config.RetryIf == nil {
		config.RetryIf = func(err error) bool { return err != nil }
	}
	return &Retry{config: config, sleep: sleepCtx}
}

// Execute runs op until it succeeds, returns a non-retryable error, or the
// attempt budget is spent. Exhaustion returns a *RetryError wrapping the last
// failure; cancellation while waiting returns ctx.Err().
func (r *Retry) Execute(ctx context.Context, op func(context.Context) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if !r.config.RetryIf(err) {
			return err
		}
		if attempt == r.config.MaxAttempts {
			return &RetryError{Attempts: attempt, Err: err}
		}

		delay := r.Backoff(attempt)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}
		if serr := r.sleep(ctx, delay); serr != nil {
			return serr
		}
	}
}

// Backoff returns the wait after the given failed attempt (1-based):
// InitialDelay * Multiplier^(attempt-1), clamped to [InitialDelay, MaxDelay],
// plus jitter when enabled.
func (r *Retry) Backoff(attempt int) time.Duration {
	exp := float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(max(attempt-1, 0)))
	delay := r.config.MaxDelay
	if exp < float64(r.config.MaxDelay) {
		delay = max(time.Duration(exp), r.config.InitialDelay)
	}
	if r.config.Jitter && delay >= 4 {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		delay += time.Duration(rand.Int64N(int64(delay / 4)))
	}
	return delay
}

// Config returns the effective configuration.
func (r *Retry) Config() RetryConfig {
	return r.config
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
