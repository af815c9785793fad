// Package resilience provides the failure-handling policies used by the
// warehouse and cache layers.
//
// Each policy is a small object configured once and applied to an operation
// of the form func(context.Context) error. They are independent of the code
// they protect, so they can be tested in isolation and composed.
//
// # Patterns
//
//   - Retry: bounded attempts with exponential backoff.
//     Exhaustion yields a *RetryError that wraps the last failure.
//
//   - Bulkhead: a capacity gate over golang.org/x/sync/semaphore with a
//     bounded wait. The warehouse pool uses it to cap physical connections
//     at size plus overflow.
//
//   - Circuit Breaker: stops calling a failing dependency for a cool-down
//     period. The result cache uses it to skip an unreachable backing store.
//
//   - Rate Limiter: a token bucket limiting how often the generation chain is
//     invoked.
//
//   - Timeout: bounds a single operation such as a liveness check.
//
// # Usage
//
//	retry := resilience.NewRetry(resilience.RetryConfig{
//	    MaxAttempts:  2,
//	    InitialDelay: 2 * time.Second,
//	    MaxDelay:     5 * time.Second,
//	})
//
//	err := retry.Execute(ctx, func(ctx context.Context) error {
//	    return dialWarehouse(ctx)
//	})
//
//	var re *resilience.RetryError
//	if errors.As(err, &re) {
//	    log.Printf("gave up after %d attempts: %v", re.Attempts, re.Err)
//	}
//
// Policies compose through Executor:
//
//	exec := resilience.NewExecutor(
//	    resilience.WithRateLimiter(rl),
//	    resilience.WithTimeout(30*time.Second),
//	)
//	err := exec.Execute(ctx, generate)
package resilience
