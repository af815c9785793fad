package health

import (
	"context"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/sqlops/observe"
)

// DefaultCheckTimeout bounds a whole round of checks.
const DefaultCheckTimeout = 10 * time.Second

// AggregatorConfig configures an Aggregator.
type AggregatorConfig struct {
	// Timeout bounds one round of checks. A check still running when it
	// expires is reported unhealthy with ErrCheckTimeout.
	// Default: DefaultCheckTimeout
	Timeout time.Duration

	// MaxConcurrent bounds how many checks run at once. Zero runs them all
	// at once; 1 runs them in registration order.
	MaxConcurrent int

	// Logger receives one line per degraded or unhealthy result.
	Logger observe.Logger
}

type entry struct {
	name    string
	checker Checker
}

// Aggregator runs a set of named checkers together.
type Aggregator struct {
	config AggregatorConfig

	mu      sync.RWMutex
	entries []entry
}

// NewAggregator creates an empty aggregator.
func NewAggregator(config ...AggregatorConfig) *Aggregator {
	var cfg AggregatorConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultCheckTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	return &Aggregator{config: cfg}
}

// Register adds checker under name. Registering a name again replaces the
// checker but keeps its original position.
func (a *Aggregator) Register(name string, checker Checker) {
	a.mu.Lock()
	defer a.mu.Unlock()

	i := slices.IndexFunc(a.entries, func(e entry) bool { return e.name == name })
	if i >= 0 {
		a.entries[i].checker = checker
		return
	}
	a.entries = append(a.entries, entry{name: name, checker: checker})
}

// Add registers checker under its own Name.
func (a *Aggregator) Add(checker Checker) {
	a.Register(checker.Name(), checker)
}

// CheckerNames returns the registered names in registration order.
func (a *Aggregator) CheckerNames() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	names := make([]string, len(a.entries))
	for i, e := range a.entries {
		names[i] = e.name
	}
	return names
}

func (a *Aggregator) snapshot() []entry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Clone(a.entries)
}

// Check runs the checker registered as name.
func (a *Aggregator) Check(ctx context.Context, name string) (Result, error) {
	for _, e := range a.snapshot() {
		if e.name != name {
			continue
		}
		ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
		return a.run(ctx, e), nil
	}
	return Result{}, ErrCheckerNotFound
}

// CheckAll runs every checker and returns the results keyed by name.
func (a *Aggregator) CheckAll(ctx context.Context) map[string]Result {
	entries := a.snapshot()
	results := make(map[string]Result, len(entries))
	if len(entries) == 0 {
		return results
	}

	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	out := make([]Result, len(entries))
	var g errgroup.Group
	if a.config.MaxConcurrent > 0 {
		g.SetLimit(a.config.MaxConcurrent)
	}
	for i, e := range entries {
		g.Go(func() error {
			out[i] = a.run(ctx, e)
			return nil
		})
	}
	_ = g.Wait()

	for i, e := range entries {
		results[e.name] = out[i]
	}
	return results
}

// Overall folds results into one status: any unhealthy result wins, then
// any degraded one. No results is healthy.
func Overall(results map[string]Result) Status {
	overall := StatusHealthy
	for _, r := range results {
		if r.Status == StatusUnhealthy {
			return StatusUnhealthy
		}
		if r.Status == StatusDegraded {
			overall = StatusDegraded
		}
	}
	return overall
}

// Report runs every check and returns the JSON-ready summary.
func (a *Aggregator) Report(ctx context.Context) HealthResponse {
	results := a.CheckAll(ctx)

	resp := HealthResponse{
		Status:    Overall(results).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    make(map[string]CheckResponse, len(results)),
	}
	for name, r := range results {
		resp.Checks[name] = toCheckResponse(r)
	}
	return resp
}

// run executes one checker, giving up when ctx ends. Non-healthy results
// are logged.
func (a *Aggregator) run(ctx context.Context, e entry) Result {
	start := time.Now()
	done := make(chan Result, 1)
	go func() {
		r := e.checker.Check(ctx)
		r.Duration = time.Since(start)
		if r.Timestamp.IsZero() {
			r.Timestamp = start
		}
		done <- r
	}()

	var r Result
	select {
	case r = <-done:
	case <-ctx.Done():
		r = Unhealthy("check timed out", ErrCheckTimeout).WithDuration(time.Since(start))
		r.Timestamp = start
	}

	if r.Status != StatusHealthy {
		fields := []observe.Field{
			observe.F("check", e.name),
			observe.F("status", r.Status.String()),
			observe.F("message", r.Message),
		}
		if r.Error != nil {
			fields = append(fields, observe.Err(r.Error))
		}
		a.config.Logger.Warn(ctx, "health check not healthy", fields...)
	}
	return r
}
