package cache

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jonwraymond/sqlops/health"
	"github.com/jonwraymond/sqlops/observe"
	"github.com/jonwraymond/sqlops/resilience"
)

// ResultNamespace is the namespace used by CacheResult and GetCachedResult.
const ResultNamespace = "sql-result"

// Config configures a ResultCache.
type Config struct {
	// Policy controls entry lifetimes. A zero DefaultTTL means DefaultTTL.
	Policy Policy

	// Keyer derives keys. Default: DefaultKeyer.
	Keyer Keyer

	// Backend labels logs and metrics. Default: "memory".
	Backend string

	// Breaker guards the store. After Breaker.MaxFailures consecutive store
	// failures the cache answers "miss" without touching the store until
	// Breaker.ResetTimeout elapses.
	Breaker resilience.CircuitBreakerConfig

	Logger  observe.Logger
	Metrics observe.Metrics
}

// Stats is a point-in-time snapshot of cache activity.
type Stats struct {
	Hits     int64
	Misses   int64
	Sets     int64
	Errors   int64
	Rejected int64
	Circuit  resilience.State
}

// HitRate returns hits / (hits + misses), or 0 with no lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// ResultCache is a TTL cache over a Store. It never reports store failures
// to callers: a failed read is a miss and a failed write is a no-op.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Errors: store failures are logged, counted and absorbed.
type ResultCache struct {
	store   Store
	keyer   Keyer
	policy  Policy
	backend string
	breaker *resilience.CircuitBreaker
	logger  observe.Logger
	metrics observe.Metrics

	hits     atomic.Int64
	misses   atomic.Int64
	sets     atomic.Int64
	errs     atomic.Int64
	rejected atomic.Int64
	closed   atomic.Bool
}

// NewResultCache wraps store.
func NewResultCache(store Store, cfg Config) *ResultCache {
	if cfg.Policy.DefaultTTL <= 0 {
		cfg.Policy.DefaultTTL = DefaultTTL
	}
	if cfg.Keyer == nil {
		cfg.Keyer = NewDefaultKeyer()
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendMemory
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.NopMetrics()
	}

	logger := cfg.Logger.With(observe.F("component", "cache"), observe.F("backend", cfg.Backend))

	breakerCfg := cfg.Breaker
	if breakerCfg.IsFailure == nil {
		breakerCfg.IsFailure = func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		}
	}
	onChange := breakerCfg.OnStateChange
	breakerCfg.OnStateChange = func(from, to resilience.State) {
		logger.Warn(context.Background(), "cache circuit state changed",
			observe.F("from", from.String()),
			observe.F("to", to.String()),
		)
		if onChange != nil {
			onChange(from, to)
		}
	}

	return &ResultCache{
		store:   store,
		keyer:   cfg.Keyer,
		policy:  cfg.Policy,
		backend: cfg.Backend,
		breaker: resilience.NewCircuitBreaker(breakerCfg),
		logger:  logger,
		metrics: cfg.Metrics,
	}
}

// GenerateKey returns the deterministic key for (namespace, payload).
func (c *ResultCache) GenerateKey(namespace, payload string) string {
	return c.keyer.Key(namespace, payload)
}

// Set stores value under key, replacing any previous value. The optional
// ttl defaults to the policy's DefaultTTL and is clamped to MaxTTL. It
// reports whether the value was stored.
func (c *ResultCache) Set(ctx context.Context, key, value string, ttl ...time.Duration) bool {
	var override time.Duration
	if len(ttl) > 0 {
		override = ttl[0]
	}
	effective := c.policy.EffectiveTTL(override)

	err := c.guard(ctx, "set", func() error {
		return c.store.Set(ctx, key, []byte(value), effective)
	})
	if err != nil {
		return false
	}

	c.sets.Add(1)
	c.logger.Debug(ctx, "cache set", observe.F("key", key), observe.F("ttl", effective.String()))
	return true
}

// Get returns the value stored under key if it has not expired.
func (c *ResultCache) Get(ctx context.Context, key string) (string, bool) {
	return c.lookup(ctx, namespaceOf(key), key)
}

// Delete removes key. Failures are absorbed like Set failures.
func (c *ResultCache) Delete(ctx context.Context, key string) {
	_ = c.guard(ctx, "delete", func() error {
		return c.store.Delete(ctx, key)
	})
}

// CacheResult stores result for payload in the result namespace with the
// default TTL. It returns false only if the store failed.
func (c *ResultCache) CacheResult(ctx context.Context, payload, result string) bool {
	return c.Set(ctx, c.GenerateKey(ResultNamespace, payload), result)
}

// GetCachedResult returns the result previously cached for payload.
func (c *ResultCache) GetCachedResult(ctx context.Context, payload string) (string, bool) {
	return c.lookup(ctx, ResultNamespace, c.GenerateKey(ResultNamespace, payload))
}

// Stats returns a snapshot of cache counters.
func (c *ResultCache) Stats() Stats {
	return Stats{
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Sets:     c.sets.Load(),
		Errors:   c.errs.Load(),
		Rejected: c.rejected.Load(),
		Circuit:  c.breaker.State(),
	}
}

// Close closes the underlying store. Subsequent calls return nil.
func (c *ResultCache) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.store.Close()
}

// Name implements health.Checker.
func (c *ResultCache) Name() string {
	return "cache"
}

// Check implements health.Checker. An open circuit is reported as degraded:
// callers still get answers, only without caching.
func (c *ResultCache) Check(ctx context.Context) health.Result {
	if c.closed.Load() {
		return health.Unhealthy("cache closed", ErrStoreClosed)
	}

	details := map[string]any{
		"backend": c.backend,
		"hits":    c.hits.Load(),
		"misses":  c.misses.Load(),
		"errors":  c.errs.Load(),
	}

	if c.breaker.State() == resilience.StateOpen {
		return health.Degraded("cache store circuit open").WithDetails(details)
	}

	if p, ok := c.store.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(ctx); err != nil {
			return health.Unhealthy("cache store unreachable", err).WithDetails(details)
		}
	}

	return health.Healthy("cache operational").WithDetails(details)
}

func (c *ResultCache) lookup(ctx context.Context, namespace, key string) (string, bool) {
	var (
		val   []byte
		found bool
	)
	err := c.guard(ctx, "get", func() error {
		var err error
		val, found, err = c.store.Get(ctx, key)
		return err
	})
	if err != nil || !found {
		c.miss(ctx, namespace)
		return "", false
	}

	c.hits.Add(1)
	c.metrics.RecordCacheLookup(ctx, namespace, true)
	c.logger.Debug(ctx, "cache hit", observe.F("key", key))
	return string(val), true
}

func (c *ResultCache) miss(ctx context.Context, namespace string) {
	c.misses.Add(1)
	c.metrics.RecordCacheLookup(ctx, namespace, false)
}

// guard runs op through the circuit breaker and absorbs its failure.
func (c *ResultCache) guard(ctx context.Context, op string, fn func() error) error {
	if c.closed.Load() {
		return ErrStoreClosed
	}

	if err := c.breaker.Allow(); err != nil {
		c.rejected.Add(1)
		return err
	}

	err := fn()
	c.breaker.Record(err)
	if err != nil {
		c.errs.Add(1)
		c.metrics.RecordCacheError(ctx, c.backend, op)
		level := c.logger.Warn
		if errors.Is(err, ErrStoreClosed) {
			level = c.logger.Error
		}
		level(ctx, "cache store failure", observe.F("op", op), observe.Err(err))
	}
	return err
}

// RawNamespace labels lookups of keys that carry no plain namespace prefix.
const RawNamespace = "raw"

// namespaceOf returns the metric label for key: its prefix when that is a
// plain namespace, RawNamespace otherwise.
func namespaceOf(key string) string {
	ns, _, found := strings.Cut(key, ":")
	if !found || ns == "" || !IsPlainNamespace(ns) {
		return RawNamespace
	}
	return ns
}

var _ health.Checker = (*ResultCache)(nil)
