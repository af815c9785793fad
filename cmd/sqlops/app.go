package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/sqlops/cache"
	"github.com/jonwraymond/sqlops/health"
	"github.com/jonwraymond/sqlops/journal"
	"github.com/jonwraymond/sqlops/observe"
	"github.com/jonwraymond/sqlops/resilience"
	"github.com/jonwraymond/sqlops/warehouse"
	"github.com/jonwraymond/sqlops/workflow"
)

// app is everything one command invocation needs, built from config.
type app struct {
	obs      observe.Observer
	logger   observe.Logger
	manager  *warehouse.Manager
	cache    *cache.ResultCache
	workflow *workflow.Workflow
	health   *health.Aggregator
}

// buildApp wires the components and connects to the warehouse. A
// connection failure is returned as *warehouse.ConnectionError.
func (c *cli) buildApp(ctx context.Context, needGenerator bool) (_ *app, err error) {
	cfg := c.cfg.Config

	obs, err := observe.NewObserver(ctx, cfg.Observer(Version))
	if err != nil {
		return nil, fmt.Errorf("observability: %w", err)
	}
	mw, err := observe.MiddlewareFromObserver(obs)
	if err != nil {
		_ = obs.Shutdown(ctx)
		return nil, err
	}

	a := &app{obs: obs, logger: obs.Logger()}
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
		}
	}()

	if c.cfg.File != "" {
		a.logger.Debug(ctx, "config loaded", observe.F("file", c.cfg.File))
	}

	dialer, err := c.deps.dialer(cfg.Warehouse)
	if err != nil {
		return nil, err
	}
	a.manager = warehouse.NewManager(cfg.Warehouse, dialer,
		warehouse.WithLogger(a.logger),
		warehouse.WithMetrics(mw.Metrics()),
		warehouse.WithRetry(cfg.Retry.Resilience()),
	)
	if err := a.manager.Connect(ctx); err != nil {
		return nil, err
	}

	a.health = health.NewAggregator(health.AggregatorConfig{Logger: a.logger})
	a.health.Add(a.manager)
	a.health.Add(health.NewMemoryChecker(health.MemoryCheckerConfig{}))

	if cfg.Cache.Enabled {
		store, err := cache.NewStore(ctx, cfg.Cache.Store())
		if err != nil {
			return nil, fmt.Errorf("cache: %w", err)
		}
		a.cache = cache.NewResultCache(store, cache.Config{
			Policy:  cfg.Cache.Policy(),
			Backend: cfg.Cache.Backend,
			Logger:  a.logger,
			Metrics: mw.Metrics(),
		})
		a.health.Add(a.cache)
	}

	if !needGenerator {
		return a, nil
	}

	gen, err := c.deps.generator(cfg.Generator)
	if err != nil {
		return nil, err
	}
	wcfg := workflow.Config{
		Generator:       gen,
		Warehouse:       a.manager,
		GenerateTimeout: cfg.Generator.Timeout,
		Middleware:      mw,
	}
	if a.cache != nil {
		wcfg.Cache = a.cache
	}
	if cfg.RateLimit.Requests > 0 {
		wcfg.RateLimiter = resilience.NewWindowRateLimiter(
			cfg.RateLimit.Requests, cfg.RateLimit.Window, cfg.RateLimit.MaxWait > 0, cfg.RateLimit.MaxWait)
	}
	if cfg.Export.Path != "" {
		j, err := journal.Open(cfg.Export.Path)
		if err != nil {
			return nil, err
		}
		wcfg.Journal = j
	}
	a.workflow, err = workflow.New(wcfg)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Close releases every component, then flushes telemetry.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.manager != nil {
		errs = append(errs, a.manager.Close())
	}
	if a.obs != nil {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		errs = append(errs, a.obs.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
