package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/sqlops/journal"
	"github.com/jonwraymond/sqlops/observe"
	"github.com/jonwraymond/sqlops/resilience"
)

var (
	// ErrEmptyQuestion is returned for a blank question.
	ErrEmptyQuestion = errors.New("workflow: question is empty")

	// ErrEmptySQL is returned when the generator's output is blank once
	// cleaned.
	ErrEmptySQL = errors.New("workflow: generator returned no SQL")
)

// Warehouse is the part of warehouse.Manager that Ask needs.
type Warehouse interface {
	Tables(ctx context.Context) ([]string, error)
	Schema() string
}

// Cache is the part of cache.ResultCache that Ask needs.
type Cache interface {
	GetCachedResult(ctx context.Context, payload string) (string, bool)
	CacheResult(ctx context.Context, payload, result string) bool
}

// Recorder receives one entry per answered question.
type Recorder interface {
	Append(e journal.Entry) (journal.Entry, error)
}

// Config wires a Workflow.
type Config struct {
	Generator Generator
	Warehouse Warehouse

	// Cache and Journal are optional.
	Cache   Cache
	Journal Recorder

	// RateLimiter throttles generations. Cache hits are not throttled.
	RateLimiter *resilience.RateLimiter

	// GenerateTimeout bounds one generation, including table listing. A
	// generation shared by concurrent callers outlives any one caller's
	// context, so without this bound it runs until the generator returns.
	GenerateTimeout time.Duration

	Middleware *observe.Middleware
}

// Answer is the outcome of Ask.
type Answer struct {
	Question string
	SQL      string
	Cached   bool
	Shared   bool
	Duration time.Duration
}

// Workflow answers questions. It is safe for concurrent use.
type Workflow struct {
	gen      Generator
	wh       Warehouse
	cache    Cache
	journal  Recorder
	executor *resilience.Executor
	mw       *observe.Middleware
	logger   observe.Logger
	group    singleflight.Group

	mu    sync.Mutex
	stats Stats
}

// Stats are counters since the Workflow was built.
type Stats struct {
	Started       time.Time
	Requests      int64
	Errors        int64
	TotalDuration time.Duration
	Generations   int64
	CacheHits     int64
	CacheMisses   int64
}

// ErrorRate returns Errors / Requests, or 0 with no requests.
func (s Stats) ErrorRate() float64 {
	if s.Requests == 0 {
		return 0
	}
	return float64(s.Errors) / float64(s.Requests)
}

// HitRate returns hits / (hits + misses), or 0 with no lookups.
func (s Stats) HitRate() float64 {
	if n := s.CacheHits + s.CacheMisses; n > 0 {
		return float64(s.CacheHits) / float64(n)
	}
	return 0
}

// AvgDuration is the mean Ask latency.
func (s Stats) AvgDuration() time.Duration {
	if s.Requests == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(s.Requests)
}

// Map renders the counters the way the journal stores them.
func (s Stats) Map(now time.Time) map[string]any {
	return map[string]any{
		"uptime_seconds":        now.Sub(s.Started).Seconds(),
		"requests_total":        s.Requests,
		"errors_total":          s.Errors,
		"error_rate":            s.ErrorRate(),
		"avg_response_time_ms":  float64(s.AvgDuration().Microseconds()) / 1000,
		"sql_generations_total": s.Generations,
		"cache_hits":            s.CacheHits,
		"cache_misses":          s.CacheMisses,
		"cache_hit_rate":        s.HitRate(),
	}
}

// New validates cfg and builds a Workflow.
func New(cfg Config) (*Workflow, error) {
	if cfg.Generator == nil {
		return nil, errors.New("workflow: generator is required")
	}
	if cfg.Warehouse == nil {
		return nil, errors.New("workflow: warehouse is required")
	}

	mw := cfg.Middleware
	if mw == nil {
		mw = observe.NewMiddleware(nil, nil, nil)
	}

	var opts []resilience.ExecutorOption
	if cfg.RateLimiter != nil {
		opts = append(opts, resilience.WithRateLimiter(cfg.RateLimiter))
	}
	if cfg.GenerateTimeout > 0 {
		opts = append(opts, resilience.WithTimeout(cfg.GenerateTimeout))
	}

	return &Workflow{
		gen:      cfg.Generator,
		wh:       cfg.Warehouse,
		cache:    cfg.Cache,
		journal:  cfg.Journal,
		executor: resilience.NewExecutor(opts...),
		mw:       mw,
		logger:   mw.Logger().With(observe.F("component", "workflow")),
		stats:    Stats{Started: time.Now()},
	}, nil
}

var (
	opAsk      = observe.Operation{Component: "workflow", Name: "ask"}
	opGenerate = observe.Operation{Component: "workflow", Name: "generate"}
)

// Ask returns SQL answering question.
func (w *Workflow) Ask(ctx context.Context, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, ErrEmptyQuestion
	}

	var ans Answer
	start := time.Now()
	err := w.mw.Observe(ctx, opAsk, func(ctx context.Context) error {
		var err error
		ans, err = w.ask(ctx, question)
		return err
	})
	ans.Duration = time.Since(start)
	if err != nil {
		w.record(ctx, journal.Entry{Question: question, Error: err.Error()}, ans.Duration)
		return Answer{}, err
	}
	w.record(ctx, journal.Entry{Question: question, SQL: ans.SQL, Cached: ans.Cached}, ans.Duration)
	return ans, nil
}

func (w *Workflow) ask(ctx context.Context, question string) (Answer, error) {
	if w.cache != nil {
		sql, ok := w.cache.GetCachedResult(ctx, question)
		w.count(func(s *Stats) {
			if ok {
				s.CacheHits++
			} else {
				s.CacheMisses++
			}
		})
		if ok {
			return Answer{Question: question, SQL: sql, Cached: true}, nil
		}
	}

	// The shared generation ignores caller cancellation; each caller stops
	// waiting on its own ctx.
	shared := context.WithoutCancel(ctx)
	ch := w.group.DoChan(question, func() (any, error) {
		sql, err := w.generate(shared, question)
		if err != nil {
			return "", err
		}
		if w.cache != nil && !w.cache.CacheResult(shared, question, sql) {
			w.logger.Debug(shared, "answer not cached")
		}
		return sql, nil
	})

	select {
	case <-ctx.Done():
		return Answer{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Answer{}, res.Err
		}
		return Answer{Question: question, SQL: res.Val.(string), Shared: res.Shared}, nil
	}
}

func (w *Workflow) generate(ctx context.Context, question string) (string, error) {
	w.count(func(s *Stats) { s.Generations++ })

	var sql string
	err := w.executor.Execute(ctx, func(ctx context.Context) error {
		return w.mw.Observe(ctx, opGenerate, func(ctx context.Context) error {
			tables, err := w.wh.Tables(ctx)
			if err != nil {
				return fmt.Errorf("workflow: list tables: %w", err)
			}
			raw, err := w.gen.Generate(ctx, Request{
				Question: question,
				Schema:   w.wh.Schema(),
				Tables:   tables,
			})
			if err != nil {
				return fmt.Errorf("workflow: generate: %w", err)
			}
			sql = CleanSQL(raw)
			if sql == "" {
				return ErrEmptySQL
			}
			return nil
		})
	})
	if err != nil {
		return "", err
	}
	return sql, nil
}

// Stats returns a snapshot of the counters.
func (w *Workflow) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Workflow) count(fn func(*Stats)) {
	w.mu.Lock()
	fn(&w.stats)
	w.mu.Unlock()
}

// record counts the request and journals it with a snapshot of the
// counters.
func (w *Workflow) record(ctx context.Context, e journal.Entry, d time.Duration) {
	w.count(func(s *Stats) {
		s.Requests++
		s.TotalDuration += d
		if e.Error != "" {
			s.Errors++
		}
	})
	if w.journal == nil {
		return
	}
	e.Metrics = w.Stats().Map(time.Now())
	e.Metrics["duration_ms"] = float64(d.Microseconds()) / 1000
	if _, err := w.journal.Append(e); err != nil {
		w.logger.Warn(ctx, "journal append failed", observe.Err(err))
	}
}
