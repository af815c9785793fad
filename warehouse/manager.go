package warehouse

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonwraymond/sqlops/health"
	"github.com/jonwraymond/sqlops/observe"
	"github.com/jonwraymond/sqlops/resilience"
)

// State is the lifecycle state of a Manager.
type State int

const (
	StateUninitialized State = iota
	StateConnecting
	StateReady
	StateFailed
	StateClosed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// DefaultRetryConfig is the connection retry policy: two attempts with
// exponential backoff between 2s and 5s.
func DefaultRetryConfig() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:  2,
		InitialDelay: 2 * time.Second,
		MaxDelay:     5 * time.Second,
		Multiplier:   2,
	}
}

// DefaultHealthTimeout bounds one HealthCheck round trip.
const DefaultHealthTimeout = 5 * time.Second

// logTableSample is how many table names Connect logs.
const logTableSample = 5

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l observe.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(mt observe.Metrics) Option {
	return func(m *Manager) {
		if mt != nil {
			m.metrics = mt
		}
	}
}

// WithRetry replaces the connection retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(m *Manager) {
		m.retry = cfg
	}
}

// WithHealthTimeout bounds HealthCheck.
func WithHealthTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.healthTimeout = d
		}
	}
}

// Manager owns the connection pool for one warehouse.
//
// Contract:
// - Concurrency: safe for concurrent use. Connect calls are serialized.
// - Close is idempotent and terminal.
// - HealthCheck never returns an error and never panics.
type Manager struct {
	cfg           Config
	dialer        Dialer
	retry         resilience.RetryConfig
	healthTimeout time.Duration
	logger        observe.Logger
	metrics       observe.Metrics

	connectMu sync.Mutex

	mu     sync.RWMutex
	state  State
	pool   *Pool
	tables []string
}

// NewManager creates an Uninitialized manager. No connection is made until
// Connect.
func NewManager(cfg Config, dialer Dialer, opts ...Option) *Manager {
	m := &Manager{
		cfg:           cfg.WithDefaults(),
		dialer:        dialer,
		retry:         DefaultRetryConfig(),
		healthTimeout: DefaultHealthTimeout,
		logger:        observe.NopLogger(),
		metrics:       observe.NopMetrics(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(observe.F("component", "warehouse"))
	return m
}

// Connect establishes the pool, retrying per the retry policy. When every
// attempt fails it returns a *ConnectionError and keeps no pool. Connect on
// a Ready manager is a no-op.
func (m *Manager) Connect(ctx context.Context) error {
	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	m.mu.Lock()
	switch m.state {
	case StateReady:
		m.mu.Unlock()
		return nil
	case StateClosed:
		m.mu.Unlock()
		return ErrManagerClosed
	}
	m.state = StateConnecting
	m.mu.Unlock()

	m.logger.Info(ctx, "connecting to warehouse",
		observe.F("target", m.cfg.Redacted()),
		observe.F("max_attempts", m.retry.MaxAttempts),
	)

	retryCfg := m.retry
	retryCfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		m.logger.Warn(ctx, "warehouse connection attempt failed",
			observe.F("attempt", attempt),
			observe.F("retry_in", delay.String()),
			observe.Err(err),
		)
		if m.retry.OnRetry != nil {
			m.retry.OnRetry(attempt, err, delay)
		}
	}

	var (
		attempts int
		pool     *Pool
		tables   []string
	)
	err := resilience.NewRetry(retryCfg).Execute(ctx, func(ctx context.Context) error {
		attempts++
		p, t, err := m.attempt(ctx)
		if err != nil {
			return err
		}
		pool, tables = p, t
		return nil
	})

	if err != nil {
		cause := err
		var rerr *resilience.RetryError
		if errors.As(err, &rerr) {
			cause = rerr.Err
		}
		cerr := &ConnectionError{
			Host:     m.cfg.Host,
			Database: m.cfg.Database,
			Attempts: attempts,
			Err:      cause,
		}

		m.mu.Lock()
		if m.state != StateClosed {
			m.state = StateFailed
		}
		m.mu.Unlock()

		m.logger.Error(ctx, "warehouse connection failed",
			observe.F("target", m.cfg.Redacted()),
			observe.F("attempts", attempts),
			observe.Err(cause),
		)
		return cerr
	}

	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		_ = pool.Close()
		return ErrManagerClosed
	}
	m.pool = pool
	m.tables = tables
	m.state = StateReady
	m.mu.Unlock()

	sample := tables
	if len(sample) > logTableSample {
		sample = sample[:logTableSample]
	}
	m.logger.Info(ctx, "warehouse connected",
		observe.F("target", m.cfg.Redacted()),
		observe.F("attempts", attempts),
		observe.F("table_count", len(tables)),
		observe.F("tables", sample),
	)
	return nil
}

// attempt builds a pool and proves it with a round trip. Table
// introspection failures are logged and otherwise ignored.
func (m *Manager) attempt(ctx context.Context) (*Pool, []string, error) {
	pool := NewPool(m.dialer, m.cfg.Pool)

	lease, err := pool.Acquire(ctx)
	if err != nil {
		_ = pool.Close()
		return nil, nil, err
	}

	if err := lease.Conn().Ping(ctx); err != nil {
		lease.Discard()
		_ = pool.Close()
		return nil, nil, err
	}

	tables, err := lease.Conn().Tables(ctx, m.cfg.Schema)
	if err != nil {
		m.logger.Warn(ctx, "table introspection failed",
			observe.F("schema", m.cfg.Schema),
			observe.Err(err),
		)
		tables = nil
	}
	lease.Release()

	return pool, tables, nil
}

// HealthCheck runs a trivial round trip on a pooled connection. It returns
// false when the manager is not Ready or the round trip fails or times out.
func (m *Manager) HealthCheck(ctx context.Context) bool {
	return m.ping(ctx) == nil
}

func (m *Manager) ping(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("warehouse: health check panic: %v", r)
		}
	}()

	pool, err := m.readyPool()
	if err != nil {
		return err
	}

	err = resilience.ExecuteWithTimeout(ctx, m.healthTimeout, func(ctx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("warehouse: health check panic: %v", r)
			}
		}()

		lease, err := pool.Acquire(ctx)
		if err != nil {
			return err
		}
		if err := lease.Conn().Ping(ctx); err != nil {
			lease.Discard()
			return err
		}
		lease.Release()
		return nil
	})
	if err != nil {
		m.logger.Warn(ctx, "warehouse health check failed", observe.Err(err))
	}
	return err
}

// Acquire checks out a pooled connection. The caller must Release or
// Discard the lease.
func (m *Manager) Acquire(ctx context.Context) (*Lease, error) {
	pool, err := m.readyPool()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	lease, err := pool.Acquire(ctx)
	m.metrics.RecordPoolAcquire(ctx, time.Since(start), err)
	if err != nil {
		m.logger.Warn(ctx, "warehouse acquire failed", observe.Err(err))
		return nil, err
	}
	return lease, nil
}

// Tables lists the tables of the configured schema.
func (m *Manager) Tables(ctx context.Context) ([]string, error) {
	lease, err := m.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	tables, err := lease.Conn().Tables(ctx, m.cfg.Schema)
	if err != nil {
		lease.Discard()
		return nil, err
	}
	lease.Release()

	m.mu.Lock()
	m.tables = tables
	m.mu.Unlock()
	return tables, nil
}

// KnownTables returns the table names from the most recent introspection
// without touching the warehouse.
func (m *Manager) KnownTables() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.tables...)
}

// Schema returns the introspected schema name.
func (m *Manager) Schema() string {
	return m.cfg.Schema
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Stats returns pool statistics, or zero stats without a pool.
func (m *Manager) Stats() PoolStats {
	m.mu.RLock()
	pool := m.pool
	m.mu.RUnlock()

	if pool == nil {
		return PoolStats{}
	}
	return pool.Stats()
}

// Close releases the pool and the dialer. It is valid from any state and
// safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return nil
	}
	m.state = StateClosed
	pool := m.pool
	m.pool = nil
	m.mu.Unlock()

	if pool != nil {
		if err := pool.Close(); err != nil {
			m.logger.Warn(context.Background(), "closing idle connections", observe.Err(err))
		}
	}
	if err := closeDialer(m.dialer); err != nil {
		m.logger.Warn(context.Background(), "closing dialer", observe.Err(err))
	}

	m.logger.Info(context.Background(), "warehouse connection closed")
	return nil
}

// Name implements health.Checker.
func (m *Manager) Name() string {
	return "warehouse"
}

// Check implements health.Checker.
func (m *Manager) Check(ctx context.Context) health.Result {
	state := m.State()
	details := map[string]any{"state": state.String()}

	switch state {
	case StateReady:
	case StateConnecting:
		return health.Degraded("warehouse connecting").WithDetails(details)
	default:
		return health.Unhealthy("warehouse "+state.String(), ErrNotReady).WithDetails(details)
	}

	st := m.Stats()
	details["open"] = st.Open
	details["idle"] = st.Idle
	details["in_use"] = st.InUse
	details["exhausted"] = st.Exhausted

	if err := m.ping(ctx); err != nil {
		return health.Unhealthy("warehouse unreachable", err).WithDetails(details)
	}
	return health.Healthy("warehouse reachable").WithDetails(details)
}

func (m *Manager) readyPool() (*Pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	switch m.state {
	case StateReady:
		return m.pool, nil
	case StateClosed:
		return nil, ErrManagerClosed
	default:
		return nil, ErrNotReady
	}
}

var _ health.Checker = (*Manager)(nil)
