package warehouse

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonwraymond/sqlops/resilience"
)

// Pool is a bounded pool of physical connections.
//
// Contract:
// - At most Size+MaxOverflow connections are open at once.
// - At most Size connections are kept idle; extras are closed on release.
// - Idle connections are pinged before reuse when PrePing is set, and
// connections older than RecycleInterval are replaced.
// - Concurrency: safe for concurrent use; a Lease is owned by one caller.
type Pool struct {
	cfg    PoolConfig
	dialer Dialer
	gate   *resilience.Bulkhead
	now    func() time.Time

	mu       sync.Mutex
	idle     []*pooledConn
	open     int
	peakOpen int
	closed   bool

	dials        int64
	exhausted    int64
	recycled     int64
	pingFailures int64
}

type pooledConn struct {
	conn    Conn
	created time.Time
}

// PoolStats is a point-in-time snapshot of pool activity.
type PoolStats struct {
	Open         int
	Idle         int
	InUse        int
	PeakOpen     int
	MaxOpen      int
	Dials        int64
	Waits        int64
	Exhausted    int64
	Recycled     int64
	PingFailures int64
}

// NewPool creates an empty pool. Connections are dialed on demand.
func NewPool(dialer Dialer, cfg PoolConfig) *Pool {
	cfg = cfg.withDefaults()
	return &Pool{
		cfg:    cfg,
		dialer: dialer,
		gate: resilience.NewBulkhead(resilience.BulkheadConfig{
			MaxConcurrent: cfg.Size + cfg.MaxOverflow,
			MaxWait:       cfg.AcquireTimeout,
		}),
		now: time.Now,
	}
}

// Acquire checks out a connection, waiting up to AcquireTimeout for one to
// become free. It fails with ErrPoolExhausted on timeout and ErrPoolClosed
// after Close.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	if p.isClosed() {
		return nil, ErrPoolClosed
	}

	if err := p.gate.Acquire(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		p.mu.Lock()
		p.exhausted++
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %d connections in use: %w", ErrPoolExhausted, p.cfg.Size+p.cfg.MaxOverflow, err)
	}

	pc, err := p.checkout(ctx)
	if err != nil {
		p.gate.Release()
		return nil, err
	}
	return &Lease{pool: p, pc: pc}, nil
}

// checkout returns a validated idle connection or dials a new one. The
// caller holds a gate slot.
func (p *Pool) checkout(ctx context.Context) (*pooledConn, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}
		n := len(p.idle)
		if n == 0 {
			p.open++
			if p.open > p.peakOpen {
				p.peakOpen = p.open
			}
			p.dials++
			p.mu.Unlock()
			return p.dial(ctx)
		}
		pc := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()

		if p.expired(pc) {
			p.recycle(pc)
			continue
		}
		if p.cfg.PrePing {
			if err := pc.conn.Ping(ctx); err != nil {
				p.mu.Lock()
				p.pingFailures++
				p.mu.Unlock()
				p.destroy(pc)
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				continue
			}
		}
		return pc, nil
	}
}

func (p *Pool) dial(ctx context.Context) (*pooledConn, error) {
	conn, err := p.dialer.Dial(ctx)
	if err != nil {
		p.mu.Lock()
		p.open--
		p.mu.Unlock()
		return nil, err
	}
	return &pooledConn{conn: conn, created: p.now()}, nil
}

func (p *Pool) expired(pc *pooledConn) bool {
	return p.cfg.RecycleInterval > 0 && p.now().Sub(pc.created) >= p.cfg.RecycleInterval
}

func (p *Pool) recycle(pc *pooledConn) {
	p.mu.Lock()
	p.recycled++
	p.mu.Unlock()
	p.destroy(pc)
}

// destroy closes pc and forgets it.
func (p *Pool) destroy(pc *pooledConn) {
	_ = pc.conn.Close()
	p.mu.Lock()
	p.open--
	p.mu.Unlock()
}

// put returns pc to the idle list or closes it.
func (p *Pool) put(pc *pooledConn) {
	defer p.gate.Release()

	if p.expired(pc) {
		p.recycle(pc)
		return
	}

	p.mu.Lock()
	if p.closed || len(p.idle) >= p.cfg.Size {
		p.open--
		p.mu.Unlock()
		_ = pc.conn.Close()
		return
	}
	p.idle = append(p.idle, pc)
	p.mu.Unlock()
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Stats returns a snapshot of pool counters.
func (p *Pool) Stats() PoolStats {
	gm := p.gate.Metrics()

	p.mu.Lock()
	defer p.mu.Unlock()

	return PoolStats{
		Open:         p.open,
		Idle:         len(p.idle),
		InUse:        p.open - len(p.idle),
		PeakOpen:     p.peakOpen,
		MaxOpen:      p.cfg.Size + p.cfg.MaxOverflow,
		Dials:        p.dials,
		Waits:        gm.Waited,
		Exhausted:    p.exhausted,
		Recycled:     p.recycled,
		PingFailures: p.pingFailures,
	}
}

// Close closes idle connections. Leases still out are closed when released.
// Subsequent calls return nil.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.open -= len(idle)
	p.mu.Unlock()

	var errs []error
	for _, pc := range idle {
		if err := pc.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Lease is a checked-out connection. Exactly one of Release or Discard
// should be called; later calls are no-ops.
type Lease struct {
	pool *Pool
	pc   *pooledConn
	done atomic.Bool
}

// Conn returns the leased connection.
func (l *Lease) Conn() Conn {
	return l.pc.conn
}

// Release returns the connection to the pool.
func (l *Lease) Release() {
	if l.done.CompareAndSwap(false, true) {
		l.pool.put(l.pc)
	}
}

// Discard closes the connection instead of returning it, for connections
// that failed mid-use.
func (l *Lease) Discard() {
	if l.done.CompareAndSwap(false, true) {
		l.pool.destroy(l.pc)
		l.pool.gate.Release()
	}
}
