package warehouse

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var errDialRefused = errors.New("dial tcp: connection refused")

// fakeConn is an in-memory Conn whose failures are switched by its dialer.
type fakeConn struct {
	d      *fakeDialer
	id     int
	closed atomic.Bool
}

func (c *fakeConn) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.closed.Load() {
		return errors.New("conn closed")
	}
	c.d.pings.Add(1)
	if c.d.broken.Load() {
		return errors.New("server closed the connection unexpectedly")
	}
	return nil
}

func (c *fakeConn) Tables(ctx context.Context, schema string) ([]string, error) {
	if c.d.tablesErr != nil {
		return nil, c.d.tablesErr
	}
	return c.d.tables, nil
}

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	c.d.closes.Add(1)
	return nil
}

// fakeDialer fails the first failFirst dials, then hands out fakeConns.
type fakeDialer struct {
	failFirst int
	failAll   bool
	tables    []string
	tablesErr error

	mu     sync.Mutex
	dials  int
	conns  []*fakeConn
	closed bool

	broken atomic.Bool
	pings  atomic.Int64
	closes atomic.Int64
}

func (d *fakeDialer) Dial(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials++
	if d.failAll || d.dials <= d.failFirst {
		return nil, errDialRefused
	}
	c := &fakeConn{d: d, id: len(d.conns)}
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) openCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.conns {
		if !c.closed.Load() {
			n++
		}
	}
	return n
}
