package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"io"
)

// Conn is one physical warehouse connection. A Conn is used by one caller
// at a time.
type Conn interface {
	// Ping runs a trivial round trip (SELECT 1).
	Ping(ctx context.Context) error

	// Tables lists the base tables in schema, sorted by name.
	Tables(ctx context.Context, schema string) ([]string, error)

	Close() error
}

// Dialer opens physical connections.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context) (Conn, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context) (Conn, error) {
	return f(ctx)
}

const (
	pingQuery   = "SELECT 1"
	tablesQuery = `SELECT table_name FROM information_schema.tables
WHERE table_schema = $1 AND table_type = 'BASE TABLE'
ORDER BY table_name`
)

// NewDialer returns the Dialer for cfg.Driver. Dialers that hold resources
// implement io.Closer; the Manager closes them on Close.
func NewDialer(cfg Config) (Dialer, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Driver {
	case DriverPostgres, DriverRedshift:
		return NewPgxDialer(cfg)
	case DriverDuckDB:
		return OpenDuckDB(cfg.Database)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// closeDialer closes d if it owns resources.
func closeDialer(d Dialer) error {
	if c, ok := d.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// SQLDialer hands out dedicated connections from a database/sql handle.
type SQLDialer struct {
	db *sql.DB
}

// NewSQLDialer wraps db. Close closes db.
//
// db is set to keep no idle connections, so closing a Conn closes the
// physical connection and the Pool alone decides what is reused.
func NewSQLDialer(db *sql.DB) *SQLDialer {
	db.SetMaxIdleConns(0)
	return &SQLDialer{db: db}
}

// OpenSQLDialer opens driverName with dsn.
func OpenSQLDialer(driverName, dsn string) (*SQLDialer, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("warehouse: open %s: %w", driverName, err)
	}
	return NewSQLDialer(db), nil
}

// Dial checks out a dedicated *sql.Conn.
func (d *SQLDialer) Dial(ctx context.Context) (Conn, error) {
	c, err := d.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &sqlConn{c: c}, nil
}

// Close closes the underlying *sql.DB.
func (d *SQLDialer) Close() error {
	return d.db.Close()
}

type sqlConn struct {
	c *sql.Conn
}

func (s *sqlConn) Ping(ctx context.Context) error {
	var n int
	if err := s.c.QueryRowContext(ctx, pingQuery).Scan(&n); err != nil {
		return fmt.Errorf("warehouse: ping: %w", err)
	}
	return nil
}

func (s *sqlConn) Tables(ctx context.Context, schema string) ([]string, error) {
	rows, err := s.c.QueryContext(ctx, tablesQuery, schema)
	if err != nil {
		return nil, fmt.Errorf("warehouse: list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("warehouse: scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("warehouse: list tables: %w", err)
	}
	return tables, nil
}

func (s *sqlConn) Close() error {
	return s.c.Close()
}

var (
	_ Dialer = (*SQLDialer)(nil)
	_ Dialer = DialerFunc(nil)
)
