package warehouse

import (
	"fmt"
	"math"
	"net"
	"net/url"
	"strconv"
	"time"
)

// Driver names.
const (
	DriverPostgres = "postgres"
	DriverRedshift = "redshift"
	DriverDuckDB   = "duckdb"
)

// Config describes the warehouse and how to reach it.
type Config struct {
	// Driver is postgres, redshift or duckdb. Default: redshift.
	Driver string `koanf:"driver"`

	Host string `koanf:"host"`

	// Port defaults to 5439, the Redshift port.
	Port int `koanf:"port"`

	User     string `koanf:"user"`
	Password string `koanf:"password"`

	// Database is the database name, or the file path for duckdb (empty
	// means in-memory).
	Database string `koanf:"database"`

	// Schema is introspected for table names. Default: public.
	Schema string `koanf:"schema"`

	SSLMode string `koanf:"sslmode"`

	// ConnectTimeout bounds establishing one physical connection.
	// Default: 8s
	ConnectTimeout time.Duration `koanf:"connect_timeout"`

	// ApplicationName is reported to the server. Default: sqlops.
	ApplicationName string `koanf:"application_name"`

	Pool PoolConfig `koanf:"pool"`
}

// PoolConfig bounds the connection pool.
type PoolConfig struct {
	// Size is the number of connections kept idle for reuse. Default: 10
	Size int `koanf:"size"`

	// MaxOverflow is how many connections may exist beyond Size under
	// load. They are closed on release. Default: 20
	MaxOverflow int `koanf:"max_overflow"`

	// AcquireTimeout bounds waiting for a free connection. Default: 10s
	AcquireTimeout time.Duration `koanf:"acquire_timeout"`

	// RecycleInterval is the maximum age of a connection. Default: 1h
	RecycleInterval time.Duration `koanf:"recycle_interval"`

	// PrePing validates idle connections before handing them out.
	PrePing bool `koanf:"pre_ping"`
}

// DefaultPoolConfig returns the pool defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Size:            10,
		MaxOverflow:     20,
		AcquireTimeout:  10 * time.Second,
		RecycleInterval: time.Hour,
		PrePing:         true,
	}
}

// DefaultConfig returns a Redshift configuration with every default set.
func DefaultConfig() Config {
	return Config{
		Driver:          DriverRedshift,
		Port:            5439,
		Schema:          "public",
		SSLMode:         "prefer",
		ConnectTimeout:  8 * time.Second,
		ApplicationName: "sqlops",
		Pool:            DefaultPoolConfig(),
	}
}

// WithDefaults fills zero fields from DefaultConfig. PrePing is left as
// given.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.Driver == "" {
		c.Driver = d.Driver
	}
	if c.Port == 0 {
		c.Port = d.Port
	}
	if c.Schema == "" {
		c.Schema = d.Schema
		if c.Driver == DriverDuckDB {
			c.Schema = "main"
		}
	}
	if c.SSLMode == "" {
		c.SSLMode = d.SSLMode
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.ApplicationName == "" {
		c.ApplicationName = d.ApplicationName
	}
	c.Pool = c.Pool.withDefaults()
	return c
}

func (p PoolConfig) withDefaults() PoolConfig {
	d := DefaultPoolConfig()
	if p.Size <= 0 {
		p.Size = d.Size
	}
	if p.MaxOverflow < 0 {
		p.MaxOverflow = 0
	}
	if p.AcquireTimeout <= 0 {
		p.AcquireTimeout = d.AcquireTimeout
	}
	if p.RecycleInterval <= 0 {
		p.RecycleInterval = d.RecycleInterval
	}
	return p
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverPostgres, DriverRedshift:
		if c.Host == "" {
			return fmt.Errorf("%w: host is required", ErrInvalidConfig)
		}
		if c.Database == "" {
			return fmt.Errorf("%w: database is required", ErrInvalidConfig)
		}
	case DriverDuckDB:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, c.Driver)
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port must be between 1 and 65535, got %d", ErrInvalidConfig, c.Port)
	}
	if c.Pool.Size < 1 {
		return fmt.Errorf("%w: pool size must be positive", ErrInvalidConfig)
	}
	if c.Pool.MaxOverflow < 0 {
		return fmt.Errorf("%w: pool max_overflow must not be negative", ErrInvalidConfig)
	}
	return nil
}

// URL returns the postgres:// connection URL for Postgres-protocol drivers.
func (c Config) URL() *url.URL {
	q := url.Values{}
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	if c.ConnectTimeout > 0 {
		q.Set("connect_timeout", strconv.Itoa(int(math.Ceil(c.ConnectTimeout.Seconds()))))
	}
	if c.ApplicationName != "" {
		q.Set("application_name", c.ApplicationName)
	}

	u := &url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Database,
		RawQuery: q.Encode(),
	}
	if c.User != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.User, c.Password)
		} else {
			u.User = url.User(c.User)
		}
	}
	return u
}

// Redacted describes the target for logs without the password.
func (c Config) Redacted() string {
	if c.Driver == DriverDuckDB {
		if c.Database == "" {
			return "duckdb::memory:"
		}
		return "duckdb:" + c.Database
	}
	return c.URL().Redacted()
}
