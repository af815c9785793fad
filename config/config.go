package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jonwraymond/sqlops/cache"
	"github.com/jonwraymond/sqlops/observe"
	"github.com/jonwraymond/sqlops/resilience"
	"github.com/jonwraymond/sqlops/warehouse"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Config is the full sqlops configuration.
type Config struct {
	Warehouse warehouse.Config `koanf:"warehouse"`
	Retry     RetryConfig      `koanf:"retry"`
	Cache     CacheConfig      `koanf:"cache"`
	RateLimit RateLimitConfig  `koanf:"ratelimit"`
	Log       LogConfig        `koanf:"log"`
	Observe   ObserveConfig    `koanf:"observe"`
	Export    ExportConfig     `koanf:"export"`
	Generator GeneratorConfig  `koanf:"generator"`
	Server    ServerConfig     `koanf:"server"`
}

// RetryConfig is the connection retry budget.
type RetryConfig struct {
	MaxAttempts  int           `koanf:"max_attempts"`
	InitialDelay time.Duration `koanf:"initial_delay"`
	MaxDelay     time.Duration `koanf:"max_delay"`
	Multiplier   float64       `koanf:"multiplier"`
}

// Resilience converts the retry budget, keeping the warehouse defaults
// for anything unset.
func (r RetryConfig) Resilience() resilience.RetryConfig {
	out := warehouse.DefaultRetryConfig()
	if r.MaxAttempts > 0 {
		out.MaxAttempts = r.MaxAttempts
	}
	if r.InitialDelay > 0 {
		out.InitialDelay = r.InitialDelay
	}
	if r.MaxDelay > 0 {
		out.MaxDelay = r.MaxDelay
	}
	if r.Multiplier > 0 {
		out.Multiplier = r.Multiplier
	}
	return out
}

// CacheConfig selects and tunes the result cache.
type CacheConfig struct {
	Enabled       bool          `koanf:"enabled"`
	Backend       string        `koanf:"backend"`
	TTL           time.Duration `koanf:"ttl"`
	MaxTTL        time.Duration `koanf:"max_ttl"`
	RedisURL      string        `koanf:"redis_url"`
	KeyPrefix     string        `koanf:"key_prefix"`
	BoltPath      string        `koanf:"bolt_path"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// Store returns the store factory settings.
func (c CacheConfig) Store() cache.StoreConfig {
	return cache.StoreConfig{
		Backend:       c.Backend,
		SweepInterval: c.SweepInterval,
		RedisURL:      c.RedisURL,
		KeyPrefix:     c.KeyPrefix,
		BoltPath:      c.BoltPath,
	}
}

// Policy returns the TTL policy. Enabled is checked by the caller, which
// builds no cache at all when it is false.
func (c CacheConfig) Policy() cache.Policy {
	return cache.Policy{DefaultTTL: c.TTL, MaxTTL: c.MaxTTL}
}

// RateLimitConfig throttles generation requests. Requests <= 0 disables it.
type RateLimitConfig struct {
	Requests int           `koanf:"requests"`
	Window   time.Duration `koanf:"window"`
	MaxWait  time.Duration `koanf:"max_wait"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ObserveConfig configures telemetry export.
type ObserveConfig struct {
	ServiceName     string  `koanf:"service_name"`
	TracingExporter string  `koanf:"tracing_exporter"`
	SamplePct       float64 `koanf:"sample_pct"`
	MetricsExporter string  `koanf:"metrics_exporter"`
}

// ExportConfig locates the query journal. An empty Path disables it.
type ExportConfig struct {
	Path string `koanf:"path"`
}

// GeneratorConfig names the external SQL generator command.
type GeneratorConfig struct {
	Command []string      `koanf:"command"`
	Timeout time.Duration `koanf:"timeout"`
}

// ServerConfig configures sqlops serve.
type ServerConfig struct {
	Addr string `koanf:"addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	wh := warehouse.DefaultConfig()
	retry := warehouse.DefaultRetryConfig()
	return Config{
		Warehouse: wh,
		Retry: RetryConfig{
			MaxAttempts:  retry.MaxAttempts,
			InitialDelay: retry.InitialDelay,
			MaxDelay:     retry.MaxDelay,
			Multiplier:   retry.Multiplier,
		},
		Cache: CacheConfig{
			Enabled:       true,
			Backend:       cache.BackendMemory,
			TTL:           cache.DefaultTTL,
			KeyPrefix:     "sqlops:",
			BoltPath:      "sqlops-cache.db",
			SweepInterval: time.Minute,
		},
		RateLimit: RateLimitConfig{Requests: 60, Window: time.Minute, MaxWait: 5 * time.Second},
		Log:       LogConfig{Level: "info", Format: "json"},
		Observe: ObserveConfig{
			ServiceName:     "sqlops",
			TracingExporter: "none",
			SamplePct:       1,
			MetricsExporter: "none",
		},
		Generator: GeneratorConfig{Timeout: time.Minute},
		Server:    ServerConfig{Addr: ":8080"},
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if err := c.Warehouse.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("%w: retry.max_attempts must be at least 1", ErrInvalid)
	}
	if c.Cache.Enabled {
		if !slices.Contains([]string{cache.BackendMemory, cache.BackendRedis, cache.BackendBolt}, c.Cache.Backend) {
			return fmt.Errorf("%w: cache.backend %q: %w", ErrInvalid, c.Cache.Backend, cache.ErrUnknownBackend)
		}
		if c.Cache.TTL < 0 || c.Cache.MaxTTL < 0 {
			return fmt.Errorf("%w: cache ttl must not be negative", ErrInvalid)
		}
		if c.Cache.Backend == cache.BackendRedis && c.Cache.RedisURL == "" {
			return fmt.Errorf("%w: cache.redis_url is required for the redis backend", ErrInvalid)
		}
	}
	if c.RateLimit.Requests > 0 && c.RateLimit.Window <= 0 {
		return fmt.Errorf("%w: ratelimit.window must be positive", ErrInvalid)
	}
	if _, err := observe.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %w", ErrInvalid, err)
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("%w: log.format %q", ErrInvalid, c.Log.Format)
	}
	oc := c.observer()
	return oc.Validate()
}

// Observer returns the telemetry settings.
func (c Config) Observer(version string) observe.Config {
	oc := c.observer()
	oc.Version = version
	return oc
}

func (c Config) observer() observe.Config {
	tracing := c.Observe.TracingExporter != "" && c.Observe.TracingExporter != "none"
	metrics := c.Observe.MetricsExporter != "" && c.Observe.MetricsExporter != "none"
	return observe.Config{
		ServiceName: c.Observe.ServiceName,
		Tracing: observe.TracingConfig{
			Enabled:   tracing,
			Exporter:  c.Observe.TracingExporter,
			SamplePct: c.Observe.SamplePct,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  metrics,
			Exporter: c.Observe.MetricsExporter,
		},
		Logging: observe.LoggingConfig{
			Enabled: true,
			Level:   c.Log.Level,
			Format:  c.Log.Format,
		},
	}
}
