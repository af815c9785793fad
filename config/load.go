package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/jonwraymond/sqlops/secret"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SQLOPS_"

// DefaultFiles are tried in order when no path is given.
var DefaultFiles = []string{"sqlops.yaml", "sqlops.yml"}

// flagKeys maps CLI flag names onto config keys. Flags not listed here are
// command options, not configuration.
var flagKeys = map[string]string{
	"log-level":     "log.level",
	"log-format":    "log.format",
	"driver":        "warehouse.driver",
	"host":          "warehouse.host",
	"port":          "warehouse.port",
	"database":      "warehouse.database",
	"schema":        "warehouse.schema",
	"cache-backend": "cache.backend",
	"no-cache":      "cache.enabled",
	"export":        "export.path",
	"addr":          "server.addr",
}

// Options controls Load.
type Options struct {
	// Path is an explicit config file. It must exist when set.
	Path string

	// Flags are applied last; only flags the user changed take effect.
	Flags *pflag.FlagSet

	// Resolver resolves credential fields. Default: env and file
	// providers, with file refs relative to the config file's directory.
	Resolver *secret.Resolver
}

// Loaded is a validated configuration and where it came from.
type Loaded struct {
	Config
	File string
}

// Load layers defaults, file, environment and flags, resolves secrets and
// validates the result.
func Load(ctx context.Context, opts Options) (*Loaded, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	path, err := findFile(opts.Path)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	if opts.Flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(opts.Flags, ".", k, flagKey(opts.Flags)), nil); err != nil {
			return nil, fmt.Errorf("config: load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	resolver := opts.Resolver
	if resolver == nil {
		dir := ""
		if path != "" {
			dir = filepath.Dir(path)
		}
		resolver = secret.NewDefaultResolver(dir)
	}
	if err := resolver.ResolveAll(ctx, map[string]*string{
		"warehouse.host":     &cfg.Warehouse.Host,
		"warehouse.user":     &cfg.Warehouse.User,
		"warehouse.password": &cfg.Warehouse.Password,
		"warehouse.database": &cfg.Warehouse.Database,
		"cache.redis_url":    &cfg.Cache.RedisURL,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Loaded{Config: cfg, File: path}, nil
}

func findFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config: %w", err)
		}
		return explicit, nil
	}
	for _, name := range DefaultFiles {
		_, err := os.Stat(name)
		if err == nil {
			return name, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("config: %w", err)
		}
	}
	return "", nil
}

// envKey maps SQLOPS_CACHE__REDIS_URL to cache.redis_url.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func flagKey(fs *pflag.FlagSet) func(*pflag.Flag) (string, any) {
	return func(f *pflag.Flag) (string, any) {
		key, ok := flagKeys[f.Name]
		if !ok || !f.Changed {
			return "", nil
		}
		if f.Name == "no-cache" {
			v, _ := fs.GetBool(f.Name)
			return key, !v
		}
		return key, posflag.FlagVal(fs, f)
	}
}

func defaults() map[string]any {
	d := Default()
	return map[string]any{
		"warehouse.driver":                d.Warehouse.Driver,
		"warehouse.port":                  d.Warehouse.Port,
		"warehouse.schema":                d.Warehouse.Schema,
		"warehouse.sslmode":               d.Warehouse.SSLMode,
		"warehouse.connect_timeout":       d.Warehouse.ConnectTimeout,
		"warehouse.application_name":      d.Warehouse.ApplicationName,
		"warehouse.pool.size":             d.Warehouse.Pool.Size,
		"warehouse.pool.max_overflow":     d.Warehouse.Pool.MaxOverflow,
		"warehouse.pool.acquire_timeout":  d.Warehouse.Pool.AcquireTimeout,
		"warehouse.pool.recycle_interval": d.Warehouse.Pool.RecycleInterval,
		"warehouse.pool.pre_ping":         d.Warehouse.Pool.PrePing,
		"retry.max_attempts":              d.Retry.MaxAttempts,
		"retry.initial_delay":             d.Retry.InitialDelay,
		"retry.max_delay":                 d.Retry.MaxDelay,
		"retry.multiplier":                d.Retry.Multiplier,
		"cache.enabled":                   d.Cache.Enabled,
		"cache.backend":                   d.Cache.Backend,
		"cache.ttl":                       d.Cache.TTL,
		"cache.key_prefix":                d.Cache.KeyPrefix,
		"cache.bolt_path":                 d.Cache.BoltPath,
		"cache.sweep_interval":            d.Cache.SweepInterval,
		"ratelimit.requests":              d.RateLimit.Requests,
		"ratelimit.window":                d.RateLimit.Window,
		"ratelimit.max_wait":              d.RateLimit.MaxWait,
		"log.level":                       d.Log.Level,
		"log.format":                      d.Log.Format,
		"observe.service_name":            d.Observe.ServiceName,
		"observe.tracing_exporter":        d.Observe.TracingExporter,
		"observe.sample_pct":              d.Observe.SamplePct,
		"observe.metrics_exporter":        d.Observe.MetricsExporter,
		"generator.timeout":               d.Generator.Timeout,
		"server.addr":                     d.Server.Addr,
	}
}
