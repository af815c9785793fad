package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jonwraymond/sqlops/cache"
	"github.com/jonwraymond/sqlops/warehouse"
)

func validConfig() Config {
	c := Default()
	c.Warehouse.Host = "warehouse.internal"
	c.Warehouse.Database = "analytics"
	return c
}

func TestDefault(t *testing.T) {
	d := Default()
	assert.Equal(t, cache.DefaultTTL, d.Cache.TTL)
	assert.Equal(t, 10*time.Second, d.Warehouse.Pool.AcquireTimeout)
	assert.Equal(t, 2, d.Retry.MaxAttempts)
	assert.NoError(t, validConfig().Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Warehouse.Port = 70000 }},
		{"no retries", func(c *Config) { c.Retry.MaxAttempts = 0 }},
		{"unknown backend", func(c *Config) { c.Cache.Backend = "memcached" }},
		{"negative ttl", func(c *Config) { c.Cache.TTL = -time.Second }},
		{"redis without url", func(c *Config) { c.Cache.Backend = cache.BackendRedis }},
		{"zero window", func(c *Config) { c.RateLimit.Window = 0 }},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }},
		{"bad exporter", func(c *Config) { c.Observe.TracingExporter = "zipkin" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestValidate_DisabledCacheSkipsBackend(t *testing.T) {
	c := validConfig()
	c.Cache.Enabled = false
	c.Cache.Backend = "memcached"
	assert.NoError(t, c.Validate())
}

func TestRetryConfig_Resilience(t *testing.T) {
	got := RetryConfig{MaxAttempts: 4}.Resilience()
	want := warehouse.DefaultRetryConfig()
	assert.Equal(t, 4, got.MaxAttempts)
	assert.Equal(t, want.InitialDelay, got.InitialDelay)
	assert.Equal(t, want.MaxDelay, got.MaxDelay)
	assert.Equal(t, want.Multiplier, got.Multiplier)
}

func TestCacheConfig(t *testing.T) {
	c := Default().Cache
	c.MaxTTL = 2 * time.Hour
	assert.Equal(t, cache.Policy{DefaultTTL: time.Hour, MaxTTL: 2 * time.Hour}, c.Policy())

	sc := c.Store()
	assert.Equal(t, cache.BackendMemory, sc.Backend)
	assert.Equal(t, "sqlops:", sc.KeyPrefix)
}

func TestObserver(t *testing.T) {
	c := validConfig()
	oc := c.Observer("v1.2.3")
	assert.Equal(t, "sqlops", oc.ServiceName)
	assert.Equal(t, "v1.2.3", oc.Version)
	assert.False(t, oc.Tracing.Enabled)
	assert.False(t, oc.Metrics.Enabled)
	assert.True(t, oc.Logging.Enabled)

	c.Observe.MetricsExporter = "prometheus"
	assert.True(t, c.Observer("").Metrics.Enabled)
}
