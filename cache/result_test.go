package cache

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonwraymond/sqlops/health"
	"github.com/jonwraymond/sqlops/observe"
	"github.com/jonwraymond/sqlops/resilience"
)

// flakyStore wraps a Store and fails every call while failing is set.
type flakyStore struct {
	Store
	mu      sync.Mutex
	failing bool
	calls   int
}

var errStoreDown = errors.New("store down")

func (s *flakyStore) setFailing(v bool) {
	s.mu.Lock()
	s.failing = v
	s.mu.Unlock()
}

func (s *flakyStore) fail() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.failing
}

func (s *flakyStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.fail() {
		return nil, false, errStoreDown
	}
	return s.Store.Get(ctx, key)
}

func (s *flakyStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s.fail() {
		return errStoreDown
	}
	return s.Store.Set(ctx, key, value, ttl)
}

func (s *flakyStore) Delete(ctx context.Context, key string) error {
	if s.fail() {
		return errStoreDown
	}
	return s.Store.Delete(ctx, key)
}

func newTestCache(t *testing.T) (*ResultCache, *MemoryStore, *fakeClock) {
	t.Helper()
	clock := newClock()
	store := NewMemoryStore(0)
	store.now = clock.Now
	rc := NewResultCache(store, Config{})
	t.Cleanup(func() { _ = rc.Close() })
	return rc, store, clock
}

func TestResultCache_SetGet(t *testing.T) {
	rc, _, _ := newTestCache(t)
	ctx := context.Background()

	require.True(t, rc.Set(ctx, "k", "SELECT 1"))

	got, ok := rc.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "SELECT 1", got)

	_, ok = rc.Get(ctx, "unrelated")
	assert.False(t, ok, "unrelated key must miss")
}

func TestResultCache_Overwrite(t *testing.T) {
	rc, _, _ := newTestCache(t)
	ctx := context.Background()

	rc.Set(ctx, "k", "v1")
	rc.Set(ctx, "k", "v2")

	got, ok := rc.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "v2", got)
}

func TestResultCache_TTLExpiry(t *testing.T) {
	rc, _, clock := newTestCache(t)
	ctx := context.Background()

	rc.Set(ctx, "k", "v", time.Second)

	clock.Advance(500 * time.Millisecond)
	_, ok := rc.Get(ctx, "k")
	assert.True(t, ok, "readable before expiry")

	clock.Advance(2 * time.Second)
	_, ok = rc.Get(ctx, "k")
	assert.False(t, ok, "absent after expiry")
}

func TestResultCache_DefaultAndMaxTTL(t *testing.T) {
	clock := newClock()
	store := NewMemoryStore(0)
	store.now = clock.Now
	rc := NewResultCache(store, Config{Policy: Policy{MaxTTL: 10 * time.Minute}})
	ctx := context.Background()

	rc.Set(ctx, "default", "v")
	rc.Set(ctx, "long", "v", 24*time.Hour)

	clock.Advance(10 * time.Minute)
	_, ok := rc.Get(ctx, "long")
	assert.False(t, ok, "override ttl should be clamped to MaxTTL")
	_, ok = rc.Get(ctx, "default")
	assert.False(t, ok, "default ttl of 1h should be clamped to MaxTTL")
}

func TestResultCache_DefaultTTLIsOneHour(t *testing.T) {
	rc, _, clock := newTestCache(t)
	ctx := context.Background()

	rc.Set(ctx, "k", "v")

	clock.Advance(time.Hour - time.Second)
	_, ok := rc.Get(ctx, "k")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = rc.Get(ctx, "k")
	assert.False(t, ok)
}

func TestResultCache_CacheResultRoundTrip(t *testing.T) {
	rc, _, _ := newTestCache(t)
	ctx := context.Background()

	question := "how many orders shipped yesterday?"
	sql := "SELECT count(*) FROM orders WHERE shipped_at::date = current_date - 1"

	require.True(t, rc.CacheResult(ctx, question, sql))

	got, ok := rc.GetCachedResult(ctx, question)
	require.True(t, ok)
	assert.Equal(t, sql, got)

	_, ok = rc.GetCachedResult(ctx, "a different question")
	assert.False(t, ok)

	got, ok = rc.Get(ctx, rc.GenerateKey(ResultNamespace, question))
	require.True(t, ok, "CacheResult must use the sql-result namespace")
	assert.Equal(t, sql, got)
}

func TestResultCache_Delete(t *testing.T) {
	rc, _, _ := newTestCache(t)
	ctx := context.Background()

	rc.Set(ctx, "k", "v")
	rc.Delete(ctx, "k")
	_, ok := rc.Get(ctx, "k")
	assert.False(t, ok)
}

func TestResultCache_AnyKeyRoundTrips(t *testing.T) {
	rc, _, _ := newTestCache(t)
	ctx := context.Background()

	keys := map[string]string{
		"newline":           "line\nbreak",
		"carriage return":   "cr\rkey",
		"long":              strings.Repeat("k", 600),
		"empty":             "",
		"long namespace":    rc.GenerateKey(strings.Repeat("n", 500), "p"),
		"newline namespace": rc.GenerateKey("multi\nline", "p"),
	}

	for name, key := range keys {
		t.Run(name, func(t *testing.T) {
			require.True(t, rc.Set(ctx, key, "v-"+name))
			got, ok := rc.Get(ctx, key)
			require.True(t, ok)
			assert.Equal(t, "v-"+name, got)

			rc.Delete(ctx, key)
			_, ok = rc.Get(ctx, key)
			assert.False(t, ok)
		})
	}
	assert.Equal(t, int64(0), rc.Stats().Errors)
}

func TestResultCache_AnyKeyRoundTripsOnBolt(t *testing.T) {
	rc := NewResultCache(openBolt(t), Config{})
	ctx := context.Background()

	for _, key := range []string{"", "line\nbreak", strings.Repeat("k", 40000)} {
		require.True(t, rc.Set(ctx, key, "v"), "Set(%.20q)", key)
		got, ok := rc.Get(ctx, key)
		require.True(t, ok, "Get(%.20q)", key)
		assert.Equal(t, "v", got)
	}
}

func TestNamespaceOf(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"sql-result:abc", "sql-result"},
		{NewDefaultKeyer().Key("multi\nline", "p"), keyPrefix("multi\nline")},
		{"no-separator", RawNamespace},
		{strings.Repeat("x", 600), RawNamespace},
		{":leading", RawNamespace},
		{"has space:v", RawNamespace},
		{"", RawNamespace},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, namespaceOf(tt.key), "namespaceOf(%.20q)", tt.key)
	}
}

func TestResultCache_StoreFailureIsMiss(t *testing.T) {
	store := &flakyStore{Store: NewMemoryStore(0), failing: true}
	rc := NewResultCache(store, Config{})
	ctx := context.Background()

	assert.False(t, rc.CacheResult(ctx, "q", "SELECT 1"), "failed store write reports false")

	_, ok := rc.GetCachedResult(ctx, "q")
	assert.False(t, ok, "failed store read is a miss")

	st := rc.Stats()
	assert.Equal(t, int64(2), st.Errors)
	assert.Equal(t, int64(1), st.Misses)
	assert.Equal(t, int64(0), st.Sets)
}

func TestResultCache_CircuitOpensAndRecovers(t *testing.T) {
	store := &flakyStore{Store: NewMemoryStore(0), failing: true}
	rc := NewResultCache(store, Config{
		Breaker: resilience.CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: 20 * time.Millisecond},
	})
	ctx := context.Background()

	rc.Get(ctx, "k")
	rc.Get(ctx, "k")
	require.Equal(t, resilience.StateOpen, rc.Stats().Circuit)

	callsBefore := store.calls
	_, ok := rc.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, callsBefore, store.calls, "open circuit must not touch the store")
	assert.Equal(t, int64(1), rc.Stats().Rejected)
	assert.Equal(t, health.StatusDegraded, rc.Check(ctx).Status)

	store.setFailing(false)
	time.Sleep(30 * time.Millisecond)

	require.True(t, rc.Set(ctx, "k", "v"), "half-open trial succeeds")
	assert.Equal(t, resilience.StateClosed, rc.Stats().Circuit)
	got, ok := rc.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, "v", got)
}

func TestResultCache_RedisServerDown(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := NewRedisStore(context.Background(), RedisOptions{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	rc := NewResultCache(store, Config{Backend: BackendRedis})
	defer rc.Close()
	ctx := context.Background()

	require.True(t, rc.CacheResult(ctx, "q", "SELECT 1"))
	assert.Equal(t, health.StatusHealthy, rc.Check(ctx).Status)

	mr.Close()

	_, ok := rc.GetCachedResult(ctx, "q")
	assert.False(t, ok, "unreachable redis is a miss")
	assert.False(t, rc.CacheResult(ctx, "q2", "SELECT 2"))
	assert.Equal(t, health.StatusUnhealthy, rc.Check(ctx).Status)
}

func TestResultCache_Stats(t *testing.T) {
	rc, _, _ := newTestCache(t)
	ctx := context.Background()

	rc.CacheResult(ctx, "q", "SELECT 1")
	rc.GetCachedResult(ctx, "q")
	rc.GetCachedResult(ctx, "q")
	rc.GetCachedResult(ctx, "other")

	st := rc.Stats()
	assert.Equal(t, int64(2), st.Hits)
	assert.Equal(t, int64(1), st.Misses)
	assert.Equal(t, int64(1), st.Sets)
	assert.InDelta(t, 2.0/3.0, st.HitRate(), 1e-9)
	assert.Zero(t, Stats{}.HitRate())
}

func TestResultCache_Close(t *testing.T) {
	rc, _, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, rc.Close())
	require.NoError(t, rc.Close(), "Close is idempotent")

	assert.False(t, rc.Set(ctx, "k", "v"))
	_, ok := rc.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, health.StatusUnhealthy, rc.Check(ctx).Status)
}

func TestResultCache_LogsStoreFailures(t *testing.T) {
	var buf bytes.Buffer
	store := &flakyStore{Store: NewMemoryStore(0), failing: true}
	rc := NewResultCache(store, Config{Logger: observe.NewLoggerWithWriter("warn", &buf)})

	rc.Set(context.Background(), "k", "v")

	assert.Contains(t, buf.String(), "cache store failure")
	assert.Contains(t, buf.String(), `"component":"cache"`)
	assert.Contains(t, buf.String(), "store down")
}

func TestResultCache_ConcurrentAccess(t *testing.T) {
	rc, _, _ := newTestCache(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q := string(rune('a' + i%5))
			rc.CacheResult(ctx, q, "SELECT "+q)
			if got, ok := rc.GetCachedResult(ctx, q); ok {
				assert.Equal(t, "SELECT "+q, got)
			}
		}(i)
	}
	wg.Wait()
}
