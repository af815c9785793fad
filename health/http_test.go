package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func newRoutes(results map[string]Result) http.Handler {
	agg := NewAggregator()
	for name, r := range results {
		agg.Register(name, fixed(name, r))
	}
	return Routes(agg)
}

func TestRoutes_Liveness(t *testing.T) {
	rec := serve(t, newRoutes(map[string]Result{"w": Unhealthy("down", nil)}), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestRoutes_Readiness(t *testing.T) {
	tests := []struct {
		name   string
		result Result
		code   int
		body   string
	}{
		{"healthy", Healthy("ok"), http.StatusOK, "OK"},
		{"degraded", Degraded("slow"), http.StatusOK, "DEGRADED"},
		{"unhealthy", Unhealthy("down", nil), http.StatusServiceUnavailable, "UNHEALTHY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, newRoutes(map[string]Result{"warehouse": tt.result}), "/readyz")
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.body, rec.Body.String())
		})
	}
}

func TestRoutes_Detailed(t *testing.T) {
	h := newRoutes(map[string]Result{
		"warehouse": Unhealthy("ping failed", errors.New("link down")),
		"cache":     Healthy("ok"),
	})
	rec := serve(t, h, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "link down", resp.Checks["warehouse"].Error)
	assert.Equal(t, "healthy", resp.Checks["cache"].Status)
}

func TestRoutes_SingleCheck(t *testing.T) {
	h := newRoutes(map[string]Result{
		"cache":     Degraded("circuit open"),
		"warehouse": Unhealthy("down", nil),
	})

	rec := serve(t, h, "/health/cache")
	assert.Equal(t, http.StatusOK, rec.Code)
	var check CheckResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&check))
	assert.Equal(t, "degraded", check.Status)
	assert.Equal(t, "circuit open", check.Message)

	assert.Equal(t, http.StatusServiceUnavailable, serve(t, h, "/health/warehouse").Code)

	rec = serve(t, h, "/health/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), ErrCheckerNotFound.Error())
}

func TestRoutes_MethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	newRoutes(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestDetailedHandler_RequestCancelled(t *testing.T) {
	agg := NewAggregator()
	agg.Register("slow", NewCheckerFunc("slow", func(ctx context.Context) Result {
		<-ctx.Done()
		return Unhealthy("cancelled", ctx.Err())
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := httptest.NewRecorder()
	DetailedHandler(agg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil).WithContext(ctx))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
