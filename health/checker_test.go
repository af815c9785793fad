package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusHealthy, "healthy"},
		{StatusDegraded, "degraded"},
		{StatusUnhealthy, "unhealthy"},
		{Status(42), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.String())
	}
}

func TestResultConstructors(t *testing.T) {
	err := errors.New("boom")

	h := Healthy("ok")
	assert.Equal(t, StatusHealthy, h.Status)
	assert.False(t, h.Timestamp.IsZero())

	assert.Equal(t, StatusDegraded, Degraded("slow").Status)

	u := Unhealthy("down", err)
	assert.Equal(t, StatusUnhealthy, u.Status)
	assert.Same(t, err, u.Error)

	r := h.WithDetails(map[string]any{"k": 1}).WithDuration(time.Second)
	assert.Equal(t, 1, r.Details["k"])
	assert.Equal(t, time.Second, r.Duration)
	assert.Nil(t, h.Details, "WithDetails returns a copy")
}

func TestNewPingChecker(t *testing.T) {
	var fail error
	c := NewPingChecker("redis", func(context.Context) error { return fail })
	assert.Equal(t, "redis", c.Name())
	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)

	fail = errors.New("connection refused")
	r := c.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, r.Status)
	assert.Equal(t, "redis unreachable", r.Message)
	assert.ErrorIs(t, r.Error, fail)
}
