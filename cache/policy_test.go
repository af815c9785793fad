package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_EffectiveTTL(t *testing.T) {
	tests := []struct {
		name     string
		policy   Policy
		override time.Duration
		want     time.Duration
	}{
		{"default used", Policy{DefaultTTL: 5 * time.Minute, MaxTTL: 10 * time.Minute}, 0, 5 * time.Minute},
		{"negative override uses default", Policy{DefaultTTL: 5 * time.Minute}, -time.Second, 5 * time.Minute},
		{"override", Policy{DefaultTTL: 5 * time.Minute, MaxTTL: 10 * time.Minute}, 3 * time.Minute, 3 * time.Minute},
		{"clamped", Policy{DefaultTTL: 5 * time.Minute, MaxTTL: 10 * time.Minute}, 15 * time.Minute, 10 * time.Minute},
		{"default clamped", Policy{DefaultTTL: time.Hour, MaxTTL: time.Minute}, 0, time.Minute},
		{"no max", Policy{DefaultTTL: time.Minute}, 48 * time.Hour, 48 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.EffectiveTTL(tt.override))
		})
	}
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, time.Hour, p.DefaultTTL)
	assert.Zero(t, p.MaxTTL, "unbounded")
}
