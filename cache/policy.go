package cache

import "time"

// DefaultTTL is the lifetime of a cached result when none is given.
const DefaultTTL = time.Hour

// Policy bounds entry lifetimes.
type Policy struct {
	// DefaultTTL applies to writes that carry no TTL. ResultCache replaces
	// zero with the package DefaultTTL.
	DefaultTTL time.Duration

	// MaxTTL clamps every TTL. Zero means unbounded.
	MaxTTL time.Duration
}

// DefaultPolicy is a one hour TTL with no ceiling.
func DefaultPolicy() Policy {
	return Policy{DefaultTTL: DefaultTTL}
}

// EffectiveTTL resolves a per-call override against the policy.
func (p Policy) EffectiveTTL(override time.Duration) time.Duration {
	ttl := p.DefaultTTL
	if override > 0 {
		ttl = override
	}
	if p.MaxTTL > 0 {
		ttl = min(ttl, p.MaxTTL)
	}
	return ttl
}
