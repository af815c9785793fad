// Package cache provides the result cache for generated SQL.
//
// A ResultCache derives deterministic keys from a namespace and a payload,
// stores values with a time-to-live, and treats every backing-store failure
// as a miss. Stores are pluggable: MemoryStore for a single process,
// RedisStore for a shared cache and BoltStore for a single-host file that
// survives restarts.
package cache
