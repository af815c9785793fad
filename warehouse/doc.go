// Package warehouse manages pooled, retried connections to the analytical
// warehouse.
//
// A Manager moves through Uninitialized, Connecting, Ready or Failed, and
// finally Closed. Connect runs a bounded retry policy around one attempt
// (build the pool, run a trivial round trip, introspect table names) and
// reports exhaustion as a *ConnectionError naming the host and database.
// HealthCheck never fails loudly: it answers true or false.
//
// Physical connections come from a Dialer. PgxDialer speaks the Postgres
// wire protocol (Postgres and Redshift); SQLDialer adapts any database/sql
// driver, such as DuckDB for a local warehouse.
package warehouse
