package warehouse

import (
	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

// OpenDuckDB returns a SQLDialer over a DuckDB database file. An empty path
// opens an in-memory database.
func OpenDuckDB(path string) (*SQLDialer, error) {
	if path == "" {
		path = ":memory:"
	}
	return OpenSQLDialer("duckdb", path)
}
