package database

import "context"

// DB is the central contract for all database operations.
// All layers above this package talk only to this interface;
// they never import the driver packages directly.
type DB interface {
	// Driver reports which engine backs this connection.
	Driver() Driver

	// Ping verifies the database is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the connection pool.
	Close()

	// Query executes a SQL statement that returns rows. Drivers run it
	// with whatever read-only protection their engine offers.
	Query(ctx context.Context, sql string, args ...any) (Rows, error)

	// ListTables returns all user-defined table names, sorted.
	ListTables(ctx context.Context) ([]string, error)

	// InspectSchema returns the full schema of the database.
	// This is an expensive operation; callers should cache the result.
	InspectSchema(ctx context.Context) (*Schema, error)
}

// Rows is an abstraction over a database result set.
// Callers must always call Close() when done, even on error.
type Rows interface {
	// Next advances to the next row.
	// Returns false when no more rows exist or on error.
	Next() bool

	// Scan copies the current row's columns into the provided destinations.
	Scan(dest ...any) error

	// Columns returns the column names of the result set.
	Columns() ([]string, error)

	// Close releases resources held by the result set.
	Close()

	// Err returns any error encountered during iteration.
	Err() error
}
