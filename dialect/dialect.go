package dialect

import (
	"context"
)

// SQLite is the name of the embedded database driver this module runs on.
const SQLite = "sqlite"

// ExecQuerier wraps the two statement operations every layer above the
// connection is written against.
//
// Exec executes a mutating statement. args is the positional parameter list
// ([]any) and v receives the outcome: it must be nil or a *sql.Result.
//
// Query executes a read statement. args is the positional parameter list
// ([]any) and v must be a *sql.Rows destination (see dialect/sql.Rows).
type ExecQuerier interface {
	Exec(ctx context.Context, query string, args, v any) error
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the connection surface shared by the whole engine. There is
// deliberately no transaction method: every statement stands alone, and
// correctness under concurrency comes from the storage engine's serialized
// access to the single shared connection.
type Driver interface {
	ExecQuerier
	// Close closes the underlying connection.
	Close() error
	// Dialect returns the name of the driver the connection was opened with.
	Dialect() string
}
