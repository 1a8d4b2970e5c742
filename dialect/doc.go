// Package dialect defines the connection interfaces the levis engine is
// written against.
//
// The engine runs on exactly one backend, the embedded SQLite driver
// (modernc.org/sqlite), identified by the dialect.SQLite constant. The
// interfaces still separate "what the engine needs" from "how statements are
// executed" so that the statement layer can be wrapped with logging and
// statistics collectors (see dialect/sql.DebugDriver and
// dialect/sql.StatsDriver) without the engine knowing.
//
// # Driver Interface
//
// The Driver interface is the full connection surface:
//
//	type Driver interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	    Close() error
//	    Dialect() string
//	}
//
// There is no transaction interface: multi-statement transactions are outside
// this module's design, every statement stands alone.
//
// # ExecQuerier Interface
//
// ExecQuerier is the two-method subset used by the statement helpers in
// dialect/sql:
//
//	type ExecQuerier interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	}
package dialect
