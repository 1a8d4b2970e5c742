package sql

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	// The one storage backend this module runs on.
	_ "modernc.org/sqlite"

	"github.com/syssam/levis/dialect"
)

// validIdentifierRe validates SQL identifiers (table and column names).
var validIdentifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidIdentifier reports whether s is safe to interpolate into statement
// text as an identifier. Identifiers cannot be bound as parameters, so every
// statement helper validates them through this before building SQL.
func ValidIdentifier(s string) bool {
	return s != "" && len(s) <= 128 && validIdentifierRe.MatchString(s)
}

// Driver is a dialect.Driver implementation over the embedded SQLite driver.
type Driver struct {
	Conn
}

// NewDriver creates a new Driver with the given Conn.
func NewDriver(c Conn) *Driver {
	return &Driver{Conn: c}
}

// Open opens the database file at path and returns a dialect.Driver for it.
// The pool is capped at a single connection: the engine's concurrency model
// is many callers sharing one serialized connection, never a pool.
func Open(path string) (*Driver, error) {
	db, err := sql.Open(dialect.SQLite, path)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	return NewDriver(Conn{db}), nil
}

// OpenDB wraps the given database/sql.DB with a Driver.
func OpenDB(db *sql.DB) *Driver {
	return NewDriver(Conn{db})
}

// DB returns the underlying *sql.DB instance.
func (d Driver) DB() *sql.DB {
	return d.ExecQuerier.(*sql.DB)
}

// Dialect implements the dialect.Driver method.
func (d Driver) Dialect() string {
	return dialect.SQLite
}

// Close closes the underlying connection.
func (d *Driver) Close() error { return d.DB().Close() }

// VerifySerialized confirms the storage engine was compiled in serialized
// threading mode, the guarantee the shared-connection model depends on. The
// check runs once at open time; an engine reporting any other THREADSAFE
// level is unusable. A build that does not report the option at all is
// accepted, since serialized is the compiled default.
func (d *Driver) VerifySerialized(ctx context.Context) error {
	rows := &Rows{}
	if err := d.Query(ctx, "pragma compile_options;", []any{}, rows); err != nil {
		return fmt.Errorf("dialect/sql: reading compile options: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var opt string
		if err := rows.Scan(&opt); err != nil {
			return fmt.Errorf("dialect/sql: scanning compile options: %w", err)
		}
		if v, ok := strings.CutPrefix(opt, "THREADSAFE="); ok && v != "1" {
			return fmt.Errorf("dialect/sql: storage engine compiled with THREADSAFE=%s; serialized mode (THREADSAFE=1) is required", v)
		}
	}
	return rows.Err()
}

// Conn implements dialect.ExecQuerier given an ExecQuerier.
type Conn struct {
	ExecQuerier
}

// ExecQuerier wraps the standard Exec and Query methods.
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Exec implements the dialect.Exec method.
func (c Conn) Exec(ctx context.Context, query string, args, v any) error {
	argv, ok := args.([]any)
	if !ok {
		return fmt.Errorf("dialect/sql: invalid type %T. expect []any for args", args)
	}
	switch v := v.(type) {
	case nil:
		if _, err := c.ExecContext(ctx, query, argv...); err != nil {
			return fmt.Errorf("dialect/sql: exec: %w", err)
		}
	case *sql.Result:
		res, err := c.ExecContext(ctx, query, argv...)
		if err != nil {
			return fmt.Errorf("dialect/sql: exec: %w", err)
		}
		*v = res
	default:
		return fmt.Errorf("dialect/sql: invalid type %T. expect *sql.Result", v)
	}
	return nil
}

// Query implements the dialect.Query method.
func (c Conn) Query(ctx context.Context, query string, args, v any) error {
	vr, ok := v.(*Rows)
	if !ok {
		return fmt.Errorf("dialect/sql: invalid type %T. expect *sql.Rows", v)
	}
	argv, ok := args.([]any)
	if !ok {
		return fmt.Errorf("dialect/sql: invalid type %T. expect []any for args", args)
	}
	rows, err := c.QueryContext(ctx, query, argv...)
	if err != nil {
		return fmt.Errorf("dialect/sql: query: %w", err)
	}
	*vr = Rows{rows}
	return nil
}

var _ dialect.Driver = (*Driver)(nil)

type (
	// Rows wraps the sql.Rows to avoid locks copy.
	Rows struct{ ColumnScanner }
	// Result is an alias to sql.Result.
	Result = sql.Result
	// NullInt64 is an alias to sql.NullInt64.
	NullInt64 = sql.NullInt64
)

// ColumnScanner is the interface that wraps the standard
// sql.Rows methods used for scanning database rows.
type ColumnScanner interface {
	Close() error
	ColumnTypes() ([]*sql.ColumnType, error)
	Columns() ([]string, error)
	Err() error
	Next() bool
	NextResultSet() bool
	Scan(dest ...any) error
}
