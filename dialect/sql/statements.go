package sql

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/syssam/levis/dialect"
)

// Column storage types. These are the only classes a column can be declared
// with; the primary key is always the integer rowid alias.
const (
	TypePrimaryKey = "integer primary key"
	TypeInteger    = "integer"
	TypeReal       = "real"
	TypeText       = "text"
	TypeBlob       = "blob"
)

// Op is a comparison operator usable in a Scan filter.
type Op int

// Supported comparison operators. Filters are conjunctive; there is no OR
// and no nesting.
const (
	OpEQ Op = iota
	OpLT
	OpLTE
	OpGT
	OpGTE
)

// Pred is one (column, operator, argument) conjunct of a Scan filter.
type Pred struct {
	Col string
	Op  Op
	Arg any
}

// Order is one sort key of a Scan.
type Order struct {
	Col  string
	Desc bool
}

// Scan describes one table read or matched delete: conjunctive filters, sort
// keys and an optional window. Offset and Limit are -1 when unset, which is
// why Scan values must be built with NewScan, not as zero values (a zero
// window would mean "offset 0, limit 0").
type Scan struct {
	Table  string
	Preds  []Pred
	Orders []Order
	Offset int64
	Limit  int64
}

// NewScan returns a Scan over the given table with no filters and no window.
func NewScan(table string) Scan {
	return Scan{Table: table, Offset: -1, Limit: -1}
}

// cond translates one predicate into a squirrel condition.
func cond(p Pred) (sq.Sqlizer, error) {
	switch p.Op {
	case OpEQ:
		return sq.Eq{p.Col: p.Arg}, nil
	case OpLT:
		return sq.Lt{p.Col: p.Arg}, nil
	case OpLTE:
		return sq.LtOrEq{p.Col: p.Arg}, nil
	case OpGT:
		return sq.Gt{p.Col: p.Arg}, nil
	case OpGTE:
		return sq.GtOrEq{p.Col: p.Arg}, nil
	default:
		return nil, fmt.Errorf("dialect/sql: unknown comparison operator %d", p.Op)
	}
}

// selector builds the parameterized select for this scan. The window is
// rendered as a bound "LIMIT ? OFFSET ?" pair; an offset with no limit uses
// LIMIT -1, since the engine accepts OFFSET only after a LIMIT.
func (s Scan) selector(cols ...string) (sq.SelectBuilder, error) {
	var zero sq.SelectBuilder
	if !ValidIdentifier(s.Table) {
		return zero, fmt.Errorf("dialect/sql: invalid table name %q", s.Table)
	}
	for _, c := range cols {
		if !ValidIdentifier(c) {
			return zero, fmt.Errorf("dialect/sql: invalid column name %q", c)
		}
	}
	b := sq.Select(cols...).From(s.Table)
	for _, p := range s.Preds {
		if !ValidIdentifier(p.Col) {
			return zero, fmt.Errorf("dialect/sql: invalid column name %q", p.Col)
		}
		c, err := cond(p)
		if err != nil {
			return zero, err
		}
		b = b.Where(c)
	}
	if len(s.Orders) > 0 {
		keys := make([]string, len(s.Orders))
		for i, o := range s.Orders {
			if !ValidIdentifier(o.Col) {
				return zero, fmt.Errorf("dialect/sql: invalid column name %q", o.Col)
			}
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			keys[i] = o.Col + " " + dir
		}
		b = b.OrderBy(keys...)
	}
	if s.Offset >= 0 || s.Limit >= 0 {
		limit := s.Limit
		if limit < 0 {
			limit = -1
		}
		offset := s.Offset
		if offset < 0 {
			offset = 0
		}
		b = b.Suffix("LIMIT ? OFFSET ?", limit, offset)
	}
	return b, nil
}

// Select executes the scan and returns the rows for the requested columns.
// The caller owns the returned rows and must close them.
func Select(ctx context.Context, drv dialect.ExecQuerier, cols []string, s Scan) (*Rows, error) {
	b, err := s.selector(cols...)
	if err != nil {
		return nil, err
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: building select: %w", err)
	}
	rows := &Rows{}
	if err := drv.Query(ctx, query, args, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// SelectCount returns the number of rows matching the scan's filters. The
// scan's sort keys and window are ignored: a count is over the whole matched
// set, never over a page of it.
func SelectCount(ctx context.Context, drv dialect.ExecQuerier, s Scan) (int64, error) {
	if !ValidIdentifier(s.Table) {
		return 0, fmt.Errorf("dialect/sql: invalid table name %q", s.Table)
	}
	b := sq.Select("count(*)").From(s.Table)
	for _, p := range s.Preds {
		if !ValidIdentifier(p.Col) {
			return 0, fmt.Errorf("dialect/sql: invalid column name %q", p.Col)
		}
		c, err := cond(p)
		if err != nil {
			return 0, err
		}
		b = b.Where(c)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("dialect/sql: building count: %w", err)
	}
	rows := &Rows{}
	if err := drv.Query(ctx, query, args, rows); err != nil {
		return 0, err
	}
	defer rows.Close()
	var n int64
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, fmt.Errorf("dialect/sql: counting rows: %w", err)
		}
		return 0, fmt.Errorf("dialect/sql: count returned no rows")
	}
	if err := rows.Scan(&n); err != nil {
		return 0, fmt.Errorf("dialect/sql: scanning count: %w", err)
	}
	return n, rows.Err()
}

// Insert inserts one row and returns the id assigned by the storage engine.
// When the column list carries an explicit id the returned value matches it.
func Insert(ctx context.Context, drv dialect.ExecQuerier, table string, cols []string, vals []any) (int64, error) {
	if !ValidIdentifier(table) {
		return 0, fmt.Errorf("dialect/sql: invalid table name %q", table)
	}
	for _, c := range cols {
		if !ValidIdentifier(c) {
			return 0, fmt.Errorf("dialect/sql: invalid column name %q", c)
		}
	}
	if len(cols) != len(vals) {
		return 0, fmt.Errorf("dialect/sql: insert into %s: %d columns but %d values", table, len(cols), len(vals))
	}
	query, args, err := sq.Insert(table).Columns(cols...).Values(vals...).ToSql()
	if err != nil {
		return 0, fmt.Errorf("dialect/sql: building insert: %w", err)
	}
	var res Result
	if err := drv.Exec(ctx, query, args, &res); err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("dialect/sql: reading inserted id: %w", err)
	}
	return id, nil
}

// UpdateByKey overwrites the given columns of the rows whose key column
// equals keyVal. The engine always calls it with the full column set of one
// row: a save is a whole-row overwrite, not a diff.
func UpdateByKey(ctx context.Context, drv dialect.ExecQuerier, table, key string, keyVal any, cols []string, vals []any) error {
	if !ValidIdentifier(table) {
		return fmt.Errorf("dialect/sql: invalid table name %q", table)
	}
	if !ValidIdentifier(key) {
		return fmt.Errorf("dialect/sql: invalid column name %q", key)
	}
	if len(cols) != len(vals) {
		return fmt.Errorf("dialect/sql: update %s: %d columns but %d values", table, len(cols), len(vals))
	}
	b := sq.Update(table)
	for i, c := range cols {
		if !ValidIdentifier(c) {
			return fmt.Errorf("dialect/sql: invalid column name %q", c)
		}
		b = b.Set(c, vals[i])
	}
	query, args, err := b.Where(sq.Eq{key: keyVal}).ToSql()
	if err != nil {
		return fmt.Errorf("dialect/sql: building update: %w", err)
	}
	return drv.Exec(ctx, query, args, nil)
}

// DeleteByKey deletes the rows whose key column equals keyVal. Deleting a
// key that matches nothing is a no-op, which is what makes re-entrant
// cascade deletion safe.
func DeleteByKey(ctx context.Context, drv dialect.ExecQuerier, table, key string, keyVal any) error {
	if !ValidIdentifier(table) {
		return fmt.Errorf("dialect/sql: invalid table name %q", table)
	}
	if !ValidIdentifier(key) {
		return fmt.Errorf("dialect/sql: invalid column name %q", key)
	}
	query, args, err := sq.Delete(table).Where(sq.Eq{key: keyVal}).ToSql()
	if err != nil {
		return fmt.Errorf("dialect/sql: building delete: %w", err)
	}
	return drv.Exec(ctx, query, args, nil)
}

// DeleteMatching deletes every row the scan matches, honoring its filters,
// order and window through a rowid subselect.
func DeleteMatching(ctx context.Context, drv dialect.ExecQuerier, s Scan) error {
	inner, err := s.selector("rowid")
	if err != nil {
		return err
	}
	iq, iargs, err := inner.ToSql()
	if err != nil {
		return fmt.Errorf("dialect/sql: building delete subselect: %w", err)
	}
	query, args, err := sq.Delete(s.Table).Where(sq.Expr("rowid IN ("+iq+")", iargs...)).ToSql()
	if err != nil {
		return fmt.Errorf("dialect/sql: building delete: %w", err)
	}
	return drv.Exec(ctx, query, args, nil)
}

// ColumnSpec describes one column of a table to create.
type ColumnSpec struct {
	Name     string
	Type     string
	Nullable bool
	Unique   bool
}

// TableSpec describes a table to create.
type TableSpec struct {
	Name    string
	Columns []ColumnSpec
}

// CreateTable creates the table described by t. Reference columns are plain
// integers: integrity propagation on delete belongs to the engine's cascade
// layer, so no foreign key actions are emitted.
func CreateTable(ctx context.Context, drv dialect.ExecQuerier, t TableSpec) error {
	if !ValidIdentifier(t.Name) {
		return fmt.Errorf("dialect/sql: invalid table name %q", t.Name)
	}
	parts := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if !ValidIdentifier(c.Name) {
			return fmt.Errorf("dialect/sql: invalid column name %q", c.Name)
		}
		switch c.Type {
		case TypePrimaryKey, TypeInteger, TypeReal, TypeText, TypeBlob:
		default:
			return fmt.Errorf("dialect/sql: invalid column type %q for %s.%s", c.Type, t.Name, c.Name)
		}
		p := c.Name + " " + c.Type
		if c.Nullable {
			p += " null"
		} else {
			p += " not null"
		}
		if c.Unique {
			p += " unique"
		}
		parts = append(parts, p)
	}
	stmt := "create table " + t.Name + " (" + strings.Join(parts, ", ") + ");"
	return drv.Exec(ctx, stmt, []any{}, nil)
}
