package levis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/syssam/levis/dialect"
	"github.com/syssam/levis/dialect/sql"
)

// A Predicate is one field comparison of a query filter. Predicates are
// built with Eq, Lt, Lte, Gt and Gte and combine conjunctively: a query
// matches the rows every predicate accepts.
type Predicate struct {
	field string
	op    sql.Op
	value any
}

// Eq matches rows whose field equals v. On reference fields v must be a
// saved instance of the referenced entity, or nil to match null references.
func Eq(field string, v any) Predicate {
	return Predicate{field: field, op: sql.OpEQ, value: v}
}

// Lt matches rows whose field is less than v.
func Lt(field string, v any) Predicate {
	return Predicate{field: field, op: sql.OpLT, value: v}
}

// Lte matches rows whose field is less than or equal to v.
func Lte(field string, v any) Predicate {
	return Predicate{field: field, op: sql.OpLTE, value: v}
}

// Gt matches rows whose field is greater than v.
func Gt(field string, v any) Predicate {
	return Predicate{field: field, op: sql.OpGT, value: v}
}

// Gte matches rows whose field is greater than or equal to v.
func Gte(field string, v any) Predicate {
	return Predicate{field: field, op: sql.OpGTE, value: v}
}

// A Query describes one read over an entity's instances: conjunctive
// filters, sort keys and an optional window. Queries are plain values;
// every refinement returns a new Query and leaves the receiver untouched,
// so a base query can be refined in several directions:
//
//	adults := user.Query().Where(levis.Gte("age", 18))
//	page, err := adults.OrderBy("name").Limit(10).All(ctx)
//	total, err := adults.Count(ctx)
//
// Nothing executes until a terminal operation runs. Builder misuse, such as
// filtering twice on one field or setting a negative window, is remembered
// and surfaces as a QueryError from the terminal.
type Query struct {
	entity *Entity
	preds  []Predicate
	orders []string
	offset int64 // -1 while unset
	limit  int64 // -1 while unset
	err    error
}

// Query starts a query over every instance of the entity.
func (e *Entity) Query() Query {
	return Query{entity: e, offset: -1, limit: -1}
}

// Get returns the instance with the given id, or a NotFoundError carrying
// the id when no such row exists.
func (e *Entity) Get(ctx context.Context, id int64) (*Object, error) {
	o, err := e.GetOpt(ctx, id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, NewNotFoundErrorWithID(e.name, id)
	}
	return o, nil
}

// GetOpt returns the instance with the given id, or nil with no error when
// no such row exists.
func (e *Entity) GetOpt(ctx context.Context, id int64) (*Object, error) {
	return e.Query().Where(Eq("id", id)).OnlyOrNil(ctx)
}

// fail records the first builder error; later refinements and terminals
// keep reporting it.
func (q Query) fail(err error) Query {
	if q.err == nil {
		q.err = err
	}
	return q
}

// Where adds predicates to the filter. Each field may be filtered at most
// once across the whole query; filtering an already filtered field again is
// a builder error, reported when the query runs.
func (q Query) Where(preds ...Predicate) Query {
	if q.err != nil {
		return q
	}
	seen := make(map[string]bool, len(q.preds)+len(preds))
	for _, p := range q.preds {
		seen[p.field] = true
	}
	next := make([]Predicate, 0, len(q.preds)+len(preds))
	next = append(next, q.preds...)
	for _, p := range preds {
		if seen[p.field] {
			return q.fail(fmt.Errorf("query is already filtered on %q", p.field))
		}
		seen[p.field] = true
		next = append(next, p)
	}
	q.preds = next
	return q
}

// OrderBy replaces the sort keys. A key is a field name with an optional
// direction prefix: "name" and "+name" sort ascending, "-name" descending.
// A later call replaces the keys of an earlier one rather than extending
// them.
func (q Query) OrderBy(keys ...string) Query {
	if q.err != nil {
		return q
	}
	q.orders = append([]string(nil), keys...)
	return q
}

// Offset skips the first n matching rows. It can be set once per query and
// only to a non-negative value.
func (q Query) Offset(n int64) Query {
	if q.err != nil {
		return q
	}
	if n < 0 {
		return q.fail(fmt.Errorf("negative offset %d; reverse the ordering and window the front instead", n))
	}
	if q.offset >= 0 {
		return q.fail(fmt.Errorf("query offset already set to %d", q.offset))
	}
	q.offset = n
	return q
}

// Limit caps the number of rows the query yields. It can be set once per
// query and only to a non-negative value; Limit(0) is legal and matches
// nothing.
func (q Query) Limit(n int64) Query {
	if q.err != nil {
		return q
	}
	if n < 0 {
		return q.fail(fmt.Errorf("negative limit %d; reverse the ordering and offset the front instead", n))
	}
	if q.limit >= 0 {
		return q.fail(fmt.Errorf("query limit already set to %d", q.limit))
	}
	q.limit = n
	return q
}

// capped returns a copy whose limit is at most n, bypassing the set-once
// rule. Terminals that only distinguish zero, one and many rows use it to
// avoid reading more than that.
func (q Query) capped(n int64) Query {
	if q.err == nil && (q.limit < 0 || q.limit > n) {
		q.limit = n
	}
	return q
}

func (q Query) wrap(op string, err error) error {
	return NewQueryError(q.entity.name, op, err)
}

// compile resolves the entity schema and translates the query into the
// dialect's scan description: field names become columns and filter values
// take their storage form, under the same conversion rules as assignment.
func (q Query) compile() (*entitySchema, sql.Scan, error) {
	s, err := q.entity.resolve()
	if err != nil {
		return nil, sql.Scan{}, err
	}
	if q.err != nil {
		return nil, sql.Scan{}, q.err
	}
	scan := sql.NewScan(s.table)
	scan.Offset, scan.Limit = q.offset, q.limit
	for _, p := range q.preds {
		col, ok := s.column(p.field)
		if !ok {
			return nil, sql.Scan{}, NewValidationError(p.field, errors.New("unknown field"))
		}
		arg, err := s.filterArg(p.field, p.value)
		if err != nil {
			return nil, sql.Scan{}, err
		}
		scan.Preds = append(scan.Preds, sql.Pred{Col: col, Op: p.op, Arg: arg})
	}
	for _, key := range q.orders {
		name, desc := key, false
		switch {
		case strings.HasPrefix(key, "-"):
			name, desc = key[1:], true
		case strings.HasPrefix(key, "+"):
			name = key[1:]
		}
		col, ok := s.column(name)
		if !ok {
			return nil, sql.Scan{}, NewValidationError(name, errors.New("unknown field"))
		}
		scan.Orders = append(scan.Orders, sql.Order{Col: col, Desc: desc})
	}
	return s, scan, nil
}

// filterArg converts a comparison value to the storage form of the named
// field. The implicit id field takes integers; everything else follows the
// assignment rules of the field.
func (s *entitySchema) filterArg(name string, v any) (any, error) {
	if name == "id" {
		id, ok := normalize(v).(int64)
		if !ok {
			return nil, NewValidationError("id", fmt.Errorf("id comparisons take an integer, got %T", v))
		}
		return id, nil
	}
	fs, ok := s.field(name)
	if !ok {
		return nil, NewValidationError(name, errors.New("unknown field"))
	}
	sv, _, err := fs.storageValue(v)
	return sv, err
}

// run executes the compiled query and materializes every matching instance.
func (q Query) run(ctx context.Context, op string) ([]*Object, error) {
	_, scan, err := q.compile()
	if err != nil {
		return nil, q.wrap(op, err)
	}
	drv, err := q.entity.engine.conn(ctx)
	if err != nil {
		return nil, err
	}
	objs, err := q.entity.fetchObjects(ctx, drv, scan)
	if err != nil {
		return nil, q.wrap(op, err)
	}
	return objs, nil
}

// All returns every matching instance, in query order.
func (q Query) All(ctx context.Context) ([]*Object, error) {
	return q.run(ctx, "all")
}

// Iterate calls fn for every matching instance, in query order, stopping at
// the first error, which it returns. The result set is materialized before
// the first call, so fn may itself query or mutate rows; running Iterate
// again re-issues the query and observes those changes.
func (q Query) Iterate(ctx context.Context, fn func(*Object) error) error {
	objs, err := q.run(ctx, "iterate")
	if err != nil {
		return err
	}
	for _, o := range objs {
		if err := fn(o); err != nil {
			return err
		}
	}
	return nil
}

// Only returns the single matching instance. It fails with a NotFoundError
// when nothing matches and a NotSingularError when more than one instance
// does.
func (q Query) Only(ctx context.Context) (*Object, error) {
	objs, err := q.capped(2).run(ctx, "only")
	if err != nil {
		return nil, err
	}
	switch len(objs) {
	case 1:
		return objs[0], nil
	case 0:
		return nil, NewNotFoundError(q.entity.name)
	default:
		return nil, NewNotSingularError(q.entity.name)
	}
}

// OnlyOrNil is like Only, except that no match returns nil instead of a
// NotFoundError.
func (q Query) OnlyOrNil(ctx context.Context) (*Object, error) {
	objs, err := q.capped(2).run(ctx, "only")
	if err != nil {
		return nil, err
	}
	switch len(objs) {
	case 1:
		return objs[0], nil
	case 0:
		return nil, nil
	default:
		return nil, NewNotSingularError(q.entity.name)
	}
}

// Count returns the number of matching rows. The count covers the whole
// filtered set: sort keys and any window on the query are ignored.
func (q Query) Count(ctx context.Context) (int64, error) {
	_, scan, err := q.compile()
	if err != nil {
		return 0, q.wrap("count", err)
	}
	drv, err := q.entity.engine.conn(ctx)
	if err != nil {
		return 0, err
	}
	n, err := sql.SelectCount(ctx, drv, scan)
	if err != nil {
		return 0, q.wrap("count", err)
	}
	return n, nil
}

// Delete removes every matching row, honoring the query's filters, sort
// keys and window, so "all but the newest ten" cleanups are one call. Each
// removed row cascades through the reference graph exactly like
// Object.Delete. When nothing references the entity the whole delete runs
// as a single statement.
func (q Query) Delete(ctx context.Context) error {
	_, scan, err := q.compile()
	if err != nil {
		return q.wrap("delete", err)
	}
	drv, err := q.entity.engine.conn(ctx)
	if err != nil {
		return err
	}
	edges, err := q.entity.engine.inboundEdges(q.entity.name)
	if err != nil {
		return q.wrap("delete", err)
	}
	if len(edges) == 0 {
		if err := sql.DeleteMatching(ctx, drv, scan); err != nil {
			return q.wrap("delete", err)
		}
		return nil
	}
	ids, err := fetchIDs(ctx, drv, scan)
	if err != nil {
		return q.wrap("delete", err)
	}
	for _, id := range ids {
		if err := q.entity.engine.cascadeDelete(ctx, q.entity, id); err != nil {
			return err
		}
	}
	return nil
}

// Values returns the stored values of the named fields, one row slice per
// matching row, in query order. Rows come back in storage form with no
// conversion and no instance construction; this is the cheap path for
// reports and bulk reads. Reference fields yield the referenced id, and the
// implicit "id" field may be requested.
func (q Query) Values(ctx context.Context, fields ...string) ([][]any, error) {
	s, scan, err := q.compile()
	if err != nil {
		return nil, q.wrap("values", err)
	}
	if len(fields) == 0 {
		return nil, q.wrap("values", errors.New("no fields requested"))
	}
	cols := make([]string, len(fields))
	for i, name := range fields {
		col, ok := s.column(name)
		if !ok {
			return nil, q.wrap("values", NewValidationError(name, errors.New("unknown field")))
		}
		cols[i] = col
	}
	drv, err := q.entity.engine.conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := sql.Select(ctx, drv, cols, scan)
	if err != nil {
		return nil, q.wrap("values", err)
	}
	out, err := drainRows(rows, len(cols))
	if err != nil {
		return nil, q.wrap("values", err)
	}
	return out, nil
}

// selectCols returns the column list of a full-row select, id first, in the
// order fromRow expects.
func (s *entitySchema) selectCols() []string {
	cols := make([]string, 0, len(s.cols)+1)
	cols = append(cols, "id")
	cols = append(cols, s.cols...)
	return cols
}

// drainRows reads every remaining row into memory and closes the result
// set. The engine runs on one shared connection, so results are always
// fully materialized before anything downstream can need a statement.
func drainRows(rows *sql.Rows, width int) ([][]any, error) {
	defer rows.Close()
	var out [][]any
	for rows.Next() {
		vals := make([]any, width)
		ptrs := make([]any, width)
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// fetchObjects runs the scan over the entity's full column set and builds
// one instance per row.
func (e *Entity) fetchObjects(ctx context.Context, drv dialect.ExecQuerier, scan sql.Scan) ([]*Object, error) {
	s, err := e.resolve()
	if err != nil {
		return nil, err
	}
	rows, err := sql.Select(ctx, drv, s.selectCols(), scan)
	if err != nil {
		return nil, err
	}
	raw, err := drainRows(rows, len(s.cols)+1)
	if err != nil {
		return nil, err
	}
	objs := make([]*Object, 0, len(raw))
	for _, r := range raw {
		o, err := e.fromRow(r)
		if err != nil {
			return nil, err
		}
		objs = append(objs, o)
	}
	return objs, nil
}

// fetchIDs runs the scan over just the id column.
func fetchIDs(ctx context.Context, drv dialect.ExecQuerier, scan sql.Scan) ([]int64, error) {
	rows, err := sql.Select(ctx, drv, []string{"id"}, scan)
	if err != nil {
		return nil, err
	}
	raw, err := drainRows(rows, 1)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(raw))
	for _, r := range raw {
		id, ok := r[0].(int64)
		if !ok {
			return nil, NewConsistencyError(fmt.Sprintf("stored id is %T, not an integer", r[0]), nil)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
