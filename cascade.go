package levis

import (
	"context"
	"fmt"

	"github.com/syssam/levis/dialect"
	"github.com/syssam/levis/dialect/sql"
)

// cascadeDelete removes the row with the given id and propagates the
// removal along every inbound reference edge: rows holding a non-nillable
// reference to it are deleted in turn, rows holding a nillable one get that
// reference nulled and are rewritten through the regular save path.
//
// The row itself goes first. That is what terminates cycles in the
// reference graph: when the walk comes back around, the dependent scans
// match nothing and the branch dies out. The same property makes deleting
// an already-removed id a no-op. No transaction spans the walk; a failure
// partway leaves the rows removed so far gone.
func (e *Engine) cascadeDelete(ctx context.Context, ent *Entity, id int64) error {
	s, err := ent.resolve()
	if err != nil {
		return err
	}
	drv, err := e.conn(ctx)
	if err != nil {
		return err
	}
	if err := sql.DeleteByKey(ctx, drv, s.table, "id", id); err != nil {
		return fmt.Errorf("levis: deleting %s (id=%d): %w", s.name, id, err)
	}
	edges, err := e.inboundEdges(ent.name)
	if err != nil {
		return err
	}
	for _, edge := range edges {
		if err := e.cascadeEdge(ctx, drv, edge, id); err != nil {
			return err
		}
	}
	return nil
}

// cascadeEdge applies one inbound edge of a removed row to the rows still
// referencing it. Dependents are fully materialized before any follow-up
// statement runs; the shared connection cannot serve a nested statement
// while a result set is open.
func (e *Engine) cascadeEdge(ctx context.Context, drv dialect.ExecQuerier, edge inboundEdge, id int64) error {
	dep, err := edge.from.resolve()
	if err != nil {
		return err
	}
	scan := sql.NewScan(dep.table)
	scan.Preds = []sql.Pred{{Col: edge.field.column, Op: sql.OpEQ, Arg: id}}
	if edge.field.desc.Nillable {
		objs, err := edge.from.fetchObjects(ctx, drv, scan)
		if err != nil {
			return fmt.Errorf("levis: loading %s rows referencing %s (id=%d): %w",
				dep.name, edge.field.desc.Ref, id, err)
		}
		for _, o := range objs {
			if err := o.Set(edge.field.desc.Name, nil); err != nil {
				return err
			}
			if err := o.Save(ctx); err != nil {
				return err
			}
		}
		return nil
	}
	ids, err := fetchIDs(ctx, drv, scan)
	if err != nil {
		return fmt.Errorf("levis: loading %s rows referencing %s (id=%d): %w",
			dep.name, edge.field.desc.Ref, id, err)
	}
	for _, depID := range ids {
		if err := e.cascadeDelete(ctx, edge.from, depID); err != nil {
			return err
		}
	}
	return nil
}
