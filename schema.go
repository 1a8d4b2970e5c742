package levis

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sync"
	"time"

	"github.com/go-openapi/inflect"
	"github.com/google/uuid"
	"github.com/syssam/levis/dialect/sql"
	"github.com/syssam/levis/schema/field"
)

// Field is the interface implemented by the builders in the schema/field
// package. Declare accepts any value that can produce a field descriptor.
type Field interface {
	Descriptor() *field.Descriptor
}

// entityNameRe is the shape an entity name must have. Table names derived
// from it are lowercased, so mixed case is accepted here.
var entityNameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// An Entity is the handle for one declared entity type. It is returned by
// Engine.Declare and configured through chained calls before first use:
//
//	user := engine.Declare("user",
//		field.String("name"),
//		field.Int("age").Nillable(),
//	).KwOnly()
//
// The table schema is derived from the declaration on first use of the
// handle, not at declaration time, so reference fields may name entities
// that are declared later. Declaration problems surface as a
// DeclarationError from the first operation that needs the schema.
type Entity struct {
	engine  *Engine
	name    string
	table   string
	kwOnly  bool
	descs   []*field.Descriptor
	declErr error

	once      sync.Once
	schema    *entitySchema
	schemaErr error
}

// Declare registers an entity type under the given name with the declared
// fields. Every entity implicitly has an integer "id" field assigned by the
// storage engine on first persist. Declaring the same name twice leaves the
// first declaration in place and returns a handle that fails on first use.
func (e *Engine) Declare(name string, fields ...Field) *Entity {
	ent := &Entity{engine: e, name: name}
	for _, f := range fields {
		ent.descs = append(ent.descs, f.Descriptor())
	}
	switch {
	case name == "":
		ent.declErr = errors.New("entity name cannot be empty")
	case !entityNameRe.MatchString(name):
		ent.declErr = fmt.Errorf("invalid entity name %q", name)
	}
	if ent.declErr != nil {
		return ent
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.entities[name]; ok {
		ent.declErr = fmt.Errorf("entity %q already declared", name)
		return ent
	}
	e.entities[name] = ent
	e.order = append(e.order, name)
	return ent
}

// entity returns the declared entity handle for name.
func (e *Engine) entity(name string) (*Entity, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ent, ok := e.entities[name]
	return ent, ok
}

// resolveAll derives the schema of every declared entity, in declaration
// order. Init and the cascade engine both need the full picture, so table
// collisions between entities are caught here rather than per entity.
func (e *Engine) resolveAll() ([]*Entity, error) {
	e.mu.RLock()
	ents := make([]*Entity, 0, len(e.order))
	for _, name := range e.order {
		ents = append(ents, e.entities[name])
	}
	e.mu.RUnlock()
	tables := make(map[string]*Entity, len(ents))
	for _, ent := range ents {
		s, err := ent.resolve()
		if err != nil {
			return nil, err
		}
		if prev, ok := tables[s.table]; ok {
			return nil, NewDeclarationError(ent.name, fmt.Errorf(
				"table %q is already used by entity %q", s.table, prev.name))
		}
		tables[s.table] = ent
	}
	return ents, nil
}

// An inboundEdge records that field on from references some other entity.
// The cascade engine walks these edges backwards from a deleted row.
type inboundEdge struct {
	from  *Entity
	field *fieldSchema
}

// inboundEdges returns every reference field declared against the named
// entity, in declaration order of the declaring entities.
func (e *Engine) inboundEdges(name string) ([]inboundEdge, error) {
	ents, err := e.resolveAll()
	if err != nil {
		return nil, err
	}
	var edges []inboundEdge
	for _, ent := range ents {
		s, err := ent.resolve()
		if err != nil {
			return nil, err
		}
		for _, fs := range s.fields {
			if fs.isRef() && fs.desc.Ref == name {
				edges = append(edges, inboundEdge{from: ent, field: fs})
			}
		}
	}
	return edges, nil
}

// Name returns the name the entity was declared under.
func (e *Entity) Name() string {
	return e.name
}

// Table overrides the backing table name, which otherwise derives from the
// entity name. It must be called before the entity is first used.
func (e *Entity) Table(name string) *Entity {
	e.table = name
	return e
}

// KwOnly lifts the declaration ordering rule that fields with defaults must
// trail fields without. It must be called before the entity is first used.
func (e *Entity) KwOnly() *Entity {
	e.kwOnly = true
	return e
}

// resolve returns the derived schema, computing and caching it on first
// call. The cached result, error included, holds for the process lifetime.
func (e *Entity) resolve() (*entitySchema, error) {
	e.once.Do(func() {
		e.schema, e.schemaErr = e.derive()
	})
	return e.schema, e.schemaErr
}

// builtinTypes maps the plain field types to the domain types their
// converters are registered under.
var builtinTypes = map[field.Type]reflect.Type{
	field.TypeInt:    reflect.TypeFor[int64](),
	field.TypeFloat:  reflect.TypeFor[float64](),
	field.TypeBool:   reflect.TypeFor[bool](),
	field.TypeString: reflect.TypeFor[string](),
	field.TypeBytes:  reflect.TypeFor[[]byte](),
	field.TypeTime:   reflect.TypeFor[time.Time](),
	field.TypeUUID:   reflect.TypeFor[uuid.UUID](),
}

func (e *Entity) derive() (*entitySchema, error) {
	if e.declErr != nil {
		return nil, NewDeclarationError(e.name, e.declErr)
	}
	table := e.table
	if table == "" {
		table = inflect.Underscore(e.name)
	}
	if !sql.ValidIdentifier(table) {
		return nil, NewDeclarationError(e.name, fmt.Errorf("invalid table name %q", table))
	}
	s := &entitySchema{
		name:   e.name,
		table:  table,
		byName: make(map[string]*fieldSchema, len(e.descs)),
	}
	seenCol := make(map[string]string, len(e.descs))
	defaulted := ""
	for _, d := range e.descs {
		if d.Err != nil {
			return nil, NewDeclarationError(e.name, d.Err)
		}
		if _, ok := s.byName[d.Name]; ok {
			return nil, NewDeclarationError(e.name, fmt.Errorf("field %q declared twice", d.Name))
		}
		col := d.Column()
		if prev, ok := seenCol[col]; ok {
			return nil, NewDeclarationError(e.name, fmt.Errorf("fields %q and %q share column %q", prev, d.Name, col))
		}
		fs := &fieldSchema{desc: d, column: col}
		switch d.Info.Type {
		case field.TypeRef:
			target, ok := e.engine.entity(d.Ref)
			if !ok {
				return nil, NewDeclarationError(e.name, fmt.Errorf("field %q references undeclared entity %q", d.Name, d.Ref))
			}
			// The handle alone resolves the reference. Deriving the
			// target's schema here would recurse forever on cycles.
			fs.ref = target
			fs.storage = sql.TypeInteger
		case field.TypeCustom:
			c, ok := converterFor(d.Info.RType)
			if !ok {
				return nil, NewDeclarationError(e.name, fmt.Errorf(
					"no converter registered for type %s (field %q)", d.Info.RType, d.Name))
			}
			fs.conv, fs.storage = c, c.storage
		default:
			t, ok := builtinTypes[d.Info.Type]
			if !ok {
				return nil, NewDeclarationError(e.name, fmt.Errorf("field %q has unsupported type %s", d.Name, d.Info))
			}
			c, _ := converterFor(t)
			fs.conv, fs.storage = c, c.storage
		}
		if !e.kwOnly {
			switch {
			case d.HasDefault():
				if defaulted == "" {
					defaulted = d.Name
				}
			case defaulted != "":
				return nil, NewDeclarationError(e.name, fmt.Errorf(
					"non-defaulted field %q follows defaulted field %q (declare KwOnly to lift the ordering)", d.Name, defaulted))
			}
		}
		s.fields = append(s.fields, fs)
		s.byName[d.Name] = fs
		s.cols = append(s.cols, col)
		seenCol[col] = d.Name
	}
	return s, nil
}

// entitySchema is the derived, cached form of a declaration: the ordered
// field set bound to converters and reference targets, plus the backing
// table name.
type entitySchema struct {
	name   string
	table  string
	fields []*fieldSchema
	byName map[string]*fieldSchema
	cols   []string // storage columns in declaration order, id excluded
}

// field returns the schema of the named declared field.
func (s *entitySchema) field(name string) (*fieldSchema, bool) {
	fs, ok := s.byName[name]
	return fs, ok
}

// column maps a field name to its storage column. The implicit id field
// maps to itself.
func (s *entitySchema) column(name string) (string, bool) {
	if name == "id" {
		return "id", true
	}
	fs, ok := s.byName[name]
	if !ok {
		return "", false
	}
	return fs.column, true
}

// tableSpec returns the DDL description of the backing table.
func (s *entitySchema) tableSpec() sql.TableSpec {
	spec := sql.TableSpec{
		Name:    s.table,
		Columns: make([]sql.ColumnSpec, 0, len(s.fields)+1),
	}
	spec.Columns = append(spec.Columns, sql.ColumnSpec{Name: "id", Type: sql.TypePrimaryKey})
	for _, fs := range s.fields {
		spec.Columns = append(spec.Columns, sql.ColumnSpec{
			Name:     fs.column,
			Type:     fs.storage,
			Nullable: fs.desc.Nillable,
			Unique:   fs.desc.Unique,
		})
	}
	return spec
}

// fieldSchema binds one declared field to its storage column and, depending
// on its type, a converter or a reference target.
type fieldSchema struct {
	desc    *field.Descriptor
	column  string
	storage string
	conv    *converter // nil for reference fields
	ref     *Entity    // target entity for reference fields
}

func (f *fieldSchema) isRef() bool {
	return f.desc.Info.Type == field.TypeRef
}
