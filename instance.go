package levis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/syssam/levis/dialect/sql"
	"github.com/syssam/levis/schema/field"
)

// Values carries the field values used to construct an instance, keyed by
// field name. The implicit "id" key may be set for administrative
// re-creation of a row under a known id.
type Values map[string]any

// State describes where an instance stands relative to its backing row.
type State uint8

const (
	// Transient instances have no backing row yet. Save inserts one.
	Transient State = iota
	// Persisted instances mirror an existing row.
	Persisted
	// Stale instances had their backing row deleted. Any further use
	// fails with a ConsistencyError.
	Stale
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case Transient:
		return "transient"
	case Persisted:
		return "persisted"
	case Stale:
		return "stale"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// refID marks an unresolved reference slot: the stored id of the referenced
// row, not yet loaded.
type refID int64

// An Object is the in-memory image of one row. It owns its field map
// exclusively; the backing row is shared state that changes only through
// explicit Save and Delete calls. Objects are not safe for concurrent use.
//
// Reference fields hold one of three things: nil, an unresolved stored id,
// or the loaded referenced Object. Get resolves an unresolved id exactly
// once and memoizes the result.
type Object struct {
	entity *Entity
	schema *entitySchema

	state State
	rowID int64 // key of the backing row while persisted
	id    int64 // current id value; differs from rowID when changed and unsaved
	idSet bool

	vals  map[string]any // field name -> domain value, refID, *Object or nil
	dirty map[string]any // column -> storage value changed since last save
	ext   map[any]any
}

func (e *Entity) newObject() (*Object, error) {
	s, err := e.resolve()
	if err != nil {
		return nil, err
	}
	return &Object{
		entity: e,
		schema: s,
		state:  Transient,
		vals:   make(map[string]any, len(s.fields)),
		dirty:  make(map[string]any, len(s.fields)),
	}, nil
}

// Create validates the given values against the schema, applies defaults
// for the missing ones, and immediately inserts the row. The returned
// instance is persisted with its id assigned by the storage engine, or by
// the caller when the values carry an explicit "id".
func (e *Entity) Create(ctx context.Context, vals Values) (*Object, error) {
	o, err := e.newObject()
	if err != nil {
		return nil, err
	}
	for name := range vals {
		if name == "id" {
			continue
		}
		if _, ok := o.schema.field(name); !ok {
			return nil, NewValidationError(name, errors.New("unknown field"))
		}
	}
	if idv, ok := vals["id"]; ok {
		id, ok := normalize(idv).(int64)
		if !ok {
			return nil, NewValidationError("id", fmt.Errorf("id must be an integer, got %T", idv))
		}
		if err := o.SetID(id); err != nil {
			return nil, err
		}
	}
	for _, fs := range o.schema.fields {
		v, ok := vals[fs.desc.Name]
		if !ok {
			if !fs.desc.HasDefault() {
				return nil, NewValidationError(fs.desc.Name,
					errors.New("missing value and no default is available"))
			}
			v = defaultValue(fs.desc)
		}
		if err := o.set(fs, v); err != nil {
			return nil, err
		}
	}
	if err := o.Save(ctx); err != nil {
		return nil, err
	}
	return o, nil
}

// NewEmpty returns a transient instance populated only with the declared
// defaults. It does not touch storage; the first Save inserts the row, and
// fails unless every field has a value by then.
func (e *Entity) NewEmpty() (*Object, error) {
	o, err := e.newObject()
	if err != nil {
		return nil, err
	}
	for _, fs := range o.schema.fields {
		if !fs.desc.HasDefault() {
			continue
		}
		if err := o.set(fs, defaultValue(fs.desc)); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func defaultValue(d *field.Descriptor) any {
	if d.DefaultFunc != nil {
		return d.DefaultFunc()
	}
	return d.Default
}

// fromRow builds a persisted instance from one scanned row. The values
// arrive in column order, id first.
func (e *Entity) fromRow(raw []any) (*Object, error) {
	o, err := e.newObject()
	if err != nil {
		return nil, err
	}
	id, ok := raw[0].(int64)
	if !ok {
		return nil, NewConsistencyError(fmt.Sprintf("%s: stored id is %T, not an integer", e.name, raw[0]), nil)
	}
	o.state = Persisted
	o.id, o.rowID = id, id
	for i, fs := range o.schema.fields {
		v := raw[i+1]
		name := fs.desc.Name
		if v == nil {
			o.vals[name] = nil
			continue
		}
		if fs.isRef() {
			n, ok := v.(int64)
			if !ok {
				return nil, NewConsistencyError(fmt.Sprintf(
					"%s: stored reference %q is %T, not an integer", e.name, name, v), nil)
			}
			o.vals[name] = refID(n)
			continue
		}
		dv, err := fs.conv.from(v)
		if err != nil {
			return nil, NewConsistencyError(fmt.Sprintf(
				"%s: stored value for field %q cannot be decoded", e.name, name), err)
		}
		o.vals[name] = dv
	}
	return o, nil
}

// alive fails when the backing row has been deleted.
func (o *Object) alive() error {
	if o.state == Stale {
		return NewConsistencyError("this instance was deleted from the database and can no longer be used", nil)
	}
	return nil
}

// Entity returns the entity handle the instance belongs to.
func (o *Object) Entity() *Entity {
	return o.entity
}

// ID returns the instance id, or 0 when the instance is transient and no
// explicit id has been assigned.
func (o *Object) ID() int64 {
	return o.id
}

// State returns the lifecycle state of the instance.
func (o *Object) State() State {
	return o.state
}

// Modified reports whether the instance carries unsaved changes.
func (o *Object) Modified() bool {
	return len(o.dirty) > 0
}

func (o *Object) idDirty() bool {
	_, ok := o.dirty["id"]
	return ok
}

// hasStableID reports whether the instance can be referenced: it is
// persisted and its id is not being changed.
func (o *Object) hasStableID() bool {
	return o.state == Persisted && !o.idDirty()
}

// Get returns the named field's current value. Reference fields resolve
// lazily: an unresolved stored id loads the referenced instance exactly
// once and memoizes it, so later reads return the cached instance without
// touching storage. A missing referenced row is a ConsistencyError.
func (o *Object) Get(ctx context.Context, name string) (any, error) {
	if err := o.alive(); err != nil {
		return nil, err
	}
	if name == "id" {
		return o.id, nil
	}
	fs, ok := o.schema.field(name)
	if !ok {
		return nil, NewValidationError(name, errors.New("unknown field"))
	}
	v, ok := o.vals[name]
	if !ok {
		return nil, NewValidationError(name, errors.New("field is unset"))
	}
	rid, ok := v.(refID)
	if !ok {
		return v, nil
	}
	target, err := fs.ref.Get(ctx, int64(rid))
	if err != nil {
		if IsNotFound(err) {
			return nil, NewConsistencyError(fmt.Sprintf(
				"referenced %s (id=%d) of field %q is missing", fs.ref.name, rid, name), err)
		}
		return nil, err
	}
	o.vals[name] = target
	return target, nil
}

// Ref reads the named reference field. It returns nil (with no error) when
// the reference is null.
func (o *Object) Ref(ctx context.Context, name string) (*Object, error) {
	v, err := o.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	target, ok := v.(*Object)
	if !ok {
		return nil, NewValidationError(name, fmt.Errorf("not a reference field (holds %T)", v))
	}
	return target, nil
}

// As reads the named field and asserts its type. A null value yields the
// zero value of T.
func As[T any](ctx context.Context, o *Object, name string) (T, error) {
	var zero T
	v, err := o.Get(ctx, name)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, NewValidationError(name, fmt.Errorf("holds %T, not %T", v, zero))
	}
	return t, nil
}

// Set updates the named field in memory. The value is validated and
// converted now, but storage is unchanged until Save. Setting "id" is the
// administrative id override and follows the SetID rules.
func (o *Object) Set(name string, v any) error {
	if err := o.alive(); err != nil {
		return err
	}
	if name == "id" {
		id, ok := normalize(v).(int64)
		if !ok {
			return NewValidationError("id", fmt.Errorf("id must be an integer, got %T", v))
		}
		return o.SetID(id)
	}
	fs, ok := o.schema.field(name)
	if !ok {
		return NewValidationError(name, errors.New("unknown field"))
	}
	return o.set(fs, v)
}

// SetID changes the instance id in memory. On a persisted instance the
// change takes effect at the next Save, which rewrites the row under the
// new id. On a transient instance the id is used by the initial insert.
func (o *Object) SetID(id int64) error {
	if err := o.alive(); err != nil {
		return err
	}
	if id < 0 {
		return NewValidationError("id", errors.New("cannot set a negative database id"))
	}
	o.id = id
	o.idSet = true
	o.dirty["id"] = id
	return nil
}

func (o *Object) set(fs *fieldSchema, v any) error {
	sv, dv, err := fs.storageValue(v)
	if err != nil {
		return err
	}
	o.vals[fs.desc.Name] = dv
	o.dirty[fs.column] = sv
	return nil
}

// storageValue validates v against the field and converts it. It returns
// the storage form and the domain form to cache in the field map. Query
// filters convert their comparison values through the same rules.
func (fs *fieldSchema) storageValue(v any) (storage, domain any, err error) {
	name := fs.desc.Name
	if v == nil {
		if !fs.desc.Nillable {
			return nil, nil, NewValidationError(name, errors.New("not nillable, cannot hold nil"))
		}
		return nil, nil, nil
	}
	if fs.isRef() {
		target, ok := v.(*Object)
		if !ok {
			return nil, nil, NewValidationError(name, fmt.Errorf(
				"can only hold %s instances, got %T", fs.ref.name, v))
		}
		if target.entity != fs.ref {
			return nil, nil, NewValidationError(name, fmt.Errorf(
				"can only hold %s instances, got %s", fs.ref.name, target.entity.name))
		}
		if !target.hasStableID() {
			return nil, nil, NewValidationError(name,
				errors.New("can only hold instances that have been saved to the database"))
		}
		return target.id, target, nil
	}
	v = normalize(v)
	if fs.desc.Info.Type == field.TypeFloat {
		if n, ok := v.(int64); ok {
			v = float64(n)
		}
	}
	if reflect.TypeOf(v) != fs.conv.goType {
		return nil, nil, NewValidationError(name, fmt.Errorf(
			"can only hold %s values, got %T", fs.conv.goType, v))
	}
	sv, err := fs.conv.to(v)
	if err != nil {
		return nil, nil, NewValidationError(name, err)
	}
	if b, ok := v.([]byte); ok {
		v = bytes.Clone(b)
	}
	return sv, v, nil
}

// currentStorage returns the storage form of the field's current value,
// preferring the already-converted dirty entry.
func (o *Object) currentStorage(fs *fieldSchema) (any, error) {
	if sv, ok := o.dirty[fs.column]; ok {
		return sv, nil
	}
	v := o.vals[fs.desc.Name]
	switch rv := v.(type) {
	case nil:
		return nil, nil
	case refID:
		return int64(rv), nil
	case *Object:
		return rv.id, nil
	default:
		return fs.conv.to(v)
	}
}

// Save writes the instance to storage: an insert when transient, otherwise
// a single update that overwrites the entire row. A clean persisted
// instance is a no-op. A unique column collision surfaces as an
// AlreadyExistsError.
func (o *Object) Save(ctx context.Context) error {
	if err := o.alive(); err != nil {
		return err
	}
	toCreate := o.state == Transient
	if !toCreate && len(o.dirty) == 0 {
		return nil
	}
	drv, err := o.entity.engine.conn(ctx)
	if err != nil {
		return err
	}
	s := o.schema
	if toCreate {
		for _, fs := range s.fields {
			if _, ok := o.vals[fs.desc.Name]; !ok {
				return NewValidationError(fs.desc.Name, errors.New("no value set for field"))
			}
		}
		cols := make([]string, 0, len(s.fields)+1)
		args := make([]any, 0, len(s.fields)+1)
		if o.idSet {
			cols = append(cols, "id")
			args = append(args, o.id)
		}
		for _, fs := range s.fields {
			cols = append(cols, fs.column)
			args = append(args, o.dirty[fs.column])
		}
		id, err := sql.Insert(ctx, drv, s.table, cols, args)
		if err != nil {
			if isUniqueViolation(err) {
				return NewAlreadyExistsError(s.name, err)
			}
			return fmt.Errorf("levis: inserting %s: %w", s.name, err)
		}
		o.id, o.rowID = id, id
		o.idSet = true
		o.state = Persisted
		clear(o.dirty)
		return nil
	}

	// Full-row overwrite, keyed on the id the row currently has in
	// storage. A changed id is written out like any other column and the
	// key switches over after the update.
	cols := make([]string, 0, len(s.fields)+1)
	args := make([]any, 0, len(s.fields)+1)
	if newID, ok := o.dirty["id"]; ok {
		cols = append(cols, "id")
		args = append(args, newID)
	}
	for _, fs := range s.fields {
		sv, err := o.currentStorage(fs)
		if err != nil {
			return NewValidationError(fs.desc.Name, err)
		}
		cols = append(cols, fs.column)
		args = append(args, sv)
	}
	if err := sql.UpdateByKey(ctx, drv, s.table, "id", o.rowID, cols, args); err != nil {
		if isUniqueViolation(err) {
			return NewAlreadyExistsError(s.name, err)
		}
		return fmt.Errorf("levis: updating %s: %w", s.name, err)
	}
	o.rowID = o.id
	clear(o.dirty)
	return nil
}

// Delete removes the backing row, cascading through the reference graph:
// rows holding a non-nillable reference to this one are deleted in turn,
// and nillable references are set to null. The instance is stale afterwards
// and can no longer be used. Unsaved changes must be saved or the delete is
// refused.
func (o *Object) Delete(ctx context.Context) error {
	if err := o.alive(); err != nil {
		return err
	}
	if len(o.dirty) > 0 {
		return NewValidationError("", errors.New("cannot delete a modified instance, save or discard the changes first"))
	}
	if o.state != Persisted {
		return NewConsistencyError("cannot delete an instance that was never saved", nil)
	}
	if err := o.entity.engine.cascadeDelete(ctx, o.entity, o.rowID); err != nil {
		return err
	}
	o.state = Stale
	return nil
}

// String renders the instance with its field values. Reference fields
// render as name(id=N) without resolving them, stale instances render as
// name(<deleted>), and unset fields as <missing>.
func (o *Object) String() string {
	var b strings.Builder
	b.WriteString(o.entity.name)
	b.WriteByte('(')
	if o.state == Stale {
		b.WriteString("<deleted>)")
		return b.String()
	}
	if o.state == Persisted || o.idSet {
		fmt.Fprintf(&b, "id=%d", o.id)
	} else {
		b.WriteString("id=<missing>")
	}
	for _, fs := range o.schema.fields {
		b.WriteString(", ")
		b.WriteString(fs.desc.Name)
		b.WriteByte('=')
		v, ok := o.vals[fs.desc.Name]
		switch rv := v.(type) {
		case nil:
			if ok {
				b.WriteString("<nil>")
			} else {
				b.WriteString("<missing>")
			}
		case refID:
			fmt.Fprintf(&b, "%s(id=%d)", fs.ref.name, int64(rv))
		case *Object:
			fmt.Fprintf(&b, "%s(id=%d)", fs.ref.name, rv.id)
		case string:
			fmt.Fprintf(&b, "%q", rv)
		default:
			fmt.Fprintf(&b, "%v", rv)
		}
	}
	b.WriteByte(')')
	return b.String()
}
