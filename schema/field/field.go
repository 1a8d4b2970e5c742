package field

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of value a field holds.
type Type uint8

// Supported field types. The first six map directly onto built-in
// converters; TypeCustom is resolved against the converter registry by the
// field's Go type, and TypeRef is a reference to another declared entity.
const (
	TypeInvalid Type = iota
	TypeInt
	TypeFloat
	TypeBool
	TypeString
	TypeBytes
	TypeTime
	TypeUUID
	TypeCustom
	TypeRef
)

var typeNames = [...]string{
	TypeInvalid: "invalid",
	TypeInt:     "int",
	TypeFloat:   "float",
	TypeBool:    "bool",
	TypeString:  "string",
	TypeBytes:   "bytes",
	TypeTime:    "time",
	TypeUUID:    "uuid",
	TypeCustom:  "custom",
	TypeRef:     "ref",
}

// String returns the string representation of the type.
func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("invalid(%d)", t)
}

// TypeInfo carries the type identity of a field. RType is set only for
// TypeCustom fields, where it keys the converter lookup.
type TypeInfo struct {
	Type  Type
	RType reflect.Type
}

// String returns the string representation of the type info.
func (t TypeInfo) String() string {
	if t.Type == TypeCustom && t.RType != nil {
		return t.RType.String()
	}
	return t.Type.String()
}

// A Descriptor for field configuration. Builders accumulate into it, and
// invalid configuration is deferred into Err rather than reported at build
// time: the schema registry checks Err when the entity is first used.
type Descriptor struct {
	Name        string     // field name
	Info        TypeInfo   // type identity
	Nillable    bool       // whether null is a legal stored value
	Unique      bool       // unique index on the column
	Default     any        // fixed default value
	DefaultFunc func() any // default factory, evaluated once per new instance
	Ref         string     // referenced entity name, for TypeRef
	Err         error      // deferred builder error
}

// HasDefault reports whether the field carries a default value or factory.
func (d *Descriptor) HasDefault() bool {
	return d.Default != nil || d.DefaultFunc != nil
}

// Column returns the storage column name backing the field. Reference
// fields store the referenced row's id under "<name>_id".
func (d *Descriptor) Column() string {
	if d.Info.Type == TypeRef {
		return d.Name + "_id"
	}
	return d.Name
}

// nameRe is the shape every field name must have: a lowercase identifier.
var nameRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

func newDescriptor(name string, info TypeInfo) *Descriptor {
	d := &Descriptor{Name: name, Info: info}
	switch {
	case name == "":
		d.Err = errors.New("field name cannot be empty")
	case name == "id":
		d.Err = errors.New(`"id" is a reserved field name`)
	case !nameRe.MatchString(name):
		d.Err = fmt.Errorf("invalid field name %q: names are lowercase identifiers", name)
	}
	return d
}

// Int returns a new integer field with the given name.
func Int(name string) *intBuilder {
	return &intBuilder{desc: newDescriptor(name, TypeInfo{Type: TypeInt})}
}

// intBuilder is the builder for integer fields.
type intBuilder struct {
	desc *Descriptor
}

// Unique makes the field unique within all entity instances.
func (b *intBuilder) Unique() *intBuilder {
	b.desc.Unique = true
	return b
}

// Nillable allows the stored value to be null.
func (b *intBuilder) Nillable() *intBuilder {
	b.desc.Nillable = true
	return b
}

// Default sets the default value of the field.
func (b *intBuilder) Default(v int64) *intBuilder {
	b.desc.Default = v
	return b
}

// DefaultFunc sets a factory evaluated once for every new instance.
func (b *intBuilder) DefaultFunc(fn func() int64) *intBuilder {
	b.desc.DefaultFunc = func() any { return fn() }
	return b
}

// Descriptor implements the levis.Field interface by returning its descriptor.
func (b *intBuilder) Descriptor() *Descriptor {
	return b.desc
}

// Float returns a new float field with the given name.
func Float(name string) *floatBuilder {
	return &floatBuilder{desc: newDescriptor(name, TypeInfo{Type: TypeFloat})}
}

// floatBuilder is the builder for float fields.
type floatBuilder struct {
	desc *Descriptor
}

// Unique makes the field unique within all entity instances.
func (b *floatBuilder) Unique() *floatBuilder {
	b.desc.Unique = true
	return b
}

// Nillable allows the stored value to be null.
func (b *floatBuilder) Nillable() *floatBuilder {
	b.desc.Nillable = true
	return b
}

// Default sets the default value of the field.
func (b *floatBuilder) Default(v float64) *floatBuilder {
	b.desc.Default = v
	return b
}

// DefaultFunc sets a factory evaluated once for every new instance.
func (b *floatBuilder) DefaultFunc(fn func() float64) *floatBuilder {
	b.desc.DefaultFunc = func() any { return fn() }
	return b
}

// Descriptor implements the levis.Field interface by returning its descriptor.
func (b *floatBuilder) Descriptor() *Descriptor {
	return b.desc
}

// Bool returns a new boolean field with the given name. Booleans are stored
// as integers 0 and 1.
func Bool(name string) *boolBuilder {
	return &boolBuilder{desc: newDescriptor(name, TypeInfo{Type: TypeBool})}
}

// boolBuilder is the builder for boolean fields.
type boolBuilder struct {
	desc *Descriptor
}

// Nillable allows the stored value to be null.
func (b *boolBuilder) Nillable() *boolBuilder {
	b.desc.Nillable = true
	return b
}

// Default sets the default value of the field.
func (b *boolBuilder) Default(v bool) *boolBuilder {
	b.desc.Default = v
	return b
}

// DefaultFunc sets a factory evaluated once for every new instance.
func (b *boolBuilder) DefaultFunc(fn func() bool) *boolBuilder {
	b.desc.DefaultFunc = func() any { return fn() }
	return b
}

// Descriptor implements the levis.Field interface by returning its descriptor.
func (b *boolBuilder) Descriptor() *Descriptor {
	return b.desc
}

// String returns a new text field with the given name.
func String(name string) *stringBuilder {
	return &stringBuilder{desc: newDescriptor(name, TypeInfo{Type: TypeString})}
}

// stringBuilder is the builder for text fields.
type stringBuilder struct {
	desc *Descriptor
}

// Unique makes the field unique within all entity instances.
func (b *stringBuilder) Unique() *stringBuilder {
	b.desc.Unique = true
	return b
}

// Nillable allows the stored value to be null.
func (b *stringBuilder) Nillable() *stringBuilder {
	b.desc.Nillable = true
	return b
}

// Default sets the default value of the field.
func (b *stringBuilder) Default(v string) *stringBuilder {
	b.desc.Default = v
	return b
}

// DefaultFunc sets a factory evaluated once for every new instance.
func (b *stringBuilder) DefaultFunc(fn func() string) *stringBuilder {
	b.desc.DefaultFunc = func() any { return fn() }
	return b
}

// Descriptor implements the levis.Field interface by returning its descriptor.
func (b *stringBuilder) Descriptor() *Descriptor {
	return b.desc
}

// Bytes returns a new byte-sequence field with the given name.
func Bytes(name string) *bytesBuilder {
	return &bytesBuilder{desc: newDescriptor(name, TypeInfo{Type: TypeBytes})}
}

// bytesBuilder is the builder for byte-sequence fields.
type bytesBuilder struct {
	desc *Descriptor
}

// Unique makes the field unique within all entity instances.
func (b *bytesBuilder) Unique() *bytesBuilder {
	b.desc.Unique = true
	return b
}

// Nillable allows the stored value to be null.
func (b *bytesBuilder) Nillable() *bytesBuilder {
	b.desc.Nillable = true
	return b
}

// Default sets the default value of the field.
func (b *bytesBuilder) Default(v []byte) *bytesBuilder {
	b.desc.Default = v
	return b
}

// DefaultFunc sets a factory evaluated once for every new instance.
func (b *bytesBuilder) DefaultFunc(fn func() []byte) *bytesBuilder {
	b.desc.DefaultFunc = func() any { return fn() }
	return b
}

// Descriptor implements the levis.Field interface by returning its descriptor.
func (b *bytesBuilder) Descriptor() *Descriptor {
	return b.desc
}

// Time returns a new time field with the given name. Times are stored as
// integer Unix nanoseconds, so they round-trip exactly; the zone is not
// preserved, only the instant.
func Time(name string) *timeBuilder {
	return &timeBuilder{desc: newDescriptor(name, TypeInfo{Type: TypeTime})}
}

// timeBuilder is the builder for time fields.
type timeBuilder struct {
	desc *Descriptor
}

// Unique makes the field unique within all entity instances.
func (b *timeBuilder) Unique() *timeBuilder {
	b.desc.Unique = true
	return b
}

// Nillable allows the stored value to be null.
func (b *timeBuilder) Nillable() *timeBuilder {
	b.desc.Nillable = true
	return b
}

// Default sets the default value of the field.
func (b *timeBuilder) Default(v time.Time) *timeBuilder {
	b.desc.Default = v
	return b
}

// DefaultFunc sets a factory evaluated once for every new instance.
// Typically time.Now:
//
//	field.Time("last_activity").DefaultFunc(time.Now)
func (b *timeBuilder) DefaultFunc(fn func() time.Time) *timeBuilder {
	b.desc.DefaultFunc = func() any { return fn() }
	return b
}

// Descriptor implements the levis.Field interface by returning its descriptor.
func (b *timeBuilder) Descriptor() *Descriptor {
	return b.desc
}

// UUID returns a new UUID field with the given name. UUIDs are stored in
// their canonical text form.
func UUID(name string) *uuidBuilder {
	return &uuidBuilder{desc: newDescriptor(name, TypeInfo{Type: TypeUUID})}
}

// uuidBuilder is the builder for UUID fields.
type uuidBuilder struct {
	desc *Descriptor
}

// Unique makes the field unique within all entity instances.
func (b *uuidBuilder) Unique() *uuidBuilder {
	b.desc.Unique = true
	return b
}

// Nillable allows the stored value to be null.
func (b *uuidBuilder) Nillable() *uuidBuilder {
	b.desc.Nillable = true
	return b
}

// Default sets the default value of the field.
func (b *uuidBuilder) Default(v uuid.UUID) *uuidBuilder {
	b.desc.Default = v
	return b
}

// DefaultFunc sets a factory evaluated once for every new instance.
// Typically uuid.New:
//
//	field.UUID("token").Unique().DefaultFunc(uuid.New)
func (b *uuidBuilder) DefaultFunc(fn func() uuid.UUID) *uuidBuilder {
	b.desc.DefaultFunc = func() any { return fn() }
	return b
}

// Descriptor implements the levis.Field interface by returning its descriptor.
func (b *uuidBuilder) Descriptor() *Descriptor {
	return b.desc
}

// Custom returns a new field holding values of the domain type T, which must
// have a converter registered with levis.RegisterConverter or
// levis.RegisterStruct before the entity is first used.
func Custom[T any](name string) *customBuilder[T] {
	return &customBuilder[T]{desc: newDescriptor(name, TypeInfo{
		Type:  TypeCustom,
		RType: reflect.TypeFor[T](),
	})}
}

// customBuilder is the builder for converter-backed fields.
type customBuilder[T any] struct {
	desc *Descriptor
}

// Unique makes the field unique within all entity instances.
func (b *customBuilder[T]) Unique() *customBuilder[T] {
	b.desc.Unique = true
	return b
}

// Nillable allows the stored value to be null.
func (b *customBuilder[T]) Nillable() *customBuilder[T] {
	b.desc.Nillable = true
	return b
}

// Default sets the default value of the field.
func (b *customBuilder[T]) Default(v T) *customBuilder[T] {
	b.desc.Default = v
	return b
}

// DefaultFunc sets a factory evaluated once for every new instance.
func (b *customBuilder[T]) DefaultFunc(fn func() T) *customBuilder[T] {
	b.desc.DefaultFunc = func() any { return fn() }
	return b
}

// Descriptor implements the levis.Field interface by returning its descriptor.
func (b *customBuilder[T]) Descriptor() *Descriptor {
	return b.desc
}

// Ref returns a new reference field to the entity declared under the given
// name. The backing column is "<name>_id" and stores the referenced row's
// id. Deleting the referenced row cascades: non-nillable references pull
// the referencing row down with it, nillable references are set to null.
func Ref(name, entity string) *refBuilder {
	d := newDescriptor(name, TypeInfo{Type: TypeRef})
	d.Ref = entity
	if entity == "" && d.Err == nil {
		d.Err = fmt.Errorf("reference field %q needs a target entity", name)
	}
	return &refBuilder{desc: d}
}

// refBuilder is the builder for reference fields.
type refBuilder struct {
	desc *Descriptor
}

// Unique makes the reference unique, turning it into a one-to-one edge.
func (b *refBuilder) Unique() *refBuilder {
	b.desc.Unique = true
	return b
}

// Nillable allows the reference to be null. On delete of the referenced row
// a nillable reference is nulled instead of cascading.
func (b *refBuilder) Nillable() *refBuilder {
	b.desc.Nillable = true
	return b
}

// Descriptor implements the levis.Field interface by returning its descriptor.
func (b *refBuilder) Descriptor() *Descriptor {
	return b.desc
}
