package levis

import (
	"bytes"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/syssam/levis/dialect/sql"
	"github.com/vmihailenco/msgpack/v5"
)

// Primitive constrains the storage forms a converter may map a domain type
// to. The four forms correspond to the integer, real, text and blob column
// types of the storage engine.
type Primitive interface {
	int64 | float64 | string | []byte
}

// converter holds the registered mapping between one domain type and its
// storage primitive. Both directions operate on values already unwrapped
// from null handling, so they never see nil.
type converter struct {
	goType  reflect.Type
	storage string // column type, one of the sql.Type* constants
	builtin bool
	to      func(any) (any, error) // domain value -> primitive
	from    func(any) (any, error) // primitive -> domain value
}

var (
	convMu     sync.RWMutex
	converters = make(map[reflect.Type]*converter)
)

// RegisterConverter installs a converter mapping the domain type T to the
// storage primitive S. The two functions must satisfy the round-trip law
// from(to(v)) == v for every valid v. Each domain type may be registered at
// most once; calling RegisterConverter twice for the same T, or for a
// built-in type, panics. Like driver registration, this is meant to run
// from package init code.
func RegisterConverter[T any, S Primitive](to func(T) (S, error), from func(S) (T, error)) {
	t := reflect.TypeFor[T]()
	c := &converter{
		goType:  t,
		storage: storageOf(reflect.TypeFor[S]()),
		to: func(v any) (any, error) {
			tv, ok := v.(T)
			if !ok {
				return nil, fmt.Errorf("converter for %s got %T", t, v)
			}
			return to(tv)
		},
		from: func(v any) (any, error) {
			sv, err := coerce[S](v)
			if err != nil {
				return nil, fmt.Errorf("converter for %s: %w", t, err)
			}
			return from(sv)
		},
	}
	registerConverter(c)
}

// RegisterStruct installs a blob converter for the struct type T using
// msgpack encoding. It is shorthand for a RegisterConverter call with
// msgpack.Marshal and msgpack.Unmarshal as the two directions.
func RegisterStruct[T any]() {
	RegisterConverter(
		func(v T) ([]byte, error) { return msgpack.Marshal(v) },
		func(b []byte) (T, error) {
			var v T
			if err := msgpack.Unmarshal(b, &v); err != nil {
				return v, err
			}
			return v, nil
		},
	)
}

func registerConverter(c *converter) {
	convMu.Lock()
	defer convMu.Unlock()
	if prev, ok := converters[c.goType]; ok {
		if prev.builtin {
			panic(fmt.Sprintf("levis: RegisterConverter: built-in type %s cannot be overridden", c.goType))
		}
		panic(fmt.Sprintf("levis: RegisterConverter called twice for type %s", c.goType))
	}
	converters[c.goType] = c
}

// converterFor returns the converter registered for t.
func converterFor(t reflect.Type) (*converter, bool) {
	convMu.RLock()
	defer convMu.RUnlock()
	c, ok := converters[t]
	return c, ok
}

// storageOf maps a primitive Go type to its column type.
func storageOf(t reflect.Type) string {
	switch t {
	case reflect.TypeFor[int64]():
		return sql.TypeInteger
	case reflect.TypeFor[float64]():
		return sql.TypeReal
	case reflect.TypeFor[string]():
		return sql.TypeText
	case reflect.TypeFor[[]byte]():
		return sql.TypeBlob
	}
	panic(fmt.Sprintf("levis: %s is not a storage primitive", t))
}

// coerce normalizes a value scanned from the driver into the primitive S.
// The driver hands back int64, float64, string or []byte depending on the
// storage class of the stored value, which does not always match the
// declared column type exactly: a real column may yield int64 for whole
// numbers, and text can surface as []byte.
func coerce[S Primitive](v any) (S, error) {
	var zero S
	switch any(zero).(type) {
	case int64:
		if n, ok := v.(int64); ok {
			return any(n).(S), nil
		}
	case float64:
		switch n := v.(type) {
		case float64:
			return any(n).(S), nil
		case int64:
			return any(float64(n)).(S), nil
		}
	case string:
		switch s := v.(type) {
		case string:
			return any(s).(S), nil
		case []byte:
			return any(string(s)).(S), nil
		}
	case []byte:
		switch b := v.(type) {
		case []byte:
			return any(bytes.Clone(b)).(S), nil
		case string:
			return any([]byte(b)).(S), nil
		}
	}
	return zero, fmt.Errorf("cannot read stored %T as %T", v, zero)
}

// normalize widens small numeric kinds so assignment and lookup operate on
// the canonical domain types. It is lossless: int variants widen to int64
// and float32 widens to float64. Everything else passes through unchanged.
func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case float32:
		return float64(n)
	}
	return v
}

// The built-in converters. Each of them satisfies the round-trip law:
// time.Time keeps the instant (Unix nanoseconds) but not the zone, and byte
// slices are cloned on both directions so instances never alias caller or
// driver buffers.
func init() {
	identity := func(v any) (any, error) { return v, nil }
	builtins := []*converter{
		{
			goType:  reflect.TypeFor[int64](),
			storage: sql.TypeInteger,
			to:      identity,
			from: func(v any) (any, error) {
				return coerceAny[int64](v)
			},
		},
		{
			goType:  reflect.TypeFor[float64](),
			storage: sql.TypeReal,
			to:      identity,
			from: func(v any) (any, error) {
				return coerceAny[float64](v)
			},
		},
		{
			goType:  reflect.TypeFor[bool](),
			storage: sql.TypeInteger,
			to: func(v any) (any, error) {
				if v.(bool) {
					return int64(1), nil
				}
				return int64(0), nil
			},
			from: func(v any) (any, error) {
				n, err := coerce[int64](v)
				if err != nil {
					return nil, err
				}
				return n != 0, nil
			},
		},
		{
			goType:  reflect.TypeFor[string](),
			storage: sql.TypeText,
			to:      identity,
			from: func(v any) (any, error) {
				return coerceAny[string](v)
			},
		},
		{
			goType:  reflect.TypeFor[[]byte](),
			storage: sql.TypeBlob,
			to: func(v any) (any, error) {
				return bytes.Clone(v.([]byte)), nil
			},
			from: func(v any) (any, error) {
				return coerceAny[[]byte](v)
			},
		},
		{
			goType:  reflect.TypeFor[time.Time](),
			storage: sql.TypeInteger,
			to: func(v any) (any, error) {
				return v.(time.Time).UnixNano(), nil
			},
			from: func(v any) (any, error) {
				n, err := coerce[int64](v)
				if err != nil {
					return nil, err
				}
				return time.Unix(0, n), nil
			},
		},
		{
			goType:  reflect.TypeFor[uuid.UUID](),
			storage: sql.TypeText,
			to: func(v any) (any, error) {
				return v.(uuid.UUID).String(), nil
			},
			from: func(v any) (any, error) {
				s, err := coerce[string](v)
				if err != nil {
					return nil, err
				}
				return uuid.Parse(s)
			},
		},
	}
	for _, c := range builtins {
		c.builtin = true
		registerConverter(c)
	}
}

// coerceAny is coerce with the result widened back to any, for the
// identity-shaped built-ins.
func coerceAny[S Primitive](v any) (any, error) {
	sv, err := coerce[S](v)
	if err != nil {
		return nil, err
	}
	return sv, nil
}
