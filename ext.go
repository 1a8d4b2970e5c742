package levis

// extKey is the map key of an extension slot. The type parameter alone
// distinguishes slots, so two packages attaching values of their own types
// can never collide.
type extKey[T any] struct{}

// SetExt attaches a value of type T to the instance. Extension values live
// on the instance, not the row: they are never persisted, survive saves,
// and vanish with the instance. Each type T names one independent slot, the
// way context values are keyed by unexported types.
func SetExt[T any](o *Object, v T) {
	if o.ext == nil {
		o.ext = make(map[any]any)
	}
	o.ext[extKey[T]{}] = v
}

// GetExt returns the value of type T attached to the instance, and whether
// one is present.
func GetExt[T any](o *Object) (T, bool) {
	if v, ok := o.ext[extKey[T]{}]; ok {
		return v.(T), true
	}
	var zero T
	return zero, false
}
