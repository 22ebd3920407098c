package data

import "reflect"

// tagBag is a type-indexed map: at most one value of each Go type can be
// attached to a Metadata, addressed by that type rather than a string key.
type tagBag map[reflect.Type]any

// AttachTag stores v on m, keyed by its concrete type, replacing any
// previous value of that type.
func AttachTag[T any](m *Metadata, v T) {
	if m.tags == nil {
		m.tags = make(tagBag)
	}
	m.tags[reflect.TypeOf(v)] = v
}

// Tag retrieves the value of type T previously attached to m, if any.
func Tag[T any](m Metadata) (T, bool) {
	var zero T
	if m.tags == nil {
		return zero, false
	}
	v, ok := m.tags[reflect.TypeOf(zero)]
	if !ok {
		return zero, false
	}
	return v.(T), true
}

// HasTag reports whether a value of type T is attached to m, without
// retrieving it.
func HasTag[T any](m Metadata) bool {
	_, ok := Tag[T](m)
	return ok
}
