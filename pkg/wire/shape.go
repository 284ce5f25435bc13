package wire

import "reflect"

// Shape declares one argument or result slot: the name used by the named
// format, the Go type the codec decodes into, and optional-with-default
// semantics for tolerant named decoding.
//
// Shapes come from the same generated declarations on both sides of the
// boundary; the server decodes against its registered shapes and never
// trusts shape metadata asserted by a client.
type Shape struct {
	Name     string
	Type     reflect.Type
	Optional bool
	// Default is substituted when an optional name is absent from a named
	// payload. It must be assignable to Type; nil yields the zero value.
	Default any
}

// ShapeOf declares a required slot of type T.
func ShapeOf[T any](name string) Shape {
	return Shape{Name: name, Type: reflect.TypeOf((*T)(nil)).Elem()}
}

// OptionalShape declares an optional slot of type T with a default.
func OptionalShape[T any](name string, def T) Shape {
	return Shape{Name: name, Type: reflect.TypeOf((*T)(nil)).Elem(), Optional: true, Default: def}
}

// zero returns the value an absent optional slot decodes to.
func (s Shape) zero() any {
	if s.Default != nil {
		return s.Default
	}
	return reflect.New(s.Type).Elem().Interface()
}
