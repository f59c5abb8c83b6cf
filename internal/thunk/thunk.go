// Package thunk turns methods into receiver-independent callables.
//
// A Thunk is built once per method descriptor and cached; it never holds a
// receiver. Pairing it with a Target (a strong or weak reference to the
// receiver) yields the single-argument callback stored by the bus.
package thunk

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/puzpuzpuz/xsync/v4"
)

// ErrUnsupportedShape is returned when a method does not take exactly one
// argument and return nothing.
var ErrUnsupportedShape = errors.New("unsupported callback shape")

// ShapeError describes why a method cannot be used as a callback.
type ShapeError struct {
	Recv   reflect.Type
	Method string
	Reason string
}

// Error implements the error interface.
func (e *ShapeError) Error() string {
	return fmt.Sprintf("method %s.%s: %s", e.Recv, e.Method, e.Reason)
}

// Is allows errors.Is to match ShapeError with ErrUnsupportedShape.
func (e *ShapeError) Is(target error) bool {
	return target == ErrUnsupportedShape
}

// Descriptor identifies a method by receiver type and name.
type Descriptor struct {
	Recv reflect.Type
	Name string
}

// Thunk calls a method with an explicit receiver.
type Thunk[R, T any] func(recv *R, payload T)

// cache holds the method expression for each descriptor as func(*R, X).
var cache = xsync.NewMap[Descriptor, any]()

// Method returns the thunk for the method called name on *R. The method must
// take a single parameter of type T and return nothing. Lookups after the
// first are served from the cache and involve no reflection at call time.
func Method[R, T any](name string) (Thunk[R, T], error) {
	d := Descriptor{Recv: reflect.TypeFor[*R](), Name: name}

	fn, ok := cache.Load(d)
	if !ok {
		built, err := build(d)
		if err != nil {
			return nil, err
		}
		fn, _ = cache.LoadOrStore(d, built)
	}

	typed, ok := fn.(func(*R, T))
	if !ok {
		return nil, &ShapeError{
			Recv:   d.Recv,
			Method: name,
			Reason: fmt.Sprintf("parameter is %s, want %s",
				reflect.TypeOf(fn).In(1), reflect.TypeFor[T]()),
		}
	}
	return Thunk[R, T](typed), nil
}

// build validates the method shape and returns its method expression.
func build(d Descriptor) (any, error) {
	m, ok := d.Recv.MethodByName(d.Name)
	if !ok {
		return nil, &ShapeError{Recv: d.Recv, Method: d.Name, Reason: "no such exported method"}
	}

	// m.Type includes the receiver as its first parameter.
	mt := m.Type
	if mt.NumIn() != 2 {
		return nil, &ShapeError{
			Recv:   d.Recv,
			Method: d.Name,
			Reason: fmt.Sprintf("takes %d parameters, want 1", mt.NumIn()-1),
		}
	}
	if mt.IsVariadic() {
		return nil, &ShapeError{Recv: d.Recv, Method: d.Name, Reason: "is variadic"}
	}
	if mt.NumOut() != 0 {
		return nil, &ShapeError{
			Recv:   d.Recv,
			Method: d.Name,
			Reason: fmt.Sprintf("returns %d values, want none", mt.NumOut()),
		}
	}
	return m.Func.Interface(), nil
}

// Cached returns the number of descriptors in the cache.
func Cached() int {
	return cache.Size()
}
