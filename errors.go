package typebus

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/dshills/typebus/internal/thunk"
)

// Sentinel errors for the bus.
var (
	// ErrNullArgument is returned when a required callback, context or
	// receiver is nil.
	ErrNullArgument = errors.New("required argument is nil")

	// ErrDisposed is returned when an operation is attempted on a disposed bus.
	ErrDisposed = errors.New("bus is disposed")

	// ErrUnsupportedShape is returned when a method cannot be used as a
	// callback because it does not take exactly one argument and return nothing.
	ErrUnsupportedShape = thunk.ErrUnsupportedShape
)

// ArgumentError names the nil argument.
type ArgumentError struct {
	// Name is the parameter that was nil.
	Name string
}

// Error implements the error interface.
func (e *ArgumentError) Error() string {
	return "argument " + e.Name + " cannot be nil"
}

// Is allows errors.Is to match ArgumentError with ErrNullArgument.
func (e *ArgumentError) Is(target error) bool {
	return target == ErrNullArgument
}

// PanicError describes a callback that panicked away from its publisher.
type PanicError struct {
	// HandleID is the ID of the subscription whose callback panicked.
	HandleID string

	// Type is the payload type the callback was subscribed to.
	Type reflect.Type

	// Value is the value passed to panic().
	Value any

	// Stack is the stack trace at the time of the panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("callback panic for subscription %s on %s: %v", e.HandleID, e.Type, e.Value)
}
