package dispatch

import (
	"errors"
	"fmt"
)

// Sentinel errors for the dispatch package.
var (
	// ErrAlreadyRunning is returned when Start or Run is called twice.
	ErrAlreadyRunning = errors.New("dispatcher is already running")

	// ErrNotRunning is returned when work is submitted to a stopped pool.
	ErrNotRunning = errors.New("dispatcher is not running")

	// ErrUnknownStrategy is returned when a strategy name cannot be parsed.
	ErrUnknownStrategy = errors.New("unknown execution strategy")
)

// PanicError carries a panic raised by a callback run through Loop.Send back
// to the sending goroutine.
type PanicError struct {
	// Value is the value passed to panic().
	Value any

	// Stack is the stack trace of the loop goroutine at the time of the panic.
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("callback panicked: %v", e.Value)
}
