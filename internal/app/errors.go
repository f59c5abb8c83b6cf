package app

import (
	"errors"
	"fmt"
)

// Application errors.
var (
	// ErrAlreadyRunning indicates the application is already running.
	ErrAlreadyRunning = errors.New("application already running")

	// ErrUnknownScenario indicates the requested scenario does not exist.
	ErrUnknownScenario = errors.New("unknown scenario")

	// ErrScenarioFailed indicates a scenario observed unexpected behavior.
	ErrScenarioFailed = errors.New("scenario failed")
)

// InitError represents a component that failed to initialize.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("initializing %s: %v", e.Component, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// expect returns an ErrScenarioFailed error when got differs from want.
func expect[T comparable](what string, got, want T) error {
	if got != want {
		return fmt.Errorf("%w: %s = %v, want %v", ErrScenarioFailed, what, got, want)
	}
	return nil
}
