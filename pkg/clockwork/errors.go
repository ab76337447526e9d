package clockwork

import (
	"errors"
	"fmt"
)

var (
	// ErrTimersDisabled is raised by timer-based scheduling on a runtime built with enable_time=false.
	ErrTimersDisabled = errors.New("clockwork: timers disabled (runtime.enable_time=false)")
	// ErrRuntimeClosed is returned by RunToCompletion after the runtime was torn down.
	ErrRuntimeClosed = errors.New("clockwork: runtime closed")
	// ErrAlreadyStarted is returned by a second Host.Start.
	ErrAlreadyStarted = errors.New("clockwork: host already started")
	// ErrThreadPanicked matches the error returned by ControlHandle.Join when the thread panicked.
	ErrThreadPanicked = errors.New("clockwork: thread panicked")
	// ErrInvalidConfig wraps every configuration validation failure.
	ErrInvalidConfig = errors.New("clockwork: invalid config")
)

// PanicError carries the value and stack of a panic that ended a spawned thread.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%s: %v", ErrThreadPanicked.Error(), e.Value)
}

func (e *PanicError) Is(target error) bool { return target == ErrThreadPanicked }

// Unwrap exposes the panic value when it was an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

func invalidConfig(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
