// Package recovery converts panics in oracle calls, bus handlers and
// background goroutines into ordinary errors.
package recovery

import (
	"fmt"
	"runtime/debug"

	"github.com/jeeves-cluster-organization/consensusai/coreengine/logging"
)

// PanicError is returned when a guarded function panics.
type PanicError struct {
	Operation string
	Value     any
	Stack     string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Operation, e.Value)
}

func capture(logger logging.Logger, event string, operation string, r any) *PanicError {
	perr := &PanicError{Operation: operation, Value: r, Stack: string(debug.Stack())}
	if logger != nil {
		logger.Error(event,
			"operation", operation,
			"panic", r,
			"stack", perr.Stack,
		)
	}
	return perr
}

// SafeExecute runs fn, turning a panic into a *PanicError.
func SafeExecute(logger logging.Logger, operation string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = capture(logger, "panic_recovered", operation, r)
		}
	}()
	return fn()
}

// SafeExecuteWithResult is SafeExecute for functions that also return a value.
// On panic the zero value of T is returned.
func SafeExecuteWithResult[T any](logger logging.Logger, operation string, fn func() (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			result = zero
			err = capture(logger, "panic_recovered", operation, r)
		}
	}()
	return fn()
}

// SafeGo runs fn in a goroutine. onPanic, if set, receives the recovered value.
func SafeGo(logger logging.Logger, operation string, fn func(), onPanic func(recovered any)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				capture(logger, "goroutine_panic_recovered", operation, r)
				if onPanic != nil {
					onPanic(r)
				}
			}
		}()
		fn()
	}()
}
