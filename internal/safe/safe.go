// Package safe contains the panic guard used at goroutine boundaries.
package safe

import (
	"fmt"
	"runtime/debug"
)

// PanicError is returned by Run when fn panicked.
type PanicError struct {
	// Scope names the goroutine owner, for example "room listener <id>".
	Scope string
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%s: panic recovered: %v", e.Scope, e.Value)
}

// Run executes fn, wrapping its error with scope and converting a panic into a *PanicError.
func Run(scope string, fn func() error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = &PanicError{Scope: scope, Value: recovered, Stack: debug.Stack()}
		}
	}()

	if err := fn(); err != nil {
		return fmt.Errorf("%s: %w", scope, err)
	}

	return nil
}
