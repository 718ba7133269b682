package common

import (
	"fmt"
	"runtime"

	"github.com/ternarybob/arbor"
)

// PanicError wraps a recovered panic value with the stack where it happened
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// NewPanicError captures the current goroutine stack for a recovered value.
// Call it directly inside the deferred recover.
func NewPanicError(value any) *PanicError {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return &PanicError{Value: value, Stack: string(buf[:n])}
}

// SafeGo runs fn in a goroutine and delivers its result on the returned channel.
// A panic is logged and delivered as a *PanicError instead of crashing the process.
func SafeGo(logger arbor.ILogger, name string, fn func() error) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				perr := NewPanicError(r)
				logger.Error().
					Str("goroutine", name).
					Str("panic", fmt.Sprintf("%v", perr.Value)).
					Str("stack", perr.Stack).
					Msg("Recovered from panic in goroutine")
				done <- perr
			}
		}()
		done <- fn()
	}()
	return done
}
