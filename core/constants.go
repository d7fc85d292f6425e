package core

import (
	"errors"
	"fmt"
	"time"
)

// Defaults applied by NewServer
const (
	DefaultNumThreads   = 10
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 10 * time.Second
)

// Error definitions
var (
	ErrHandlerFailure          = errors.New("handler failure")
	ErrWriteFailure            = errors.New("response write failed")
	ErrNotFoundPageUnavailable = errors.New("not found page unavailable")
	ErrServerClosed            = errors.New("server closed")
	ErrAlreadyListening        = errors.New("server already listening")
)

// HandlerError is what the isolation boundary turns a failed handler into.
// It matches ErrHandlerFailure with errors.Is.
type HandlerError struct {
	Path  string
	Value any    // the recovered panic value, or the reason the response was rejected
	Stack []byte // goroutine stack at the panic, nil when the handler did not panic
}

func (e *HandlerError) Error() string {
	if e.Stack != nil {
		return fmt.Sprintf("route %s panicked: %v", e.Path, e.Value)
	}
	return fmt.Sprintf("route %s failed: %v", e.Path, e.Value)
}

// Is reports whether target is ErrHandlerFailure
func (e *HandlerError) Is(target error) bool {
	return target == ErrHandlerFailure
}

// Unwrap exposes a panic value that was itself an error
func (e *HandlerError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
