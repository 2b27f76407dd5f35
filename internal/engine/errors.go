package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/autoload/internal/event"
)

// Reasons a command is rejected. Run logs a rejected command and carries on.
var (
	ErrNotCommand = errors.New("not an engine command")
	ErrNoLoader   = errors.New("command has no loader name")
	ErrNoFetch    = errors.New("command carries no fetch function")
)

// CommandError ties a rejection reason to the command that caused it.
type CommandError struct {
	Loader string
	Type   event.Type
	Err    error
}

func reject(ev event.Event, reason error) *CommandError {
	return &CommandError{Loader: ev.Loader, Type: ev.Type, Err: reason}
}

func (e *CommandError) Error() string {
	if e.Loader == "" {
		return fmt.Sprintf("%s: %v", e.Type.Short(), e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Type.Short(), e.Loader, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// PanicError is the failure recorded when a fetch function panics.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("fetch panicked: %v", e.Value)
}
