package core

import (
	"errors"
	"fmt"
	"time"
)

// Runtime errors
var (
	ErrActorInactive  = errors.New("actor is not active")
	ErrActorNotFound  = errors.New("actor not found")
	ErrAskTimeout     = errors.New("ask timed out")
	ErrSystemShutdown = errors.New("actor system is shut down")
	ErrPoolClosed     = errors.New("worker pool is closed")
	ErrQueueFull      = errors.New("worker pool queue is full")
	ErrUnknownKind    = errors.New("unknown actor kind")
	ErrMissingArgs    = errors.New("missing constructor arguments")
)

// Failure classes understood by DefaultStrategy. Handlers wrap them with
// fmt.Errorf("...: %w", ErrInvalidArgument) and friends.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrIllegalState    = errors.New("illegal state")
	ErrFatal           = errors.New("fatal error")
	ErrSecurity        = errors.New("security violation")
)

// ActorCreationError is returned when an actor cannot be instantiated or
// fails to start.
type ActorCreationError struct {
	Kind string
	ID   string
	Err  error
}

func (e *ActorCreationError) Error() string {
	return fmt.Sprintf("create actor %s/%s: %v", e.Kind, e.ID, e.Err)
}

func (e *ActorCreationError) Unwrap() error {
	return e.Err
}

// HandlerError is a failure raised while handling a message, together with
// the supervision decision taken for it.
type HandlerError struct {
	Path        string
	MessageType string
	Decision    Decision
	Err         error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("actor %s failed on %s (%s): %v", e.Path, e.MessageType, e.Decision, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// AskTimeoutError reports an ask that got no reply in time.
type AskTimeoutError struct {
	Path    string
	Timeout time.Duration
}

func (e *AskTimeoutError) Error() string {
	return fmt.Sprintf("ask %s: no reply within %s", e.Path, e.Timeout)
}

// Is makes errors.Is(err, ErrAskTimeout) hold.
func (e *AskTimeoutError) Is(target error) bool {
	return target == ErrAskTimeout
}

// PanicError wraps a value recovered from a panicking handler.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panic: %v", e.Value)
}

// Unwrap exposes the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
