package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"

	"github.com/google/uuid"
)

// Actor is the capability set the runtime drives.
//
// Most actors embed *BaseActor and only supply a Handler; implementing Actor
// directly is possible but the implementation then owns the activation and
// failure-classification rules described on BaseActor.
type Actor interface {
	// ID returns the actor id, unique within a system.
	ID() string

	// Kind returns the kind name used to build the path.
	Kind() string

	// Path returns the actor path, "/user/<kind>/<id>".
	Path() string

	// Receive handles one message. It returns ErrActorInactive without
	// calling the handler when the actor is not active, and a *HandlerError
	// when the handler fails.
	Receive(ctx context.Context, msg Message) (any, error)

	// PreStart activates the actor. It is called once by the system.
	PreStart(ctx context.Context) error

	// PostStop runs cleanup after the actor was stopped.
	PostStop()

	// OnFailure classifies a handler failure with the actor's strategy.
	OnFailure(err error, msg Message) Decision

	// Stop deactivates the actor. Only the first call has an effect.
	Stop()

	// IsActive reports whether the actor accepts messages.
	IsActive() bool

	// SupervisorStrategy returns the strategy used by OnFailure.
	SupervisorStrategy() SupervisorStrategy
}

// Handler is the kind-specific message handling hook of a BaseActor.
type Handler interface {
	HandleMessage(ctx context.Context, msg Message) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg Message) (any, error)

// HandleMessage calls f(ctx, msg).
func (f HandlerFunc) HandleMessage(ctx context.Context, msg Message) (any, error) {
	return f(ctx, msg)
}

// Starter is an optional Handler hook run when the actor is activated.
// A returned error aborts the activation.
type Starter interface {
	OnStart(ctx context.Context) error
}

// Stopper is an optional Handler hook run once after the actor is stopped.
type Stopper interface {
	OnStop()
}

// FailureObserver is an optional Handler hook told about every classified
// failure.
type FailureObserver interface {
	OnFailure(err error, msg Message, decision Decision)
}

// PathFor returns the path of an actor of the given kind and id.
func PathFor(kind, id string) string {
	return "/user/" + kind + "/" + id
}

const (
	lifecycleNew int32 = iota
	lifecycleActive
	lifecycleStopped
)

// BaseActor implements Actor around a Handler.
//
// Lifecycle is monotonic: new -> active on PreStart, active -> stopped on
// Stop. A stopped actor can never be activated again.
type BaseActor struct {
	id       string
	kind     string
	path     string
	handler  Handler
	strategy SupervisorStrategy
	logger   *slog.Logger

	lifecycle atomic.Int32
}

// BaseOption configures a BaseActor.
type BaseOption func(*BaseActor)

// WithStrategy replaces the default supervisor strategy.
func WithStrategy(s SupervisorStrategy) BaseOption {
	return func(b *BaseActor) {
		if s != nil {
			b.strategy = s
		}
	}
}

// WithActorLogger sets the logger used for drop and failure records.
func WithActorLogger(l *slog.Logger) BaseOption {
	return func(b *BaseActor) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBaseActor creates a BaseActor. An empty id is replaced by a random one.
func NewBaseActor(kind, id string, h Handler, opts ...BaseOption) *BaseActor {
	if id == "" {
		id = uuid.NewString()
	}
	b := &BaseActor{
		id:       id,
		kind:     kind,
		path:     PathFor(kind, id),
		handler:  h,
		strategy: DefaultStrategy{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ID implements Actor.
func (b *BaseActor) ID() string { return b.id }

// Kind implements Actor.
func (b *BaseActor) Kind() string { return b.kind }

// Path implements Actor.
func (b *BaseActor) Path() string { return b.path }

// SupervisorStrategy implements Actor.
func (b *BaseActor) SupervisorStrategy() SupervisorStrategy { return b.strategy }

// IsActive implements Actor.
func (b *BaseActor) IsActive() bool {
	return b.lifecycle.Load() == lifecycleActive
}

// PreStart implements Actor.
func (b *BaseActor) PreStart(ctx context.Context) error {
	if !b.lifecycle.CompareAndSwap(lifecycleNew, lifecycleActive) {
		return fmt.Errorf("%w: actor %s cannot be started twice", ErrIllegalState, b.path)
	}
	if s, ok := b.handler.(Starter); ok {
		if err := s.OnStart(ctx); err != nil {
			b.lifecycle.Store(lifecycleStopped)
			return err
		}
	}
	return nil
}

// Stop implements Actor. Only the active -> stopped transition runs PostStop.
func (b *BaseActor) Stop() {
	if b.lifecycle.CompareAndSwap(lifecycleActive, lifecycleStopped) {
		b.PostStop()
		return
	}
	b.lifecycle.CompareAndSwap(lifecycleNew, lifecycleStopped)
}

// PostStop implements Actor.
func (b *BaseActor) PostStop() {
	if s, ok := b.handler.(Stopper); ok {
		s.OnStop()
	}
}

// OnFailure implements Actor.
func (b *BaseActor) OnFailure(err error, msg Message) Decision {
	d := b.strategy.Classify(err)
	b.logger.Error("actor.failure",
		"path", b.path,
		"message_type", msg.Type,
		"message_id", msg.ID,
		"decision", d.String(),
		"error", err)
	if o, ok := b.handler.(FailureObserver); ok {
		o.OnFailure(err, msg, d)
	}
	return d
}

// Receive implements Actor.
func (b *BaseActor) Receive(ctx context.Context, msg Message) (result any, err error) {
	if !b.IsActive() {
		b.logger.Warn("actor is not active, message dropped",
			"path", b.path,
			"message_type", msg.Type,
			"message_id", msg.ID)
		return nil, ErrActorInactive
	}

	defer func() {
		if r := recover(); r != nil {
			err = b.fail(&PanicError{Value: r, Stack: debug.Stack()}, msg)
			result = nil
		}
	}()

	result, err = b.handler.HandleMessage(ctx, msg)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return nil, err
		}
		return nil, b.fail(err, msg)
	}
	return result, nil
}

func (b *BaseActor) fail(err error, msg Message) error {
	var herr *HandlerError
	if errors.As(err, &herr) && herr.Path == b.path {
		return herr
	}
	return &HandlerError{
		Path:        b.path,
		MessageType: msg.Type,
		Decision:    b.OnFailure(err, msg),
		Err:         err,
	}
}
