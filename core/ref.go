package core

import (
	"context"
	"errors"
	"time"
)

// ActorRef is a location-transparent handle to an actor.
type ActorRef interface {
	// Path returns the path the ref points at.
	Path() string

	// Tell sends msg without waiting for it to be handled. Messages to an
	// inactive actor are dropped and logged, not reported as errors.
	Tell(msg Message) error

	// Ask sends msg and waits up to timeout for the handler's result.
	// A timeout yields an error matching ErrAskTimeout; a handler failure
	// yields a *HandlerError.
	Ask(ctx context.Context, msg Message, timeout time.Duration) (any, error)

	// IsAvailable reports whether the actor can currently take messages.
	IsAvailable(ctx context.Context) bool
}

// Registrar is told about local refs as they come and go.
type Registrar interface {
	RegisterLocalActor(path string, ref ActorRef)
	UnregisterActor(path string)
}

// LocalRef points at an actor living in this process.
type LocalRef struct {
	cell *cell
}

var _ ActorRef = (*LocalRef)(nil)

// Path implements ActorRef.
func (r *LocalRef) Path() string {
	return r.cell.path
}

// IsAvailable implements ActorRef.
func (r *LocalRef) IsAvailable(context.Context) bool {
	return r.cell.current().IsActive()
}

// Tell implements ActorRef.
func (r *LocalRef) Tell(msg Message) error {
	if !r.cell.current().IsActive() {
		r.cell.sys.logger.Warn("actor is not active, message dropped",
			"path", r.cell.path,
			"message_type", msg.Type,
			"message_id", msg.ID)
		return nil
	}
	msg.ReceiverPath = r.cell.path
	return r.cell.enqueue(&envelope{ctx: r.cell.sys.pool.Context(), msg: msg})
}

// Ask implements ActorRef. The handler's context is cancelled as soon as Ask
// returns, so work for a caller that gave up is skipped or interrupted.
func (r *LocalRef) Ask(ctx context.Context, msg Message, timeout time.Duration) (any, error) {
	if !r.cell.current().IsActive() {
		r.cell.sys.logger.Warn("actor is not active, ask refused",
			"path", r.cell.path,
			"message_type", msg.Type)
		return nil, ErrActorInactive
	}
	if timeout <= 0 {
		timeout = r.cell.sys.askTimeout
	}

	msg.RequiresResponse = true
	msg.ReceiverPath = r.cell.path

	askCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	stopOnShutdown := context.AfterFunc(r.cell.sys.pool.Context(), cancel)
	defer stopOnShutdown()

	reply := make(chan Reply, 1)
	if err := r.cell.enqueue(&envelope{ctx: askCtx, msg: msg, reply: reply}); err != nil {
		return nil, err
	}

	select {
	case rep := <-reply:
		return rep.Value, rep.Err
	case <-askCtx.Done():
		select {
		case rep := <-reply:
			return rep.Value, rep.Err
		default:
		}
		if errors.Is(askCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			r.cell.sys.logger.Warn("ask timed out",
				"path", r.cell.path,
				"message_type", msg.Type,
				"timeout", timeout)
			return nil, &AskTimeoutError{Path: r.cell.path, Timeout: timeout}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrSystemShutdown
	}
}
