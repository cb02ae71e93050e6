package core

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// mailboxThroughput is the number of messages a drain task handles before
// yielding its worker to other actors.
const mailboxThroughput = 32

// cell holds an actor together with its runtime state. Refs point at the
// cell, so they keep working across restarts that replace the instance.
type cell struct {
	sys       *ActorSystem
	path      string
	kind      string
	produce   func() (Actor, error)
	ref       *LocalRef
	createdAt time.Time

	mu             sync.RWMutex
	actor          Actor
	restartHistory []time.Time

	state     atomic.Int32
	scheduled atomic.Bool
	mailbox   mailbox

	processed     atomic.Uint64
	failures      atomic.Uint64
	restarts      atomic.Uint64
	lastMessageAt atomic.Int64
}

func newCell(sys *ActorSystem, a Actor, produce func() (Actor, error)) *cell {
	c := &cell{
		sys:       sys,
		path:      a.Path(),
		kind:      a.Kind(),
		produce:   produce,
		actor:     a,
		createdAt: time.Now(),
	}
	c.ref = &LocalRef{cell: c}
	return c
}

func (c *cell) current() Actor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.actor
}

func (c *cell) currentState() ActorState {
	return ActorState(c.state.Load())
}

// enqueue hands an envelope to the execution substrate.
func (c *cell) enqueue(env *envelope) error {
	if c.sys.closed.Load() {
		return ErrSystemShutdown
	}
	if c.sys.mode == DispatchUnordered {
		return c.sys.pool.Submit(func(ctx context.Context) {
			c.process(ctx, env)
		})
	}
	c.mailbox.push(env)
	c.schedule()
	return nil
}

// schedule makes sure exactly one drain task is pending or running.
func (c *cell) schedule() {
	if !c.scheduled.CompareAndSwap(false, true) {
		return
	}
	if err := c.sys.pool.Submit(c.drain); err != nil {
		c.scheduled.Store(false)
		c.reject(err)
	}
}

func (c *cell) reject(err error) {
	for _, env := range c.mailbox.takeAll() {
		c.sys.logger.Warn("message rejected",
			"path", c.path,
			"message_type", env.msg.Type,
			"message_id", env.msg.ID,
			"error", err)
		env.complete(nil, err)
	}
}

func (c *cell) drain(ctx context.Context) {
	for i := 0; i < mailboxThroughput; i++ {
		if ctx.Err() != nil {
			c.reject(ErrSystemShutdown)
			break
		}
		env, ok := c.mailbox.pop()
		if !ok {
			break
		}
		c.process(ctx, env)
	}
	c.scheduled.Store(false)
	if c.mailbox.len() > 0 {
		c.schedule()
	}
}

func (c *cell) process(ctx context.Context, env *envelope) {
	if ctx.Err() != nil {
		env.complete(nil, ErrSystemShutdown)
		return
	}
	if err := env.ctx.Err(); err != nil {
		c.sys.logger.Debug("requester gone, message skipped",
			"path", c.path,
			"message_type", env.msg.Type,
			"message_id", env.msg.ID)
		env.complete(nil, err)
		return
	}

	a := c.current()
	c.sys.logger.Debug("message.received",
		"path", c.path,
		"message_type", env.msg.Type,
		"message_id", env.msg.ID,
		"sender", env.msg.SenderPath)

	result, err := c.receive(a, env)
	c.processed.Add(1)
	c.lastMessageAt.Store(time.Now().UnixNano())

	switch {
	case err == nil:
		if env.reply != nil {
			c.sys.logger.Debug("message.replied",
				"path", c.path,
				"message_type", env.msg.Type,
				"message_id", env.msg.ID)
		}
		env.complete(result, nil)
	case err == ErrActorInactive:
		env.complete(nil, err)
	case env.ctx.Err() != nil && errors.Is(err, env.ctx.Err()):
		// the requester gave up and the handler honoured it
		env.complete(nil, err)
	default:
		herr := c.handlerError(a, env.msg, err)
		c.failures.Add(1)
		c.supervise(a, env.msg, herr)
		env.complete(nil, herr)
	}
}

func (c *cell) receive(a Actor, env *envelope) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return a.Receive(env.ctx, env.msg)
}

func (c *cell) handlerError(a Actor, msg Message, err error) *HandlerError {
	if herr, ok := err.(*HandlerError); ok {
		return herr
	}
	return &HandlerError{
		Path:        c.path,
		MessageType: msg.Type,
		Decision:    a.OnFailure(err, msg),
		Err:         err,
	}
}

// supervise enforces the decision taken for a failure.
func (c *cell) supervise(failed Actor, msg Message, herr *HandlerError) {
	decision := herr.Decision
	if decision == Restart && !c.allowRestart(time.Now()) {
		c.sys.logger.Warn("restart limit exceeded, stopping actor",
			"path", c.path,
			"max", c.sys.restartLimit.Max,
			"within", c.sys.restartLimit.Within)
		decision = Stop
	}

	switch decision {
	case Resume:
		c.sys.logger.Debug("actor resumed", "path", c.path)
	case Restart:
		if err := c.restart(failed, herr.Err); err != nil {
			c.sys.logger.Error("actor restart failed, stopping actor", "path", c.path, "error", err)
			c.sys.removeCell(c, ActorStateStopped)
		}
	case Stop:
		c.sys.removeCell(c, ActorStateStopped)
	case Escalate:
		c.sys.escalation(Escalation{Path: c.path, Message: msg, Err: herr.Err})
		c.sys.removeCell(c, ActorStateEscalated)
	}
}

func (c *cell) allowRestart(now time.Time) bool {
	limit := c.sys.restartLimit
	if limit.Max <= 0 {
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := now.Add(-limit.Within)
	kept := c.restartHistory[:0]
	for _, t := range c.restartHistory {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	c.restartHistory = kept
	if len(kept) >= limit.Max {
		return false
	}
	c.restartHistory = append(c.restartHistory, now)
	return true
}

// restart moves the cell through Running -> Restarting -> Running.
func (c *cell) restart(failed Actor, cause error) error {
	if !c.state.CompareAndSwap(int32(ActorStateRunning), int32(ActorStateRestarting)) {
		return nil
	}
	if c.current() != failed {
		c.state.CompareAndSwap(int32(ActorStateRestarting), int32(ActorStateRunning))
		return nil
	}
	c.restarts.Add(1)

	r, inPlace := failed.(Restarter)
	switch {
	case c.produce != nil:
		if err := c.replace(failed); err != nil {
			return err
		}
	case inPlace:
		if err := r.Restart(cause); err != nil {
			return fmt.Errorf("restart %s in place: %w", c.path, err)
		}
	default:
		c.sys.logger.Warn("actor cannot be rebuilt, resuming instead", "path", c.path)
	}

	c.state.CompareAndSwap(int32(ActorStateRestarting), int32(ActorStateRunning))
	c.sys.logger.Info("actor.restarted", "path", c.path, "cause", cause)
	return nil
}

// replace swaps the failed instance for a freshly produced one.
func (c *cell) replace(failed Actor) error {
	next, err := c.produce()
	if err != nil {
		return fmt.Errorf("rebuild %s: %w", c.path, err)
	}
	if next.Path() != c.path {
		return fmt.Errorf("rebuild %s: %w: produced path %s", c.path, ErrIllegalState, next.Path())
	}
	if err := next.PreStart(c.sys.pool.Context()); err != nil {
		failed.Stop()
		return fmt.Errorf("rebuild %s: prestart: %w", c.path, err)
	}
	c.mu.Lock()
	c.actor = next
	c.mu.Unlock()
	failed.Stop()

	// stopped while rebuilding
	if c.currentState() != ActorStateRestarting {
		next.Stop()
	}
	return nil
}

// stop deactivates the current instance. An escalated cell keeps its state.
func (c *cell) stop(final ActorState) {
	for {
		cur := c.state.Load()
		if cur == int32(ActorStateEscalated) || cur == int32(final) {
			break
		}
		if c.state.CompareAndSwap(cur, int32(final)) {
			break
		}
	}
	c.current().Stop()
}

func (c *cell) stats() ActorStats {
	a := c.current()
	s := ActorStats{
		Path:              c.path,
		Kind:              c.kind,
		State:             c.currentState(),
		Active:            a.IsActive(),
		MessagesProcessed: c.processed.Load(),
		Failures:          c.failures.Load(),
		Restarts:          c.restarts.Load(),
		MailboxSize:       c.mailbox.len(),
		CreatedAt:         c.createdAt,
	}
	s.StateName = s.State.String()
	if ns := c.lastMessageAt.Load(); ns > 0 {
		s.LastMessageAt = time.Unix(0, ns)
	}
	return s
}
