package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ActorSystem owns the live actors of one process and the pool that runs
// their handlers. Create one with NewActorSystem and tear it down with
// Shutdown; there is no global instance.
type ActorSystem struct {
	name   string
	logger *slog.Logger

	pool            *Pool
	poolConfig      PoolConfig
	mode            DispatchMode
	restartLimit    RestartLimit
	askTimeout      time.Duration
	shutdownTimeout time.Duration
	escalation      EscalationHandler
	registrar       Registrar
	factory         *Factory

	// path -> *cell
	actors sync.Map
	// path -> *LocalRef
	refs sync.Map

	closed       atomic.Bool
	shutdownOnce sync.Once
	shutdownErr  error
}

// Option configures an ActorSystem.
type Option func(*ActorSystem)

// WithName sets the system name used in logs.
func WithName(name string) Option {
	return func(s *ActorSystem) { s.name = name }
}

// WithLogger sets the system logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *ActorSystem) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithPoolConfig sizes the worker pool.
func WithPoolConfig(cfg PoolConfig) Option {
	return func(s *ActorSystem) { s.poolConfig = cfg }
}

// WithDispatchMode selects mailbox or unordered dispatch.
func WithDispatchMode(m DispatchMode) Option {
	return func(s *ActorSystem) { s.mode = m }
}

// WithRestartLimit bounds restarts per actor.
func WithRestartLimit(l RestartLimit) Option {
	return func(s *ActorSystem) { s.restartLimit = l }
}

// WithAskTimeout sets the timeout used by asks that pass none.
func WithAskTimeout(d time.Duration) Option {
	return func(s *ActorSystem) {
		if d > 0 {
			s.askTimeout = d
		}
	}
}

// WithShutdownTimeout sets the graceful drain deadline used by Shutdown when
// its context carries none.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *ActorSystem) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// WithEscalationHandler receives failures classified as Escalate.
func WithEscalationHandler(h EscalationHandler) Option {
	return func(s *ActorSystem) {
		if h != nil {
			s.escalation = h
		}
	}
}

// WithRegistrar mirrors local refs into a registry.
func WithRegistrar(r Registrar) Option {
	return func(s *ActorSystem) { s.registrar = r }
}

// WithFactory sets the kinds available to Spawn.
func WithFactory(f *Factory) Option {
	return func(s *ActorSystem) {
		if f != nil {
			s.factory = f
		}
	}
}

// NewActorSystem creates a system with empty tables and a fresh pool.
func NewActorSystem(opts ...Option) *ActorSystem {
	s := &ActorSystem{
		name:            "actorkit",
		logger:          slog.Default(),
		poolConfig:      DefaultPoolConfig(),
		mode:            DispatchMailbox,
		restartLimit:    DefaultRestartLimit(),
		askTimeout:      5 * time.Second,
		shutdownTimeout: 10 * time.Second,
		factory:         NewFactory(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.mode != DispatchUnordered {
		s.mode = DispatchMailbox
	}
	if s.escalation == nil {
		s.escalation = func(e Escalation) {
			s.logger.Error("actor failure escalated",
				"path", e.Path,
				"message_type", e.Message.Type,
				"error", e.Err)
		}
	}
	s.logger = s.logger.With("system", s.name)
	s.pool = NewPool(s.poolConfig, s.logger)
	return s
}

// Name returns the system name.
func (s *ActorSystem) Name() string { return s.name }

// Mode returns the dispatch mode.
func (s *ActorSystem) Mode() DispatchMode { return s.mode }

// Factory returns the kind factory used by Spawn.
func (s *ActorSystem) Factory() *Factory { return s.factory }

// Pool returns the execution substrate.
func (s *ActorSystem) Pool() *Pool { return s.pool }

// CreateActor registers and starts a. When an actor already lives at a's
// path the existing ref is returned and a is discarded without PreStart.
func (s *ActorSystem) CreateActor(ctx context.Context, a Actor) (*LocalRef, error) {
	if a == nil {
		return nil, &ActorCreationError{Err: fmt.Errorf("%w: nil actor", ErrInvalidArgument)}
	}
	return s.start(ctx, newCell(s, a, nil), a)
}

// Spawn builds an actor of a registered kind and starts it. An empty id is
// replaced by a random one. Spawned actors are rebuilt from the factory on
// restart.
func (s *ActorSystem) Spawn(ctx context.Context, kind, id string, args any) (*LocalRef, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if ref, ok := s.existing(PathFor(kind, id)); ok {
		return ref, nil
	}

	produce, err := s.factory.Producer(kind, id, args)
	if err != nil {
		return nil, err
	}
	a, err := produce()
	if err != nil {
		return nil, err
	}
	return s.start(ctx, newCell(s, a, produce), a)
}

func (s *ActorSystem) existing(path string) (*LocalRef, bool) {
	v, ok := s.actors.Load(path)
	if !ok {
		return nil, false
	}
	s.logger.Warn("actor already exists, returning existing ref", "path", path)
	return v.(*cell).ref, true
}

func (s *ActorSystem) start(ctx context.Context, c *cell, a Actor) (*LocalRef, error) {
	if s.closed.Load() {
		return nil, &ActorCreationError{Kind: a.Kind(), ID: a.ID(), Err: ErrSystemShutdown}
	}

	if v, loaded := s.actors.LoadOrStore(c.path, c); loaded {
		s.logger.Warn("actor already exists, returning existing ref", "path", c.path)
		return v.(*cell).ref, nil
	}
	s.refs.Store(c.path, c.ref)

	if err := a.PreStart(ctx); err != nil {
		s.actors.CompareAndDelete(c.path, c)
		s.refs.CompareAndDelete(c.path, c.ref)
		return nil, &ActorCreationError{Kind: a.Kind(), ID: a.ID(), Err: err}
	}

	if s.closed.Load() {
		s.removeCell(c, ActorStateStopped)
		return nil, &ActorCreationError{Kind: a.Kind(), ID: a.ID(), Err: ErrSystemShutdown}
	}

	if s.registrar != nil {
		s.registrar.RegisterLocalActor(c.path, c.ref)
	}
	s.logger.Info("actor.created", "path", c.path, "kind", c.kind)
	return c.ref, nil
}

// Ref returns the local ref registered at path.
func (s *ActorSystem) Ref(path string) (*LocalRef, bool) {
	v, ok := s.refs.Load(path)
	if !ok {
		return nil, false
	}
	return v.(*LocalRef), true
}

// Actor returns the actor instance currently registered at path.
func (s *ActorSystem) Actor(path string) (Actor, bool) {
	v, ok := s.actors.Load(path)
	if !ok {
		return nil, false
	}
	return v.(*cell).current(), true
}

func (s *ActorSystem) cellFor(a Actor) (*cell, error) {
	if a == nil {
		return nil, fmt.Errorf("%w: nil actor", ErrInvalidArgument)
	}
	v, ok := s.actors.Load(a.Path())
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrActorNotFound, a.Path())
	}
	return v.(*cell), nil
}

// Dispatch schedules a's handler for msg and returns immediately.
func (s *ActorSystem) Dispatch(a Actor, msg Message) error {
	c, err := s.cellFor(a)
	if err != nil {
		return err
	}
	return c.enqueue(&envelope{ctx: s.pool.Context(), msg: msg})
}

// DispatchWithResponse schedules a's handler for msg. The returned channel
// receives exactly one Reply unless ctx is done before the message is
// handled, in which case the reply carries ctx's error.
func (s *ActorSystem) DispatchWithResponse(ctx context.Context, a Actor, msg Message) (<-chan Reply, error) {
	c, err := s.cellFor(a)
	if err != nil {
		return nil, err
	}
	reply := make(chan Reply, 1)
	if err := c.enqueue(&envelope{ctx: ctx, msg: msg, reply: reply}); err != nil {
		return nil, err
	}
	return reply, nil
}

// StopActor removes the actor at path from both tables and stops it.
// Unknown paths are ignored.
func (s *ActorSystem) StopActor(path string) {
	v, ok := s.actors.Load(path)
	if !ok {
		return
	}
	s.removeCell(v.(*cell), ActorStateStopped)
}

func (s *ActorSystem) removeCell(c *cell, final ActorState) {
	if !s.actors.CompareAndDelete(c.path, c) {
		return
	}
	s.refs.CompareAndDelete(c.path, c.ref)
	if s.registrar != nil {
		s.registrar.UnregisterActor(c.path)
	}
	c.stop(final)
	s.logger.Info("actor.stopped", "path", c.path, "state", c.currentState().String())
}

// ActiveActorCount returns the number of registered actors that are active.
func (s *ActorSystem) ActiveActorCount() int {
	n := 0
	s.actors.Range(func(_, v any) bool {
		if v.(*cell).current().IsActive() {
			n++
		}
		return true
	})
	return n
}

// Stats returns a snapshot of every registered actor, ordered by path.
func (s *ActorSystem) Stats() []ActorStats {
	var out []ActorStats
	s.actors.Range(func(_, v any) bool {
		out = append(out, v.(*cell).stats())
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// IsShutdown reports whether Shutdown has been called.
func (s *ActorSystem) IsShutdown() bool {
	return s.closed.Load()
}

// Shutdown stops every actor, clears both tables and drains the pool. If ctx
// has no deadline the configured shutdown timeout applies. Work still
// running past the deadline has its context cancelled.
func (s *ActorSystem) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.closed.Store(true)

		var cells []*cell
		s.actors.Range(func(_, v any) bool {
			cells = append(cells, v.(*cell))
			return true
		})
		for _, c := range cells {
			s.removeCell(c, ActorStateStopped)
		}
		s.actors.Clear()
		s.refs.Clear()

		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.shutdownTimeout)
			defer cancel()
		}
		if err := s.pool.Shutdown(ctx); err != nil && !errors.Is(err, ErrPoolClosed) {
			s.shutdownErr = err
		}
		s.logger.Info("actor system shut down", "stopped", len(cells))
	})
	return s.shutdownErr
}
