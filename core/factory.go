package core

import (
	"fmt"
	"sort"
	"sync"
)

// NoArgs is the argument type of kinds whose constructor takes nothing.
type NoArgs struct{}

// Constructor builds an actor of one kind from typed arguments.
type Constructor[A any] func(id string, args A) (Actor, error)

type builder func(id string, args any) (Actor, error)

// Factory maps kind names to constructors. It replaces runtime type lookup:
// every kind a system can spawn is registered up front with the exact
// argument type its constructor needs.
type Factory struct {
	mu    sync.RWMutex
	kinds map[string]builder
}

// NewFactory creates an empty factory.
func NewFactory() *Factory {
	return &Factory{kinds: make(map[string]builder)}
}

// RegisterKind binds kind to ctor. Spawning the kind with arguments that are
// not of type A fails with an *ActorCreationError.
func RegisterKind[A any](f *Factory, kind string, ctor Constructor[A]) error {
	if kind == "" {
		return fmt.Errorf("%w: empty kind name", ErrInvalidArgument)
	}
	if ctor == nil {
		return fmt.Errorf("%w: nil constructor for kind %s", ErrInvalidArgument, kind)
	}

	build := func(id string, args any) (Actor, error) {
		typed, ok := args.(A)
		if !ok {
			var zero A
			if _, noArgs := any(zero).(NoArgs); noArgs && args == nil {
				typed = zero
			} else if args == nil {
				return nil, fmt.Errorf("%w: kind %s needs %T", ErrMissingArgs, kind, zero)
			} else {
				return nil, fmt.Errorf("%w: kind %s needs %T, got %T", ErrInvalidArgument, kind, zero, args)
			}
		}
		return ctor(id, typed)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.kinds[kind]; exists {
		return fmt.Errorf("%w: kind %s already registered", ErrIllegalState, kind)
	}
	f.kinds[kind] = build
	return nil
}

// MustRegisterKind is RegisterKind that panics on error.
func MustRegisterKind[A any](f *Factory, kind string, ctor Constructor[A]) {
	if err := RegisterKind(f, kind, ctor); err != nil {
		panic(err)
	}
}

// Kinds returns the registered kind names, sorted.
func (f *Factory) Kinds() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.kinds))
	for k := range f.kinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Producer returns a function building fresh instances of kind with id and
// args. Unknown kinds fail here; argument mismatches fail on each call.
func (f *Factory) Producer(kind, id string, args any) (func() (Actor, error), error) {
	f.mu.RLock()
	build, ok := f.kinds[kind]
	f.mu.RUnlock()
	if !ok {
		return nil, &ActorCreationError{Kind: kind, ID: id, Err: ErrUnknownKind}
	}

	produce := func() (Actor, error) {
		a, err := build(id, args)
		if err != nil {
			return nil, &ActorCreationError{Kind: kind, ID: id, Err: err}
		}
		if a == nil {
			return nil, &ActorCreationError{Kind: kind, ID: id, Err: fmt.Errorf("%w: constructor returned nil", ErrIllegalState)}
		}
		return a, nil
	}
	return produce, nil
}

// New builds one instance of kind.
func (f *Factory) New(kind, id string, args any) (Actor, error) {
	produce, err := f.Producer(kind, id, args)
	if err != nil {
		return nil, err
	}
	return produce()
}
