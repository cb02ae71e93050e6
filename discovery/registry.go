package discovery

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Registry is an in-memory, concurrency-safe Discovery.
type Registry struct {
	mu       sync.RWMutex
	services map[string]map[string]Instance // service -> instance id -> instance

	watcherMu sync.RWMutex
	watchers  map[uint64]chan Event
	watcherID uint64
}

var _ Discovery = (*Registry)(nil)

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		services: make(map[string]map[string]Instance),
		watchers: make(map[uint64]chan Event),
	}
}

// Static builds a registry from a service -> addresses table, as found in
// configuration. Addresses are "host:port" or "scheme://host:port".
func Static(table map[string][]string) (*Registry, error) {
	r := NewRegistry()
	if err := r.Replace(table); err != nil {
		return nil, err
	}
	return r, nil
}

// Register adds or updates an instance.
func (r *Registry) Register(inst Instance) error {
	if inst.Service == "" || inst.Host == "" || inst.Port <= 0 {
		return fmt.Errorf("%w: service, host and port are required", ErrInvalidInstance)
	}
	if inst.Status == StatusUnknown {
		inst.Status = StatusHealthy
	}
	if inst.RegisteredAt.IsZero() {
		inst.RegisteredAt = time.Now()
	}

	r.mu.Lock()
	byID, ok := r.services[inst.Service]
	if !ok {
		byID = make(map[string]Instance)
		r.services[inst.Service] = byID
	}
	byID[inst.ID()] = inst
	r.mu.Unlock()

	r.notify(Event{Type: EventRegister, Instance: inst, Timestamp: time.Now()})
	return nil
}

// Deregister removes the instance with id from service.
func (r *Registry) Deregister(service, id string) error {
	r.mu.Lock()
	byID, ok := r.services[service]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrServiceNotFound, service)
	}
	inst, ok := byID[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s has no instance %s", ErrServiceNotFound, service, id)
	}
	delete(byID, id)
	if len(byID) == 0 {
		delete(r.services, service)
	}
	r.mu.Unlock()

	r.notify(Event{Type: EventDeregister, Instance: inst, Timestamp: time.Now()})
	return nil
}

// SetStatus updates the health status of an instance.
func (r *Registry) SetStatus(service, id string, status Status) error {
	r.mu.Lock()
	byID, ok := r.services[service]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrServiceNotFound, service)
	}
	inst, ok := byID[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s has no instance %s", ErrServiceNotFound, service, id)
	}
	changed := inst.Status != status
	inst.Status = status
	byID[id] = inst
	r.mu.Unlock()

	if changed {
		r.notify(Event{Type: EventStatusChange, Instance: inst, Timestamp: time.Now()})
	}
	return nil
}

// Lookup implements Discovery. Instances are ordered by id.
func (r *Registry) Lookup(ctx context.Context, service string) ([]Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	byID, ok := r.services[service]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, service)
	}
	out := make([]Instance, 0, len(byID))
	for _, inst := range byID {
		if inst.Status == StatusHealthy {
			out = append(out, inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out, nil
}

// Services returns the registered service names, sorted.
func (r *Registry) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Replace swaps the whole content for the given service -> addresses table.
// Watchers see a deregister for every dropped instance and a register for
// every instance in the table.
func (r *Registry) Replace(table map[string][]string) error {
	next := make(map[string]map[string]Instance, len(table))
	now := time.Now()
	for service, addrs := range table {
		for _, addr := range addrs {
			inst, err := ParseInstance(service, addr)
			if err != nil {
				return err
			}
			inst.RegisteredAt = now
			if next[service] == nil {
				next[service] = make(map[string]Instance)
			}
			next[service][inst.ID()] = inst
		}
	}

	r.mu.Lock()
	prev := r.services
	r.services = next
	r.mu.Unlock()

	for service, byID := range prev {
		for id, inst := range byID {
			if _, kept := next[service][id]; !kept {
				r.notify(Event{Type: EventDeregister, Instance: inst, Timestamp: now})
			}
		}
	}
	for _, byID := range next {
		for _, inst := range byID {
			r.notify(Event{Type: EventRegister, Instance: inst, Timestamp: now})
		}
	}
	return nil
}

// Watch streams registry events until ctx is done.
func (r *Registry) Watch(ctx context.Context) <-chan Event {
	r.watcherMu.Lock()
	r.watcherID++
	id := r.watcherID
	ch := make(chan Event, 100)
	r.watchers[id] = ch
	r.watcherMu.Unlock()

	go func() {
		<-ctx.Done()
		r.watcherMu.Lock()
		delete(r.watchers, id)
		close(ch)
		r.watcherMu.Unlock()
	}()

	return ch
}

func (r *Registry) notify(ev Event) {
	r.watcherMu.RLock()
	defer r.watcherMu.RUnlock()

	for _, ch := range r.watchers {
		select {
		case ch <- ev:
		default:
			// watcher is full, drop the event
		}
	}
}
