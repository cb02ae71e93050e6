package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/najoast/actorkit/core"
)

// DefaultCacheTTL is how long a resolved remote ref is reused.
const DefaultCacheTTL = 30 * time.Second

type cachedRef struct {
	ref     *RemoteRef
	expires time.Time
}

// Registry resolves actor paths to refs. Local actors are registered by the
// actor system; remote refs are built on demand and cached.
type Registry struct {
	transport *Transport
	ttl       time.Duration
	logger    *slog.Logger
	now       func() time.Time

	local sync.Map // path -> core.ActorRef

	mu     sync.Mutex
	remote map[string]cachedRef
}

var _ core.Registrar = (*Registry)(nil)

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithCacheTTL sets how long remote refs stay cached.
func WithCacheTTL(ttl time.Duration) RegistryOption {
	return func(r *Registry) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithRegistryLogger sets the registry logger.
func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry creates a registry. transport may be nil for a node that never
// calls out.
func NewRegistry(transport *Transport, opts ...RegistryOption) *Registry {
	r := &Registry{
		transport: transport,
		ttl:       DefaultCacheTTL,
		logger:    slog.Default(),
		now:       time.Now,
		remote:    make(map[string]cachedRef),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterLocalActor implements core.Registrar.
func (r *Registry) RegisterLocalActor(path string, ref core.ActorRef) {
	if path == "" || ref == nil {
		return
	}
	r.local.Store(path, ref)
	r.logger.Debug("local actor registered", "path", path)
}

// UnregisterActor implements core.Registrar. Cached remote refs under the
// same path are dropped as well.
func (r *Registry) UnregisterActor(path string) {
	r.local.Delete(path)
	r.Evict(path)
	r.logger.Debug("actor unregistered", "path", path)
}

// Local returns the local ref registered under path.
func (r *Registry) Local(path string) (core.ActorRef, bool) {
	v, ok := r.local.Load(path)
	if !ok {
		return nil, false
	}
	return v.(core.ActorRef), true
}

// LocalCount returns the number of registered local actors.
func (r *Registry) LocalCount() int {
	n := 0
	r.local.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Resolve returns a ref for path.
//
// Local registrations win. A cached remote ref is reused while it is fresh
// and its node answers the health probe. Otherwise "/svc/rest" and
// "remote://svc/rest" paths become remote refs when svc is known to
// discovery or the fallback table.
func (r *Registry) Resolve(ctx context.Context, path string) (core.ActorRef, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrUnresolvedPath)
	}
	if ref, ok := r.Local(path); ok {
		return ref, nil
	}

	if ref, ok := r.cached(path); ok {
		if ref.IsAvailable(ctx) {
			return ref, nil
		}
		r.logger.Debug("cached remote ref unavailable, evicting", "path", path)
		r.Evict(path)
	}

	service, localPath, err := ParseRemotePath(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnresolvedPath, path)
	}
	if r.transport == nil || !r.transport.Resolver().Known(ctx, service) {
		return nil, fmt.Errorf("%w: service %s is not available", ErrUnresolvedPath, service)
	}

	ref := r.transport.Ref(service, localPath)
	r.mu.Lock()
	r.remote[path] = cachedRef{ref: ref, expires: r.now().Add(r.ttl)}
	r.mu.Unlock()

	r.logger.Debug("remote ref created", "path", path, "service", service)
	return ref, nil
}

func (r *Registry) cached(path string) (*RemoteRef, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.remote[path]
	if !ok {
		return nil, false
	}
	if !r.now().Before(entry.expires) {
		delete(r.remote, path)
		return nil, false
	}
	return entry.ref, true
}

// Evict drops the cached remote ref for path.
func (r *Registry) Evict(path string) {
	r.mu.Lock()
	delete(r.remote, path)
	r.mu.Unlock()
}

// CachedCount returns the number of cached remote refs, expired ones
// included.
func (r *Registry) CachedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.remote)
}

// SetFallback swaps the fallback table and drops every cached remote ref.
func (r *Registry) SetFallback(table map[string]string) {
	if r.transport == nil {
		return
	}
	r.transport.Resolver().SetFallback(table)

	r.mu.Lock()
	clear(r.remote)
	r.mu.Unlock()
	r.logger.Info("remote fallback table replaced", "services", len(table))
}
