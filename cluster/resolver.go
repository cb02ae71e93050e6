package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync/atomic"

	"github.com/najoast/actorkit/discovery"
)

// Resolver turns a service name into the base URL of one of its instances.
//
// Discovery is consulted first and an instance is picked by the balancer.
// When discovery fails or returns nothing the fallback table is used. The
// table is injected from configuration and can be swapped at runtime.
type Resolver struct {
	discovery discovery.Discovery
	balancer  *discovery.Balancer
	fallback  atomic.Pointer[map[string]string]
	logger    *slog.Logger
}

// NewResolver creates a resolver. d may be nil, in which case only the
// fallback table is used.
func NewResolver(d discovery.Discovery, b *discovery.Balancer, fallback map[string]string, logger *slog.Logger) *Resolver {
	if b == nil {
		b = discovery.NewBalancer(discovery.RoundRobin)
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{discovery: d, balancer: b, logger: logger}
	r.SetFallback(fallback)
	return r
}

// SetFallback replaces the service -> base URL fallback table.
func (r *Resolver) SetFallback(table map[string]string) {
	cp := make(map[string]string, len(table))
	for k, v := range table {
		cp[k] = strings.TrimSuffix(v, "/")
	}
	r.fallback.Store(&cp)
}

// Fallback returns a copy of the fallback table.
func (r *Resolver) Fallback() map[string]string {
	return maps.Clone(*r.fallback.Load())
}

// Resolve returns a base URL for service and a function to call when the
// request sent to it is finished.
func (r *Resolver) Resolve(ctx context.Context, service string) (string, func(), error) {
	if r.discovery != nil {
		instances, err := r.discovery.Lookup(ctx, service)
		switch {
		case err != nil:
			r.logger.Debug("discovery lookup failed, trying fallback", "service", service, "error", err)
		case len(instances) == 0:
			r.logger.Debug("discovery returned no instances, trying fallback", "service", service)
		default:
			inst, err := r.balancer.Select(instances)
			if err == nil {
				base := inst.BaseURL()
				return base, r.balancer.Begin(base), nil
			}
			r.logger.Debug("no selectable instance, trying fallback", "service", service, "error", err)
		}
	}

	if base, ok := (*r.fallback.Load())[service]; ok && base != "" {
		return base, r.balancer.Begin(base), nil
	}
	return "", func() {}, fmt.Errorf("%w: %s", ErrRemoteUnavailable, service)
}

// Known reports whether service has live instances in discovery or an entry
// in the fallback table.
func (r *Resolver) Known(ctx context.Context, service string) bool {
	if r.discovery != nil {
		instances, err := r.discovery.Lookup(ctx, service)
		if err == nil && len(instances) > 0 {
			return true
		}
		if err != nil && !errors.Is(err, discovery.ErrServiceNotFound) {
			r.logger.Debug("discovery lookup failed", "service", service, "error", err)
		}
	}
	_, ok := (*r.fallback.Load())[service]
	return ok
}
