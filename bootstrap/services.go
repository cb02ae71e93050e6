package bootstrap

import (
	"context"

	"github.com/najoast/actorkit/cluster"
	"github.com/najoast/actorkit/core"
)

// FuncService adapts plain functions to Service. Nil functions are no-ops;
// a nil health function reports healthy.
type FuncService struct {
	ServiceName string
	StartFunc   func(ctx context.Context) error
	StopFunc    func(ctx context.Context) error
	HealthFunc  func(ctx context.Context) HealthStatus
}

var _ Service = (*FuncService)(nil)

// Name implements Service.
func (s *FuncService) Name() string { return s.ServiceName }

// Start implements Service.
func (s *FuncService) Start(ctx context.Context) error {
	if s.StartFunc == nil {
		return nil
	}
	return s.StartFunc(ctx)
}

// Stop implements Service.
func (s *FuncService) Stop(ctx context.Context) error {
	if s.StopFunc == nil {
		return nil
	}
	return s.StopFunc(ctx)
}

// Health implements Service.
func (s *FuncService) Health(ctx context.Context) (HealthStatus, error) {
	if s.HealthFunc == nil {
		return HealthStatus{State: HealthHealthy}, nil
	}
	return s.HealthFunc(ctx), nil
}

// SystemService manages an actor system. Starting it spawns the configured
// actors; stopping it shuts the system down.
func SystemService(sys *core.ActorSystem, spawn func(ctx context.Context) error) Service {
	return &FuncService{
		ServiceName: "actor-system",
		StartFunc:   spawn,
		StopFunc:    sys.Shutdown,
		HealthFunc: func(context.Context) HealthStatus {
			if sys.IsShutdown() {
				return HealthStatus{State: HealthStopped, Message: "actor system is shut down"}
			}
			pool := sys.Pool()
			return HealthStatus{
				State: HealthHealthy,
				Data: map[string]any{
					"activeActors": sys.ActiveActorCount(),
					"workers":      pool.Workers(),
					"queued":       pool.QueueLen(),
					"dispatchMode": string(sys.Mode()),
				},
			}
		},
	}
}

// TransportService closes the outbound transport on stop.
func TransportService(t *cluster.Transport) Service {
	return &FuncService{
		ServiceName: "transport",
		StopFunc:    t.Close,
	}
}

// EndpointService serves the actor wire protocol.
func EndpointService(e *cluster.Endpoint) Service {
	return &FuncService{
		ServiceName: e.Name(),
		StartFunc:   e.Start,
		StopFunc:    e.Stop,
		HealthFunc: func(context.Context) HealthStatus {
			if !e.Healthy() {
				return HealthStatus{State: HealthUnhealthy, Message: "endpoint is not serving"}
			}
			return HealthStatus{State: HealthHealthy, Data: map[string]any{"address": e.Addr()}}
		},
	}
}
