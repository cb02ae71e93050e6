package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/najoast/actorkit/cluster"
	"github.com/najoast/actorkit/config"
	"github.com/najoast/actorkit/core"
	"github.com/najoast/actorkit/discovery"
	"github.com/najoast/actorkit/logging"
)

// KindRegistrar registers actor kinds with a node's factory.
type KindRegistrar func(f *core.Factory) error

type nodeOptions struct {
	logger      *slog.Logger
	kinds       []KindRegistrar
	configFile  string
	escalation  core.EscalationHandler
	stopTimeout time.Duration
}

// NodeOption configures a Node.
type NodeOption func(*nodeOptions)

// WithNodeLogger uses l instead of building a logger from the log config.
func WithNodeLogger(l *slog.Logger) NodeOption {
	return func(o *nodeOptions) { o.logger = l }
}

// WithKinds registers actor kinds before configured actors are spawned.
func WithKinds(kinds ...KindRegistrar) NodeOption {
	return func(o *nodeOptions) { o.kinds = append(o.kinds, kinds...) }
}

// WithConfigWatch reloads path while the node runs and applies the parts
// of the configuration that can change at runtime.
func WithConfigWatch(path string) NodeOption {
	return func(o *nodeOptions) { o.configFile = path }
}

// WithEscalation sets the handler for escalated actor failures.
func WithEscalation(h core.EscalationHandler) NodeOption {
	return func(o *nodeOptions) { o.escalation = h }
}

// Node is one actorkit process: an actor system, its registry, the outbound
// transport and the inbound endpoint.
type Node struct {
	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer

	discovery *discovery.Registry
	transport *cluster.Transport
	registry  *cluster.Registry
	system    *core.ActorSystem
	endpoint  *cluster.Endpoint
	lifecycle *DefaultLifecycleManager
	watcher   *config.Watcher

	stopTimeout time.Duration
}

// NewNode builds a node from cfg. Nothing listens until Run.
func NewNode(cfg *config.Config, opts ...NodeOption) (*Node, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, &ApplicationError{Operation: "configure", Err: err}
	}

	o := nodeOptions{stopTimeout: cfg.Actor.ShutdownTimeout + 5*time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	n := &Node{cfg: cfg, logCloser: io.NopCloser(nil), stopTimeout: o.stopTimeout}
	if o.logger != nil {
		n.logger = o.logger
	} else {
		logger, closer, err := logging.New(cfg.Log)
		if err != nil {
			return nil, &ApplicationError{Operation: "configure", Service: "logging", Err: err}
		}
		n.logger, n.logCloser = logger, closer
	}
	n.logger = n.logger.With("service", cfg.GetServiceName())

	if err := n.build(cfg, o); err != nil {
		_ = n.logCloser.Close()
		return nil, err
	}
	return n, nil
}

func (n *Node) build(cfg *config.Config, o nodeOptions) error {
	// Discovery and outbound calls
	strategy, err := discovery.ParseStrategy(cfg.Discovery.Strategy)
	if err != nil {
		return &ApplicationError{Operation: "configure", Service: "discovery", Err: err}
	}
	var lookup discovery.Discovery
	if cfg.Discovery.Enabled {
		reg, err := discovery.Static(cfg.Discovery.Services)
		if err != nil {
			return &ApplicationError{Operation: "configure", Service: "discovery", Err: err}
		}
		n.discovery = reg
		lookup = reg
	}
	resolver := cluster.NewResolver(lookup, discovery.NewBalancer(strategy), cfg.Remote.Fallback, n.logger)
	n.transport = cluster.NewTransport(resolver, cluster.TransportConfig{
		TellTimeout:   cfg.Remote.TellTimeout,
		AskTimeout:    cfg.Remote.AskTimeout,
		HealthTimeout: cfg.Remote.HealthTimeout,
		HealthPath:    cfg.Server.HealthPath,
	}, n.logger)
	n.registry = cluster.NewRegistry(n.transport,
		cluster.WithCacheTTL(cfg.Remote.CacheTTL),
		cluster.WithRegistryLogger(n.logger))

	// Actor system
	mode, err := core.ParseDispatchMode(cfg.Actor.DispatchMode)
	if err != nil {
		return &ApplicationError{Operation: "configure", Service: "actor-system", Err: err}
	}
	factory := core.NewFactory()
	for _, register := range o.kinds {
		if err := register(factory); err != nil {
			return &ApplicationError{Operation: "configure", Service: "actor-system", Err: err}
		}
	}
	sysOpts := []core.Option{
		core.WithName(cfg.App.Name),
		core.WithLogger(n.logger),
		core.WithPoolConfig(poolConfig(cfg.Actor)),
		core.WithDispatchMode(mode),
		core.WithRestartLimit(core.RestartLimit{Max: cfg.Actor.RestartLimit.Max, Within: cfg.Actor.RestartLimit.Within}),
		core.WithAskTimeout(cfg.Actor.AskTimeout),
		core.WithShutdownTimeout(cfg.Actor.ShutdownTimeout),
		core.WithRegistrar(n.registry),
		core.WithFactory(factory),
	}
	if o.escalation != nil {
		sysOpts = append(sysOpts, core.WithEscalationHandler(o.escalation))
	}
	n.system = core.NewActorSystem(sysOpts...)

	// Inbound endpoint
	n.endpoint = cluster.NewEndpoint(n.system, n.registry, cluster.EndpointConfig{
		Address:    cfg.Server.ListenAddr(),
		HealthPath: cfg.Server.HealthPath,
		AskTimeout: cfg.Server.AskTimeout,
	}, n.logger)

	if o.configFile != "" {
		loader := config.NewLoader()
		w, err := config.NewWatcher(o.configFile, loader, n.logger)
		if err != nil {
			return &ApplicationError{Operation: "configure", Service: "config-watcher", Err: err}
		}
		w.OnConfigChange(n.applyConfig)
		n.watcher = w
	}

	n.lifecycle = NewLifecycleManager(n.logger)
	n.lifecycle.SetTimeout(n.stopTimeout)
	spawn := func(ctx context.Context) error {
		for _, sp := range cfg.Actor.Spawn {
			if _, err := n.system.Spawn(ctx, sp.Kind, sp.ID, nil); err != nil {
				return err
			}
		}
		return nil
	}
	for _, reg := range []struct {
		svc  Service
		deps []string
	}{
		{SystemService(n.system, spawn), nil},
		{TransportService(n.transport), nil},
		{EndpointService(n.endpoint), []string{"actor-system", "transport"}},
	} {
		if err := n.lifecycle.Register(reg.svc.Name(), reg.svc, reg.deps...); err != nil {
			return err
		}
	}
	return nil
}

func poolConfig(a config.ActorConfig) core.PoolConfig {
	pc := core.DefaultPoolConfig()
	if a.CoreWorkers > 0 {
		pc.CoreWorkers = a.CoreWorkers
		pc.MaxWorkers = 2 * a.CoreWorkers
	}
	if a.MaxWorkers > 0 {
		pc.MaxWorkers = a.MaxWorkers
	}
	if a.QueueCapacity > 0 {
		pc.QueueCapacity = a.QueueCapacity
	}
	if a.WorkerIdleTimeout > 0 {
		pc.IdleTimeout = a.WorkerIdleTimeout
	}
	return pc
}

// applyConfig applies a reloaded configuration. Only the remote fallback
// table and the static discovery table change at runtime.
func (n *Node) applyConfig(oldCfg, newCfg *config.Config) {
	if !maps.Equal(oldCfg.Remote.Fallback, newCfg.Remote.Fallback) {
		n.registry.SetFallback(newCfg.Remote.Fallback)
	}
	if n.discovery != nil && !maps.EqualFunc(oldCfg.Discovery.Services, newCfg.Discovery.Services, slices.Equal[[]string]) {
		if err := n.discovery.Replace(newCfg.Discovery.Services); err != nil {
			n.logger.Warn("discovery table not applied", "error", err)
		} else {
			n.logger.Info("discovery table replaced", "services", len(newCfg.Discovery.Services))
		}
	}
	if oldCfg.Server != newCfg.Server || oldCfg.Actor.DispatchMode != newCfg.Actor.DispatchMode {
		n.logger.Warn("server and actor settings only change on restart")
	}
}

// Config returns the configuration the node was built from.
func (n *Node) Config() *config.Config { return n.cfg }

// Logger returns the node logger.
func (n *Node) Logger() *slog.Logger { return n.logger }

// System returns the actor system.
func (n *Node) System() *core.ActorSystem { return n.system }

// Registry returns the actor registry.
func (n *Node) Registry() *cluster.Registry { return n.registry }

// Endpoint returns the inbound endpoint.
func (n *Node) Endpoint() *cluster.Endpoint { return n.endpoint }

// Discovery returns the static discovery registry, nil when disabled.
func (n *Node) Discovery() *discovery.Registry { return n.discovery }

// Lifecycle returns the lifecycle manager.
func (n *Node) Lifecycle() *DefaultLifecycleManager { return n.lifecycle }

// Run starts every service and blocks until ctx is done or a background
// task fails, then stops the services in reverse order.
func (n *Node) Run(ctx context.Context) error {
	defer n.logCloser.Close()

	if err := n.lifecycle.Start(ctx); err != nil {
		return err
	}
	n.logger.Info("node started",
		"address", n.endpoint.Addr(),
		"kinds", n.system.Factory().Kinds(),
		"actors", n.system.ActiveActorCount())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-n.endpoint.Done():
			if err == nil {
				err = errors.New("listener closed")
			}
			return &ApplicationError{Operation: "serve", Service: "endpoint", Err: err}
		}
	})
	if n.watcher != nil {
		g.Go(func() error { return n.watcher.Run(gctx) })
	}
	runErr := g.Wait()

	n.logger.Info("node stopping")
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.stopTimeout)
	defer cancel()
	stopErr := n.lifecycle.Stop(stopCtx)
	if stopErr != nil {
		n.logger.Warn("node stopped with errors", "error", stopErr)
	} else {
		n.logger.Info("node stopped")
	}
	return errors.Join(runErr, stopErr)
}

// Health reports the health of every service.
func (n *Node) Health(ctx context.Context) (map[string]HealthStatus, error) {
	return n.lifecycle.Health(ctx)
}

// String describes the node for logs.
func (n *Node) String() string {
	return fmt.Sprintf("%s@%s", n.cfg.GetServiceName(), n.cfg.Server.ListenAddr())
}
