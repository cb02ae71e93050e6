package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/najoast/actorkit/core"
)

// EndpointConfig holds the inbound listener settings.
type EndpointConfig struct {
	Address    string
	HealthPath string
	AskTimeout time.Duration
}

// Endpoint serves the actor wire protocol for the local actor system.
type Endpoint struct {
	cfg      EndpointConfig
	system   *core.ActorSystem
	registry *Registry
	app      *fiber.App
	logger   *slog.Logger

	running atomic.Bool

	mu   sync.Mutex
	ln   net.Listener
	done chan error
}

// NewEndpoint creates an endpoint for system. registry may be nil, in which
// case receivers are looked up in the system only.
func NewEndpoint(system *core.ActorSystem, registry *Registry, cfg EndpointConfig, logger *slog.Logger) *Endpoint {
	if cfg.HealthPath == "" {
		cfg.HealthPath = DefaultHealthPath
	}
	if cfg.AskTimeout <= 0 {
		cfg.AskTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &Endpoint{
		cfg:      cfg,
		system:   system,
		registry: registry,
		logger:   logger,
	}
	e.app = fiber.New(fiber.Config{
		AppName:               system.Name(),
		DisableStartupMessage: true,
	})
	e.app.Post(MessagePath, e.handleMessage)
	e.app.Get(InfoPath, e.handleInfo)
	e.app.Get(cfg.HealthPath, e.handleHealth)
	return e
}

// Name returns the service name used by the lifecycle manager.
func (e *Endpoint) Name() string {
	return "endpoint"
}

// App exposes the underlying fiber app.
func (e *Endpoint) App() *fiber.App {
	return e.app
}

// Addr returns the bound address, or "" before Start.
func (e *Endpoint) Addr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ln == nil {
		return ""
	}
	return e.ln.Addr().String()
}

// Healthy reports whether the endpoint is serving and the system is up.
func (e *Endpoint) Healthy() bool {
	return e.running.Load() && !e.system.IsShutdown()
}

// Start binds the listener and serves in the background.
func (e *Endpoint) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ln != nil {
		return fmt.Errorf("endpoint already started on %s", e.ln.Addr())
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", e.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", e.cfg.Address, err)
	}
	e.ln = ln
	e.done = make(chan error, 1)
	e.running.Store(true)

	go func(done chan<- error) {
		done <- e.app.Listener(ln)
	}(e.done)

	e.logger.Info("actor endpoint listening", "address", ln.Addr().String())
	return nil
}

// Done returns a channel receiving the serve error once the listener stops.
// It is nil before Start.
func (e *Endpoint) Done() <-chan error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done
}

// Stop shuts the server down, waiting for in-flight requests until ctx ends.
func (e *Endpoint) Stop(ctx context.Context) error {
	if !e.running.CompareAndSwap(true, false) {
		return nil
	}
	if err := e.app.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("endpoint shutdown: %w", err)
	}
	e.logger.Info("actor endpoint stopped")
	return nil
}

func (e *Endpoint) lookup(path string) (core.ActorRef, bool) {
	if e.registry != nil {
		if ref, ok := e.registry.Local(path); ok {
			return ref, true
		}
	}
	ref, ok := e.system.Ref(path)
	if !ok {
		return nil, false
	}
	return ref, true
}

func (e *Endpoint) handleMessage(c *fiber.Ctx) error {
	var msg core.Message
	if err := json.Unmarshal(c.Body(), &msg); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid message body: "+err.Error())
	}
	if msg.ReceiverPath == "" {
		return errorJSON(c, fiber.StatusBadRequest, "receiverPath is required")
	}

	path := LocalPath(msg.ReceiverPath)
	ref, ok := e.lookup(path)
	if !ok {
		e.logger.Warn("remote message for unknown actor", "path", msg.ReceiverPath, "message_type", msg.Type)
		return errorJSON(c, fiber.StatusNotFound, "actor not found: "+path)
	}
	msg.ReceiverPath = path

	e.logger.Debug("remote message received",
		"path", path,
		"message_type", msg.Type,
		"message_id", msg.ID,
		"sender", msg.SenderPath)

	if !msg.RequiresResponse {
		if err := ref.Tell(msg); err != nil {
			return errorJSON(c, fiber.StatusServiceUnavailable, err.Error())
		}
		return c.SendStatus(fiber.StatusAccepted)
	}

	result, err := ref.Ask(c.UserContext(), msg, e.cfg.AskTimeout)
	switch {
	case err == nil:
		return c.Status(fiber.StatusOK).JSON(result)
	case errors.Is(err, core.ErrAskTimeout):
		return errorJSON(c, fiber.StatusGatewayTimeout, err.Error())
	case errors.Is(err, core.ErrActorInactive), errors.Is(err, core.ErrSystemShutdown):
		return errorJSON(c, fiber.StatusServiceUnavailable, err.Error())
	default:
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}
}

func (e *Endpoint) handleInfo(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"activeActorCount": e.system.ActiveActorCount(),
		"actors":           e.system.Stats(),
	})
}

func (e *Endpoint) handleHealth(c *fiber.Ctx) error {
	if e.system.IsShutdown() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "DOWN"})
	}
	return c.JSON(fiber.Map{"status": "UP"})
}

func errorJSON(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": message})
}
