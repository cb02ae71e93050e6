// Package cluster makes actors reachable across processes.
//
// Outbound calls go through a Transport, which posts messages as JSON to the
// actor endpoint of another node. Inbound calls arrive at an Endpoint, which
// hands them to the local actor system. The Registry ties both together and
// resolves actor paths to local or remote refs.
package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/najoast/actorkit/core"
)

// Wire paths served by every node.
const (
	MessagePath       = "/api/actors/message"
	InfoPath          = "/api/actors/info"
	DefaultHealthPath = "/actuator/health"
)

// TransportConfig holds the outbound call settings.
type TransportConfig struct {
	TellTimeout   time.Duration
	AskTimeout    time.Duration
	HealthTimeout time.Duration
	HealthPath    string
}

// DefaultTransportConfig returns the default outbound call settings.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		TellTimeout:   5 * time.Second,
		AskTimeout:    5 * time.Second,
		HealthTimeout: 2 * time.Second,
		HealthPath:    DefaultHealthPath,
	}
}

func (c *TransportConfig) normalize() {
	def := DefaultTransportConfig()
	if c.TellTimeout <= 0 {
		c.TellTimeout = def.TellTimeout
	}
	if c.AskTimeout <= 0 {
		c.AskTimeout = def.AskTimeout
	}
	if c.HealthTimeout <= 0 {
		c.HealthTimeout = def.HealthTimeout
	}
	if c.HealthPath == "" {
		c.HealthPath = def.HealthPath
	}
}

// Transport sends messages to actors hosted by other nodes.
type Transport struct {
	cfg      TransportConfig
	client   *resty.Client
	resolver *Resolver
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// NewTransport creates a transport resolving services through resolver.
func NewTransport(resolver *Resolver, cfg TransportConfig, logger *slog.Logger) *Transport {
	cfg.normalize()
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	client := resty.New().
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &Transport{
		cfg:      cfg,
		client:   client,
		resolver: resolver,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Config returns the transport settings.
func (t *Transport) Config() TransportConfig {
	return t.cfg
}

// Resolver returns the service resolver.
func (t *Transport) Resolver() *Resolver {
	return t.resolver
}

// Ref returns a ref to the actor at localPath hosted by service.
func (t *Transport) Ref(service, localPath string) *RemoteRef {
	return &RemoteRef{
		transport: t,
		service:   service,
		localPath: localPath,
		path:      RemotePath(service, localPath),
	}
}

// goTell runs fn in the background as an in-flight fire-and-forget call.
func (t *Transport) goTell(fn func(ctx context.Context)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return core.ErrSystemShutdown
	}
	t.inflight.Add(1)
	go func() {
		defer t.inflight.Done()
		ctx, cancel := context.WithTimeout(t.ctx, t.cfg.TellTimeout)
		defer cancel()
		fn(ctx)
	}()
	return nil
}

func (t *Transport) post(ctx context.Context, url string, msg core.Message) (*resty.Response, error) {
	return t.client.R().
		SetContext(ctx).
		SetBody(msg).
		Post(url)
}

func (t *Transport) probe(ctx context.Context, baseURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.HealthTimeout)
	defer cancel()

	resp, err := t.client.R().SetContext(ctx).Get(baseURL + t.cfg.HealthPath)
	if err != nil {
		t.logger.Debug("health probe failed", "url", baseURL, "error", err)
		return false
	}
	return resp.StatusCode() == 200
}

// Close refuses new tells and waits for in-flight ones. When ctx ends first
// the remaining calls are cancelled.
func (t *Transport) Close(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.cancel()
		return nil
	case <-ctx.Done():
		t.cancel()
		<-done
		return fmt.Errorf("transport close: %w", ctx.Err())
	}
}
