package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"strings"
	"time"

	"github.com/najoast/actorkit/bootstrap"
	"github.com/najoast/actorkit/cluster"
	"github.com/najoast/actorkit/config"
	"github.com/najoast/actorkit/core"
	"github.com/najoast/actorkit/discovery"
	"github.com/najoast/actorkit/examples/stats"
	"github.com/najoast/actorkit/logging"
)

type serveOptions struct {
	configFile string
	service    string
	port       int
	watch      bool
}

func serve(ctx context.Context, o serveOptions) error {
	if o.watch && o.configFile == "" {
		return errors.New("--watch needs --config")
	}
	cfg, err := config.NewLoader().Load(o.configFile)
	if err != nil {
		return err
	}
	if o.service != "" {
		cfg.Discovery.ServiceName = o.service
	}
	if o.port != 0 {
		cfg.Server.Port = o.port
	}

	opts := []bootstrap.NodeOption{bootstrap.WithKinds(stats.Register)}
	if o.watch {
		opts = append(opts, bootstrap.WithConfigWatch(o.configFile))
	}
	node, err := bootstrap.NewNode(cfg, opts...)
	if err != nil {
		return err
	}
	return node.Run(ctx)
}

type sendOptions struct {
	to         string
	msgType    string
	payload    string
	ask        bool
	nodes      []string
	configFile string
	timeout    time.Duration
}

func send(ctx context.Context, out io.Writer, o sendOptions) error {
	cfg := config.DefaultConfig()
	if o.configFile != "" {
		loaded, err := config.NewLoader().LoadFromFile(o.configFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	fallback := maps.Clone(cfg.Remote.Fallback)
	if fallback == nil {
		fallback = make(map[string]string)
	}
	extra, err := parseNodes(o.nodes)
	if err != nil {
		return err
	}
	maps.Copy(fallback, extra)

	logger, err := logging.NewWithWriter(os.Stderr, slog.LevelWarn, "text", nil)
	if err != nil {
		return err
	}

	strategy, err := discovery.ParseStrategy(cfg.Discovery.Strategy)
	if err != nil {
		return err
	}
	var lookup discovery.Discovery
	if cfg.Discovery.Enabled {
		reg, err := discovery.Static(cfg.Discovery.Services)
		if err != nil {
			return err
		}
		lookup = reg
	}

	transport := cluster.NewTransport(
		cluster.NewResolver(lookup, discovery.NewBalancer(strategy), fallback, logger),
		cluster.TransportConfig{
			TellTimeout:   cfg.Remote.TellTimeout,
			AskTimeout:    cfg.Remote.AskTimeout,
			HealthTimeout: cfg.Remote.HealthTimeout,
			HealthPath:    cfg.Server.HealthPath,
		}, logger)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Remote.TellTimeout+time.Second)
		defer cancel()
		_ = transport.Close(closeCtx)
	}()

	registry := cluster.NewRegistry(transport, cluster.WithRegistryLogger(logger))
	ref, err := registry.Resolve(ctx, o.to)
	if err != nil {
		return err
	}

	msg := core.NewMessage(o.msgType, parsePayload(o.payload))
	if !o.ask {
		return ref.Tell(msg)
	}

	reply, err := ref.Ask(ctx, msg, o.timeout)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(reply)
}

// parseNodes reads service=baseURL pairs.
func parseNodes(entries []string) (map[string]string, error) {
	nodes := make(map[string]string, len(entries))
	for _, entry := range entries {
		service, base, ok := strings.Cut(entry, "=")
		service, base = strings.TrimSpace(service), strings.TrimSpace(base)
		if !ok || service == "" || base == "" {
			return nil, fmt.Errorf("invalid node %q, want service=baseURL", entry)
		}
		if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
			base = "http://" + base
		}
		nodes[service] = base
	}
	return nodes, nil
}

// parsePayload decodes s as JSON, falling back to the raw string. An empty
// string means no payload.
func parsePayload(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}
