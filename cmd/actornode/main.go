// Command actornode runs an actorkit node or sends one message to an actor.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "actornode:", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "actornode",
		Usage: "run and talk to actorkit nodes",
		Commands: []*cli.Command{
			serveCommand(),
			sendCommand(),
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "start a node and serve the actor endpoint",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "configuration file, searched for when empty",
				Sources: cli.EnvVars("ACTORKIT_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "service",
				Usage: "service name, overrides discovery.service_name",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "listen port, overrides server.port",
			},
			&cli.BoolFlag{
				Name:  "watch",
				Usage: "reload the fallback and discovery tables when the file changes",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return serve(ctx, serveOptions{
				configFile: cmd.String("config"),
				service:    cmd.String("service"),
				port:       cmd.Int("port"),
				watch:      cmd.Bool("watch"),
			})
		},
	}
}

func sendCommand() *cli.Command {
	return &cli.Command{
		Name:  "send",
		Usage: "send one message to a local or remote actor path",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "to",
				Usage:    "receiver, remote://<service>/user/<kind>/<id>",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "type",
				Aliases:  []string{"t"},
				Usage:    "message type",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "payload",
				Aliases: []string{"p"},
				Usage:   "payload as JSON, sent as a string when not valid JSON",
			},
			&cli.BoolFlag{
				Name:  "ask",
				Usage: "wait for the reply and print it",
			},
			&cli.StringSliceFlag{
				Name:  "node",
				Usage: "service=baseURL fallback entry, repeatable",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "configuration file providing fallback and discovery tables",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "ask timeout, zero uses remote.ask_timeout",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return send(ctx, cmd.Root().Writer, sendOptions{
				to:         cmd.String("to"),
				msgType:    cmd.String("type"),
				payload:    cmd.String("payload"),
				ask:        cmd.Bool("ask"),
				nodes:      cmd.StringSlice("node"),
				configFile: cmd.String("config"),
				timeout:    cmd.Duration("timeout"),
			})
		},
	}
}
