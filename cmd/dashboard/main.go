package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/tender-automation/dashboard/cmd/dashboard/commands"
)

// Version info (set during build)
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	commands.Version = Version

	app := &cli.Command{
		Name:    "dashboard",
		Usage:   "Operator console for the tender automation backend",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML config file (created with defaults when missing)",
				Value:   "dashboard.yaml",
				Sources: cli.EnvVars("DASHBOARD_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "env",
				Usage: "environment file path",
				Value: ".env",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "tui",
				Usage:  "Interactive dashboard",
				Action: commands.TUIAction,
			},
			{
				Name:  "watch",
				Usage: "Start a run and stream its activity log",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "source",
						Aliases:  []string{"s"},
						Usage:    "source ID to run",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "download",
						Usage: "save every result archive when the run completes",
					},
				},
				Action: commands.WatchAction,
			},
			{
				Name:   "sources",
				Usage:  "List available sources",
				Action: commands.SourcesAction,
			},
			{
				Name:   "results",
				Usage:  "List results of the last run",
				Action: commands.ResultsAction,
			},
			{
				Name:      "download",
				Usage:     "Save result archives",
				ArgsUsage: "<tender title | row number>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "all",
						Usage: "save every result",
					},
				},
				Action: commands.DownloadAction,
			},
			{
				Name:  "saved",
				Usage: "List archives in the local download directory",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "show at most this many archives (0 for all)",
					},
				},
				Action: commands.SavedAction,
			},
			{
				Name:  "devserver",
				Usage: "Run a local backend that replays a scripted job",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "listen",
						Usage: "listen address",
						Value: "localhost:8000",
					},
					&cli.BoolFlag{
						Name:  "binary",
						Usage: "send msgpack frames instead of JSON",
					},
					&cli.StringFlag{
						Name:  "fail-start",
						Usage: "make every run fail with this message",
					},
					&cli.DurationFlag{
						Name:  "step-delay",
						Usage: "pause between scripted messages",
						Value: 300 * time.Millisecond,
					},
					&cli.BoolFlag{
						Name:  "legacy-sources",
						Usage: "answer /api/sources with the legacy \"banks\" key",
					},
					&cli.BoolFlag{
						Name:  "request-logging",
						Usage: "log every HTTP request",
					},
				},
				Action: commands.DevServerAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
