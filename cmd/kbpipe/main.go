package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/kbpipe/internal"
	"github.com/starford/kbpipe/internal/apperr"
	pkgconfig "github.com/starford/kbpipe/pkg/config"
)

// version is set at build time.
var version = "dev"

// loadApp reads the configuration named by the global flags and builds the
// application.
func loadApp(cmd *cli.Command, extra ...internal.Option) (*internal.App, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if root := cmd.String("root"); root != "" {
		cfg.Repository.Root = root
	}

	opts := append([]internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}, extra...)
	return internal.New(opts...)
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "kbpipe",
		Usage: "Move markdown articles from staging through versioning to a deploy package",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "kbpipe.yaml",
				Value:       "kbpipe.yaml",
				Sources:     cli.EnvVars("KBPIPE_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "root",
				Usage:   "Repository root (overrides repository.root)",
				Sources: cli.EnvVars("KBPIPE_ROOT"),
			},
		},
		Commands: []*cli.Command{
			selectCommand(),
			syncCommand(),
			createVersionCommand(),
			deployCommand(),
			statusCommand(),
			versionsCommand(),
			indexCommand(),
			searchCommand(),
			watchCommand(),
			serveCommand(),
			mcpCommand(),
		},
	}
}

// exitCode maps a command error to the process exit status. Handled
// no-ops and cancellations are reported on stdout.
func exitCode(err error, p *printer) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, apperr.ErrCancelled), errors.Is(err, context.Canceled):
		p.info("cancelled")
		return 0
	case errors.Is(err, apperr.ErrNothingToDo):
		p.info("%s", err.Error())
		return 1
	default:
		slog.Error("application error", slog.String("error", err.Error()))
		return 1
	}
}

func main() {
	err := newApp().Run(context.Background(), os.Args)
	os.Exit(exitCode(err, newPrinter(os.Stdout)))
}
