// Package main provides the trellis command: the workflow automation server
// and its maintenance commands.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	cli "github.com/urfave/cli/v3"
)

const (
	defaultPort          = 9091
	defaultDatabaseURL   = "file://./data"
	defaultEventBus      = "gochannel"
	defaultLogLevel      = "info"
	defaultHistoryLength = 100
)

func main() {
	cmd := &cli.Command{
		Name:                  "trellis",
		Usage:                 "Run workflow automations triggered by application events",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env-file",
				Usage:   "Optional .env file loaded before reading the environment",
				Value:   ".env",
				Sources: cli.EnvVars("ENV_FILE"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   defaultLogLevel,
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Before: loadEnvFile,
		Commands: []*cli.Command{
			NewServeCommand(),
			NewValidateCommand(),
			NewDispatchCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadEnvFile loads the .env file when present. Variables already set in the
// environment win.
func loadEnvFile(ctx context.Context, command *cli.Command) (context.Context, error) {
	path := command.String("env-file")
	if path == "" {
		return ctx, nil
	}

	if _, err := os.Stat(path); err != nil {
		return ctx, nil
	}

	if err := godotenv.Load(path); err != nil {
		return ctx, fmt.Errorf("failed to load %s: %w", path, err)
	}

	return ctx, nil
}
