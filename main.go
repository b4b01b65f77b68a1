package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"studycompanion/server/internal/commands"
	"studycompanion/server/internal/config"
	"studycompanion/server/internal/logging"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	version = "dev"
	commit  = "HEAD"
	date    = "now"
)

func build() string {
	short := commit
	if len(commit) > 7 {
		short = commit[:7]
	}

	return fmt.Sprintf("%s (%s) %s", version, short, date)
}

func main() {
	if err := logging.Setup("info", "pretty"); err != nil {
		panic(err)
	}

	// Env sources on flags are read during parsing, so .env must load first
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	flags := &commands.Flags{}
	serveCmd := commands.NewServeCmd(flags)

	app := &cli.Command{
		Name:      "studycompanion",
		Usage:     "Study companion chat API",
		UsageText: "studycompanion [global options] command [command options]",
		Description: `Serves group study rooms and the document tutor over HTTP and websockets.

Run 'studycompanion' with no arguments to start the server.
Run 'studycompanion migrate' to apply database migrations only.`,
		Version: build(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error, fatal, panic)",
				Sources:     cli.EnvVars("LOG_LEVEL"),
				Value:       "info",
				Destination: &flags.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-format",
				Usage:       "log output format (pretty, json)",
				Sources:     cli.EnvVars("LOG_FORMAT"),
				Value:       "pretty",
				Destination: &flags.LogFormat,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			if err := logging.Setup(flags.LogLevel, flags.LogFormat); err != nil {
				return ctx, err
			}

			cfg := config.Load()
			cfg.LogLevel = flags.LogLevel
			cfg.LogFormat = flags.LogFormat
			if err := cfg.Validate(); err != nil {
				return ctx, fmt.Errorf("invalid config: %w", err)
			}
			flags.Config = cfg

			return ctx, nil
		},
	}

	app = serveCmd.Register(app)
	app = commands.NewMigrateCmd(flags).Register(app)

	app.Action = func(ctx context.Context, c *cli.Command) error {
		if c.Args().Len() > 0 {
			return fmt.Errorf("unknown command %q. Run 'studycompanion --help' for usage", c.Args().First())
		}
		return serveCmd.Run(ctx, c)
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Error().Err(err).Msg("exiting")
		stop()
		os.Exit(1)
	}
}
