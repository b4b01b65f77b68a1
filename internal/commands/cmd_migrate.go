package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"studycompanion/server/internal/database"
	"studycompanion/server/internal/logging"
)

type MigrateCmd struct {
	flags *Flags
}

// NewMigrateCmd creates a new migrate command
func NewMigrateCmd(flags *Flags) *MigrateCmd {
	return &MigrateCmd{flags: flags}
}

// Register adds the migrate command to the application
func (cmd *MigrateCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "migrate",
		Usage:       "Apply database migrations",
		UsageText:   "studycompanion migrate",
		Description: "Applies every embedded SQL migration that has not been recorded in schema_migrations.",
		Action:      cmd.run,
	})

	return app
}

func (cmd *MigrateCmd) run(ctx context.Context, c *cli.Command) error {
	logger := logging.Component("migrate")

	pool, err := database.Connect(ctx, cmd.flags.Config.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer pool.Close()

	if err := database.RunMigrations(ctx, pool, logger); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	logger.Info().Msg("migrations applied")
	return nil
}
