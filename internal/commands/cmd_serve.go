package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"studycompanion/server/internal/chat"
	"studycompanion/server/internal/config"
	"studycompanion/server/internal/database"
	"studycompanion/server/internal/handlers"
	"studycompanion/server/internal/identity"
	"studycompanion/server/internal/logging"
	"studycompanion/server/internal/repository"
	"studycompanion/server/internal/routes"
	"studycompanion/server/internal/store"
	"studycompanion/server/internal/store/disk"
	"studycompanion/server/internal/store/embedded"
	"studycompanion/server/internal/store/memory"
	"studycompanion/server/internal/store/postgres"
	ws "studycompanion/server/internal/websocket"
)

const shutdownTimeout = 10 * time.Second

type ServeCmd struct {
	flags *Flags
}

// NewServeCmd creates a new serve command
func NewServeCmd(flags *Flags) *ServeCmd {
	return &ServeCmd{flags: flags}
}

// Register adds the serve command to the application
func (cmd *ServeCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "serve",
		Usage:       "Run the HTTP and websocket API",
		UsageText:   "studycompanion serve",
		Description: "Connects to postgres, applies migrations and serves the chat API until interrupted.",
		Action:      cmd.Run,
	})

	return app
}

// Run starts the server and blocks until ctx is cancelled
func (cmd *ServeCmd) Run(ctx context.Context, c *cli.Command) error {
	cfg := cmd.flags.Config
	logger := logging.Component("server")

	pool, err := database.Connect(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer pool.Close()

	if err := database.RunMigrations(ctx, pool, logger); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	messages, closeStore, err := openMessageStore(cfg, pool, logger)
	if err != nil {
		return err
	}
	defer closeStore.Close() //nolint:errcheck

	var (
		blobs     = disk.New(cfg.UploadDir, cfg.UploadBaseURL)
		uploader  = chat.NewUploader(blobs, cfg.UploadConcurrency, logger)
		issuer    = identity.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
		responder = chat.CannedResponder{}
		hub       = ws.NewHub()
	)

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	app := fiber.New(fiber.Config{
		AppName:   "Study Companion API v1.0",
		BodyLimit: cfg.MaxUploadBytes * 8,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowCredentials: true,
	}))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	routes.SetupRoutes(app, routes.Handlers{
		Auth:      handlers.NewAuthHandler(repository.NewUserRepository(pool), issuer, cfg.TokenTTL, cfg.IsProduction()),
		Groups:    handlers.NewGroupHandler(repository.NewGroupRepository(pool)),
		Messages:  handlers.NewMessageHandler(messages, uploader, responder, cfg.AppendTimeout, cfg.MaxUploadBytes),
		Uploads:   handlers.NewUploadHandler(uploader, blobs, cfg.MaxUploadBytes),
		WebSocket: handlers.NewWebSocketHandler(hub, messages, uploader, responder, cfg.AppendTimeout, cfg.MaxUploadBytes),
		Health:    handlers.NewHealthHandler(pool, cfg.MessageStore),
	}, issuer)

	go func() {
		<-ctx.Done()
		logger.Info().Msg("shutting down")
		stopHub()
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.Error().Err(err).Msg("shutdown")
		}
	}()

	logger.Info().Str("port", cfg.Port).Str("message_store", cfg.MessageStore).Msg("server starting")
	if err := app.Listen(":" + cfg.Port); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func openMessageStore(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (store.MessageStore, io.Closer, error) {
	switch cfg.MessageStore {
	case config.StorePebble:
		s, err := embedded.Open(cfg.PebblePath, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open pebble store: %w", err)
		}
		return s, s, nil
	case config.StoreMemory:
		return memory.New(), nopCloser{}, nil
	default:
		s := postgres.New(pool, logger)
		return s, s, nil
	}
}
