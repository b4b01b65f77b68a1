package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Connect creates a pgx pool for databaseURL and waits for the server to answer.
func Connect(ctx context.Context, databaseURL string, logger zerolog.Logger) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	config.MaxConns = 20
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	// Postgres may still be starting when the server boots
	var pool *pgxpool.Pool
	for attempt := 1; attempt <= 10; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, config)
		if err != nil {
			logger.Warn().Err(err).Int("attempt", attempt).Msg("database connect failed")
			time.Sleep(2 * time.Second)
			continue
		}
		if pingErr := pool.Ping(ctx); pingErr != nil {
			pool.Close()
			err = pingErr
			logger.Warn().Err(pingErr).Int("attempt", attempt).Msg("database ping failed")
			time.Sleep(2 * time.Second)
			continue
		}

		logger.Info().Int("attempt", attempt).Msg("database connected")
		return pool, nil
	}

	return nil, fmt.Errorf("failed to connect after 10 attempts: %w", err)
}
