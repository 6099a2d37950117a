package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	migrate "github.com/golang-migrate/migrate/v4"

	"github.com/noah-isme/toko-fulfillment/internal/config"
	"github.com/noah-isme/toko-fulfillment/internal/obs"
	"github.com/noah-isme/toko-fulfillment/migrations"
)

func main() {
	steps := flag.Int("steps", 0, "apply N migrations (negative rolls back); 0 means all pending")
	down := flag.Bool("down", false, "roll back every migration")
	flag.Parse()

	cfg := config.MustLoad()
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "migrate").Logger()

	m, err := migrations.New(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("open migrations")
	}
	defer func() { _, _ = m.Close() }()

	switch {
	case *down:
		err = m.Down()
	case *steps != 0:
		err = m.Steps(*steps)
	default:
		err = migrations.Up(m)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Error().Err(err).Msg("migrate")
		os.Exit(1)
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		logger.Info().Msg("schema empty")
	case err != nil:
		logger.Fatal().Err(err).Msg("read schema version")
	default:
		logger.Info().Str("version", fmt.Sprint(version)).Bool("dirty", dirty).Msg("schema current")
	}
}
