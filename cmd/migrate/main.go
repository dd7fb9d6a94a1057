// migrate applies database schema migrations.
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/timberdayz/datahub/internal/infrastructure/config"
	"github.com/timberdayz/datahub/internal/infrastructure/logger"
	"github.com/timberdayz/datahub/internal/infrastructure/migration"
)

func main() {
	var (
		direction = flag.String("direction", "up", "migration direction: up, down, or version")
		path      = flag.String("path", "migrations", "path to migration files")
	)
	flag.Parse()

	if err := run(*direction, *path); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
}

func run(direction, path string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.NewForEnvironment(cfg.App.Env)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	m, err := migration.NewFromURL(cfg.Database.URL(), path, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Warn("failed to close migrator", zap.Error(err))
		}
	}()

	switch direction {
	case "up":
		return m.Up()
	case "down":
		return m.Down()
	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			return err
		}
		log.Info("current schema version",
			zap.Uint("version", version),
			zap.Bool("dirty", dirty))
		return nil
	default:
		return fmt.Errorf("unknown direction %q (use up, down, or version)", direction)
	}
}
