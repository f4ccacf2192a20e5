package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/af-corp/llmcache/internal/config"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up or down")
	steps := flag.Int("steps", 0, "number of steps (0 = all)")
	dbURL := flag.String("db-url", "", "database URL (overrides env and config)")
	configDir := flag.String("config", "", "read the database section of llmcache.yaml from this directory")
	migrationsPath := flag.String("path", "migrations", "path to migrations directory")
	flag.Parse()

	dsn, err := resolveDSN(*dbURL, *configDir)
	if err != nil {
		log.Fatalf("resolve database URL: %v", err)
	}

	m, err := migrate.New("file://"+*migrationsPath, dsn)
	if err != nil {
		log.Fatalf("failed to create migrator: %v", err)
	}
	defer m.Close()

	switch *direction {
	case "up":
		if *steps > 0 {
			err = m.Steps(*steps)
		} else {
			err = m.Up()
		}
	case "down":
		if *steps > 0 {
			err = m.Steps(-*steps)
		} else {
			err = m.Down()
		}
	default:
		log.Fatalf("invalid direction: %s (use 'up' or 'down')", *direction)
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("migration failed: %v", err)
	}

	v, dirty, _ := m.Version()
	fmt.Printf("migration %s complete (version: %d, dirty: %v)\n", *direction, v, dirty)
}

// resolveDSN picks the database URL: flag, then DATABASE_URL, then the config
// file, then DB_* variables.
func resolveDSN(flagURL, configDir string) (string, error) {
	if flagURL != "" {
		return flagURL, nil
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		return v, nil
	}
	if configDir != "" {
		cfg := config.DefaultConfig()
		if err := config.LoadFile(filepath.Join(configDir, config.ServiceFile), cfg); err != nil {
			return "", err
		}
		return cfg.Database.DSN(), nil
	}
	db := config.DatabaseConfig{
		Host:     envOrDefault("DB_HOST", "localhost"),
		Port:     5432,
		User:     envOrDefault("DB_USER", "llmcache"),
		Password: envOrDefault("DB_PASSWORD", "llmcache-dev"),
		Name:     envOrDefault("DB_NAME", "llmcache"),
	}
	if p := os.Getenv("DB_PORT"); p != "" {
		if _, err := fmt.Sscanf(p, "%d", &db.Port); err != nil {
			return "", fmt.Errorf("DB_PORT: %w", err)
		}
	}
	return db.DSN(), nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
