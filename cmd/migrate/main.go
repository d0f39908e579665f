package main

import (
	"errors"
	"flag"
	"log"

	"github.com/alphabot-ai/pressbutton/internal/config"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	dir := flag.String("path", "db/migrations", "migrations directory")
	down := flag.Bool("down", false, "roll back every migration instead of applying")
	steps := flag.Int("steps", 0, "apply (or with -down, roll back) only this many migrations")
	flag.Parse()

	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("failed to load .env: %v", err)
	}
	cfg := config.Load()
	if cfg.DB.URL == "" {
		log.Fatal("PRESSBUTTON_DATABASE_URL (or DATABASE_URL) is not set")
	}

	m, err := migrate.New("file://"+*dir, cfg.DB.URL)
	if err != nil {
		log.Fatalf("migration setup failed: %v", err)
	}
	defer m.Close()

	switch {
	case *steps > 0 && *down:
		err = m.Steps(-*steps)
	case *steps > 0:
		err = m.Steps(*steps)
	case *down:
		err = m.Down()
	default:
		err = m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("database migration failed: %v", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		log.Fatalf("read migration version: %v", err)
	}
	log.Printf("database migrations applied (version %d, dirty %t)", version, dirty)
}
