// cmd/tools/dbmigrate/main.go
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	kingpin "gopkg.in/alecthomas/kingpin.v2"

	"github.com/codr1/Stitchcraft/internal/db"
)

var (
	app = kingpin.New("dbmigrate", "Manage the pattern store schema.")

	dbPath         = app.Flag("db", "Path to SQLite database.").Required().String()
	migrationsPath = app.Flag("migrations", "Read migrations from this directory instead of the ones built into the binary.").ExistingDir()

	upCmd     = app.Command("up", "Apply all pending migrations.")
	downCmd   = app.Command("down", "Roll back migrations.")
	downSteps = downCmd.Flag("steps", "Number of migrations to roll back (0 = all).").Default("1").Int()

	versionCmd = app.Command("version", "Print the current schema version.")

	forceCmd     = app.Command("force", "Set the schema version without running migrations, clearing the dirty flag.")
	forceVersion = forceCmd.Arg("version", "Version to record.").Required().Int()
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	m, err := newMigrator()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create migrate instance")
	}
	defer m.Close()

	switch command {
	case upCmd.FullCommand():
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatal().Err(err).Msg("Failed to run migrations")
		}
		log.Info().Msg("Successfully ran migrations up")

	case downCmd.FullCommand():
		if *downSteps == 0 {
			err = m.Down()
		} else {
			err = m.Steps(-*downSteps)
		}
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatal().Err(err).Msg("Failed to roll back migrations")
		}
		log.Info().Int("steps", *downSteps).Msg("Successfully ran migrations down")

	case versionCmd.FullCommand():
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Println("no migrations applied")
			return
		}
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to get version")
		}
		fmt.Printf("version %d (dirty: %t)\n", version, dirty)

	case forceCmd.FullCommand():
		if err := m.Force(*forceVersion); err != nil {
			log.Fatal().Err(err).Int("version", *forceVersion).Msg("Failed to force version")
		}
		log.Info().Int("version", *forceVersion).Msg("Forced schema version")
	}
}

func newMigrator() (*migrate.Migrate, error) {
	absDB, err := filepath.Abs(*dbPath)
	if err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absDB), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	if *migrationsPath != "" {
		absMigrations, err := filepath.Abs(*migrationsPath)
		if err != nil {
			return nil, fmt.Errorf("invalid migrations path: %w", err)
		}
		return migrate.New("file://"+absMigrations, "sqlite3://"+absDB)
	}

	sqlDB, err := db.Open(absDB)
	if err != nil {
		return nil, err
	}
	m, err := db.NewMigrator(sqlDB)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	return m, nil
}
