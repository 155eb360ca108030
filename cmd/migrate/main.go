package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/gofiber/fiber/v2/log"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/ManuelReschke/ReelPass/internal/pkg/config"
	"github.com/ManuelReschke/ReelPass/internal/pkg/database"
	"github.com/ManuelReschke/ReelPass/internal/pkg/env"
)

type command struct {
	usage string
	args  int
	run   func(m *migrate.Migrate, args []string) error
}

var commands = map[string]command{
	"up": {usage: "apply all pending migrations", run: func(m *migrate.Migrate, _ []string) error {
		return noChangeOK(m.Up())
	}},
	"down": {usage: "roll back the latest migration", run: func(m *migrate.Migrate, _ []string) error {
		return m.Steps(-1)
	}},
	"goto": {usage: "migrate up or down to version N", args: 1, run: func(m *migrate.Migrate, args []string) error {
		v, err := version(args[0])
		if err != nil {
			return err
		}
		return noChangeOK(m.Migrate(v))
	}},
	"force": {usage: "set version N and clear the dirty flag after a failed run", args: 1, run: func(m *migrate.Migrate, args []string) error {
		v, err := version(args[0])
		if err != nil {
			return err
		}
		return m.Force(int(v))
	}},
	"status": {usage: "print the current version", run: func(m *migrate.Migrate, _ []string) error {
		v, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			log.Info("[Migrate] no migration applied yet")
			return nil
		}
		if err != nil {
			return err
		}
		log.Infow("[Migrate] current version", "version", v, "dirty", dirty)
		return nil
	}},
}

func main() {
	env.SetupEnvFile()

	if len(os.Args) < 2 {
		usage()
	}
	name := os.Args[1]
	cmd, ok := commands[name]
	if !ok || len(os.Args)-2 < cmd.args {
		usage()
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Migrate] invalid configuration: %v", err)
	}
	params := database.ParamsFromEnv(cfg.DatabaseDriver)
	dbURL, err := params.MigrationURL(cfg.DatabaseDriver)
	if err != nil {
		log.Fatalf("[Migrate] %v", err)
	}

	log.Infow("[Migrate] connecting", "target", params.Redacted(), "source", cfg.MigrationsSource)
	m, err := migrate.New(cfg.MigrationsSource, dbURL)
	if err != nil {
		log.Fatalf("[Migrate] init failed: %v", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			log.Warnw("[Migrate] close failed", "source_error", srcErr, "db_error", dbErr)
		}
	}()

	if err := cmd.run(m, os.Args[2:]); err != nil {
		log.Errorw("[Migrate] command failed", "command", name, "error", err)
		os.Exit(1)
	}
	log.Infow("[Migrate] done", "command", name)
}

func noChangeOK(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		log.Info("[Migrate] no change, database is up to date")
		return nil
	}
	return err
}

func version(raw string) (uint, error) {
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q: %w", raw, err)
	}
	return uint(v), nil
}

func usage() {
	fmt.Println("usage: migrate <command> [N]")
	for _, name := range []string{"up", "down", "goto", "force", "status"} {
		fmt.Printf("  %-7s %s\n", name, commands[name].usage)
	}
	os.Exit(2)
}
