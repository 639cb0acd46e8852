package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/jmoiron/sqlx"

	"github.com/hushline/hushline/internal/config"
	"github.com/hushline/hushline/internal/store"
)

const usage = "usage: migrate [up | down [steps] | version]"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	db, err := sqlx.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := run(db, cfg.DatabaseDriver, os.Args[1:]); err != nil {
		slog.Error("migration failed", "err", err)
		os.Exit(1)
	}
}

func run(db *sqlx.DB, driver string, args []string) error {
	cmd := "up"
	if len(args) > 0 {
		cmd = args[0]
	}

	switch cmd {
	case "up":
		if err := store.MigrateUp(db.DB, driver); err != nil {
			return err
		}
	case "down":
		steps := 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 1 {
				return fmt.Errorf("steps must be a positive integer, got %q", args[1])
			}
			steps = n
		}
		if err := store.MigrateDown(db.DB, driver, steps); err != nil {
			return err
		}
	case "version":
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}

	version, dirty, err := store.Version(db.DB, driver)
	if err != nil {
		return err
	}
	fmt.Printf("schema version %d (dirty: %t)\n", version, dirty)
	return nil
}
