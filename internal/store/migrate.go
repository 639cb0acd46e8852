package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/hushline/hushline/internal/store/migrations"
)

func newMigrator(db *sql.DB, driver string) (*migrate.Migrate, error) {
	sourceDriver, err := iofs.New(migrations.FS, migrations.Dir(driver))
	if err != nil {
		return nil, err
	}

	var dbDriver database.Driver
	switch driver {
	case "sqlite":
		dbDriver, err = sqlite.WithInstance(db, &sqlite.Config{})
	case "pgx":
		dbDriver, err = migratepgx.WithInstance(db, &migratepgx.Config{})
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, err
	}

	return migrate.NewWithInstance("iofs", sourceDriver, driver, dbDriver)
}

// MigrateUp applies every pending migration.
func MigrateUp(db *sql.DB, driver string) error {
	m, err := newMigrator(db, driver)
	if err != nil {
		return err
	}
	return ignoreNoChange(m.Up())
}

// MigrateDown rolls back the given number of migrations.
func MigrateDown(db *sql.DB, driver string, steps int) error {
	m, err := newMigrator(db, driver)
	if err != nil {
		return err
	}
	return ignoreNoChange(m.Steps(-steps))
}

// Version reports the current schema version. An empty schema is version 0.
func Version(db *sql.DB, driver string) (uint, bool, error) {
	m, err := newMigrator(db, driver)
	if err != nil {
		return 0, false, err
	}
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}
