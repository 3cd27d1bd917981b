package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrations embed.FS

// Migrate applies every pending up-migration for the driver on a dedicated
// connection, which is closed before returning.
func Migrate(driver, dsn string) error {
	m, err := newMigrate(driver, dsn)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// SchemaVersion reports the applied migration version.
func SchemaVersion(driver, dsn string) (uint, bool, error) {
	m, err := newMigrate(driver, dsn)
	if err != nil {
		return 0, false, err
	}
	defer m.Close()
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func newMigrate(driver, dsn string) (*migrate.Migrate, error) {
	src, err := iofs.New(migrations, "migrations/"+driver)
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}

	var instance database.Driver
	switch driver {
	case DriverSQLite:
		instance, err = sqlite3.WithInstance(db, &sqlite3.Config{})
	case DriverPostgres:
		instance, err = postgres.WithInstance(db, &postgres.Config{})
	default:
		err = fmt.Errorf("unsupported driver %q", driver)
	}
	if err != nil {
		src.Close()
		db.Close()
		return nil, fmt.Errorf("migration driver: %w", err)
	}

	// Closing the Migrate closes the source, the driver and db.
	m, err := migrate.NewWithInstance("iofs", src, driver, instance)
	if err != nil {
		src.Close()
		instance.Close()
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	return m, nil
}
