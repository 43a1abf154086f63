package profile

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies every pending schema migration. databaseURL must be a
// postgres:// URL; the migrator opens and closes its own connection.
func Migrate(databaseURL string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("profile: migrations source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("profile: migrate init: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("profile: migrate up: %w", err)
	}

	version, _, _ := m.Version()
	log.Printf("[profile] schema migrated to version %d", version)
	return nil
}

// Open connects to PostgreSQL, pings, runs migrations and returns a Store.
func Open(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("profile: open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := pingWithTimeout(db, 5*time.Second); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("profile: ping: %w", err)
	}

	if err := Migrate(databaseURL); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewStore(db), nil
}
