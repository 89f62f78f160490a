// Package db wraps Postgres connectivity: a gorm handle for queries and a
// golang-migrate runner for schema setup, sharing one DSN.
package db

import (
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Postgres wraps the connection pool every adapter in this repository
// queries through.
type Postgres struct {
	DB *gorm.DB
}

// Connect opens a gorm connection pool against dsn.
func Connect(dsn string) (*Postgres, error) {
	gdb, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("db: connect: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("db: unwrap sql.DB: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("db: ping: %w", err)
	}
	return &Postgres{DB: gdb}, nil
}

// Migrate applies every embedded migration in order. It is safe to call on
// every process start; golang-migrate no-ops once the schema is current.
func Migrate(dsn string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("db: open migrations source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("db: build migrator: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("db: migrate up: %w", err)
	}
	return nil
}

// ensure the postgres driver package is linked for its side-effect
// registration even though callers only reference it via DSN scheme.
var _ = postgres.Config{}
