package database

import (
	"database/sql"
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type PgAppViewRepository struct {
	conn *sql.DB
}

func NewPgAppViewRepository(dsn string) (*PgAppViewRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PgAppViewRepository{conn: db}, nil
}

func (db *PgAppViewRepository) Ping() error {
	return db.conn.Ping()
}

func (db *PgAppViewRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// MigrateUp applies the embedded schema migrations.
func (db *PgAppViewRepository) MigrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}

	drv, err := postgres.WithInstance(db.conn, &postgres.Config{})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", drv)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}
