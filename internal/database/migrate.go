package database

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/HammerMeetNail/petpals/internal/logging"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

type Migrator struct {
	m *migrate.Migrate
}

var newMigrate = func(src source.Driver, dsn string) (*migrate.Migrate, error) {
	return migrate.NewWithSourceInstance("iofs", src, dsn)
}

func migrationSource() (source.Driver, error) {
	return iofs.New(migrationFiles, "migrations")
}

// NewMigrator prepares the embedded schema migrations against dsn.
func NewMigrator(dsn string, logger *logging.Logger) (*Migrator, error) {
	src, err := migrationSource()
	if err != nil {
		return nil, fmt.Errorf("opening embedded migrations: %w", err)
	}
	m, err := newMigrate(src, dsn)
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("creating migrate instance: %w", err)
	}
	if logger != nil {
		m.Log = migrationLogger{logger: logger}
	}
	return &Migrator{m: m}, nil
}

// Up applies all pending migrations. Having nothing to apply is not an error.
func (mg *Migrator) Up() error {
	if err := mg.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func (mg *Migrator) Version() (uint, bool, error) {
	version, dirty, err := mg.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (mg *Migrator) Close() error {
	srcErr, dbErr := mg.m.Close()
	return errors.Join(srcErr, dbErr)
}

type migrationLogger struct {
	logger *logging.Logger
}

func (l migrationLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l migrationLogger) Verbose() bool {
	return false
}
