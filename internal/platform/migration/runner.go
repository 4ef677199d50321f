// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package migration provides a thin wrapper around golang-migrate for
// running the profile table migrations.
//
// # Architecture
//
// Migrations are embedded in the binary (package data) so the console can be
// shipped as a single file. A filesystem path may still be supplied to run
// migrations from a checkout during development.
package migration

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	// pgx5 driver registers "pgx5" scheme for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	// file source reads .sql files from disk.
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Source selects where migration files are read from.
type Source struct {
	// Path is a filesystem directory. It takes precedence over Embedded.
	Path string
	// Embedded is a filesystem holding the .sql files at Dir.
	Embedded fs.FS
	Dir      string
}

/*
RunUp applies all pending UP migrations.

Parameters:
  - dsn: A libpq-compatible DSN or postgres:// URL.
  - source: Where the migration files live.
  - logger: Structured logger for migration events.

Returns:
  - error: Initialization, dirty-state or apply failures
*/
func RunUp(dsn string, source Source, logger *slog.Logger) error {
	migrator, err := newMigrator(convertToPgx5DSN(dsn), source)
	if err != nil {
		return fmt.Errorf("migration: failed to initialize: %w", err)
	}
	defer func() {
		sourceError, dbError := migrator.Close()
		if sourceError != nil {
			logger.Error("migration_source_close_failed", slog.Any("error", sourceError))
		}
		if dbError != nil {
			logger.Error("migration_db_close_failed", slog.Any("error", dbError))
		}
	}()

	migrator.Log = &migrateLogger{logger: logger, verbose: logger.Enabled(context.Background(), slog.LevelDebug)}

	currentVersion, isDirty, err := migrator.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("migration: failed to get current version: %w", err)
	}

	if isDirty {
		return fmt.Errorf("migration: database is in a dirty state at version %d (manual intervention required)", currentVersion)
	}

	logger.Info("migration_started", slog.Int("current_version", int(currentVersion)))

	if err := migrator.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("migration_already_up_to_date")
			return nil
		}
		return fmt.Errorf("migration: up failed: %w", err)
	}

	newVersion, _, _ := migrator.Version()
	logger.Info("migration_successful",
		slog.Int("from_version", int(currentVersion)),
		slog.Int("to_version", int(newVersion)),
	)

	return nil
}

// newMigrator opens the configured source against the database.
func newMigrator(databaseURL string, source Source) (*migrate.Migrate, error) {
	if source.Path != "" {
		return migrate.New("file://"+source.Path, databaseURL)
	}

	if source.Embedded == nil {
		return nil, errors.New("migration: no source configured")
	}

	driver, err := iofs.New(source.Embedded, source.Dir)
	if err != nil {
		return nil, err
	}
	return migrate.NewWithSourceInstance("iofs", driver, databaseURL)
}

// convertToPgx5DSN ensures the DSN uses the pgx5:// scheme required by golang-migrate/v4.
func convertToPgx5DSN(dsn string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}

// migrateLogger adapts golang-migrate's logger interface to slog.
type migrateLogger struct {
	logger  *slog.Logger
	verbose bool
}

// Printf implements migrate.Logger.
func (l *migrateLogger) Printf(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Verbose implements migrate.Logger.
func (l *migrateLogger) Verbose() bool {
	return l.verbose
}
