package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/udisondev/beastcall/internal/db/migrations"
)

// Goose dialects and their migration directories.
const (
	dialectPostgres = "postgres"
	dialectSQLite   = "sqlite3"
)

var migrationDirs = map[string]string{
	dialectPostgres: "postgres",
	dialectSQLite:   "sqlite",
}

// RunMigrations applies the embedded migrations of dialect to sqlDB.
func RunMigrations(ctx context.Context, sqlDB *sql.DB, dialect string) error {
	dir, ok := migrationDirs[dialect]
	if !ok {
		return fmt.Errorf("no migrations for dialect %q", dialect)
	}

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, sqlDB, dir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}
