package sqlstore

import (
	"context"
	"embed"
	"sync"

	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	"gorm.io/gorm"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// goose keeps its dialect and base FS in package state.
var migrateMu sync.Mutex

// RunMigrations applies the embedded migrations for dialect.
func RunMigrations(ctx context.Context, db *gorm.DB, dialect Dialect) error {
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(err, "sqlstore: underlying connection")
	}

	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(dialect.gooseDialect()); err != nil {
		return errors.Wrap(err, "sqlstore: migration dialect")
	}
	if err := goose.UpContext(ctx, sqlDB, dialect.migrationsDir()); err != nil {
		return errors.Wrap(err, "sqlstore: run migrations")
	}
	return nil
}
