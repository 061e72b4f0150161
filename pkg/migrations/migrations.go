package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

var Migrations = migrate.NewMigrations()

// NewMigrator returns a migrator over the catalog cache schema. A migration
// is only marked applied once its up func succeeded.
func NewMigrator(db *bun.DB) *migrate.Migrator {
	return migrate.NewMigrator(db, Migrations, migrate.WithMarkAppliedOnSuccess(true))
}

// BringUpToDate applies every pending migration while holding the migration
// lock, so the API and the migrations CLI cannot migrate at the same time.
func BringUpToDate(ctx context.Context, db *bun.DB) (*migrate.MigrationGroup, error) {
	migrator := NewMigrator(db)
	if err := migrator.Init(ctx); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := migrator.Lock(ctx); err != nil {
		return nil, errors.Wrap(err, "migrations are locked")
	}
	defer func() {
		if err := migrator.Unlock(ctx); err != nil {
			logger.FromContext(ctx).Err(err).Warn("failed to release migration lock")
		}
	}()

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return group, nil
}

// Pending lists the migrations that have not been applied yet.
func Pending(ctx context.Context, db *bun.DB) (migrate.MigrationSlice, error) {
	migrator := NewMigrator(db)
	if err := migrator.Init(ctx); err != nil {
		return nil, errors.WithStack(err)
	}
	ms, err := migrator.MigrationsWithStatus(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return ms.Unapplied(), nil
}
