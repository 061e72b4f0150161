package migrations_test

import (
	"context"
	"testing"

	"github.com/shishobooks/shelfsync/internal/testgen"
	"github.com/shishobooks/shelfsync/pkg/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBringUpToDate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := testgen.DB(t)

	pending, err := migrations.Pending(ctx, db)
	require.NoError(t, err)
	assert.Empty(t, pending)

	group, err := migrations.BringUpToDate(ctx, db)
	require.NoError(t, err)
	assert.Zero(t, group.ID)

	for _, table := range []string{"servers", "libraries", "books", "book_formats", "fetch_errors", "jobs", "reading_positions", "bookmarks", "highlights", "reading_sessions"} {
		var n int
		err := db.NewSelect().TableExpr("sqlite_master").ColumnExpr("COUNT(*)").Where("type = 'table' AND name = ?", table).Scan(ctx, &n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, table)
	}
}

func TestBringUpToDate_Locked(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := testgen.DB(t)

	migrator := migrations.NewMigrator(db)
	require.NoError(t, migrator.Lock(ctx))

	_, err := migrations.BringUpToDate(ctx, db)
	require.Error(t, err)

	require.NoError(t, migrator.Unlock(ctx))
	_, err = migrations.BringUpToDate(ctx, db)
	require.NoError(t, err)
}
