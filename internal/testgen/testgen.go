// Package testgen builds databases and fixture records for tests.
package testgen

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/shishobooks/shelfsync/pkg/catalog"
	"github.com/shishobooks/shelfsync/pkg/migrations"
	"github.com/shishobooks/shelfsync/pkg/models"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// Epoch is the reference time fixtures are built around.
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// DB returns a migrated in-memory database. A single connection is used so
// every goroutine sees the same in-memory schema.
func DB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// Library inserts a server (if needed) and a library.
func Library(t *testing.T, db *bun.DB, key models.LibraryKey) *models.Library {
	t.Helper()
	ctx := context.Background()

	server := &models.Server{
		UUID:      key.ServerUUID,
		CreatedAt: Epoch,
		UpdatedAt: Epoch,
		Name:      key.ServerUUID,
		BaseURL:   "http://" + key.ServerUUID + ".invalid",
	}
	_, err := db.NewInsert().Model(server).On("CONFLICT (uuid) DO NOTHING").Exec(ctx)
	require.NoError(t, err)

	lib := &models.Library{
		ServerUUID: key.ServerUUID,
		Name:       key.Name,
		CreatedAt:  Epoch,
		UpdatedAt:  Epoch,
		AutoUpdate: true,
	}
	_, err = db.NewInsert().Model(lib).Exec(ctx)
	require.NoError(t, err)
	return lib
}

// Book inserts a synced book. Title and timestamps derive from id so that
// sort orders are predictable.
func Book(t *testing.T, db *bun.DB, key models.LibraryKey, id int, mutate ...func(*models.Book)) *models.Book {
	t.Helper()
	modified := Epoch.Add(time.Duration(id) * time.Minute)
	book := &models.Book{
		ServerUUID:   key.ServerUUID,
		LibraryName:  key.Name,
		ID:           id,
		CreatedAt:    Epoch,
		UpdatedAt:    Epoch,
		Title:        fmt.Sprintf("Book %04d", id),
		TitleSort:    fmt.Sprintf("Book %04d", id),
		Authors:      models.StringList{"Author"},
		LastModified: modified,
		LastSynced:   modified,
	}
	for _, m := range mutate {
		m(book)
	}
	_, err := db.NewInsert().Model(book).Exec(context.Background())
	require.NoError(t, err)
	return book
}

// Metadata is the catalog-side twin of Book.
func Metadata(id int, mutate ...func(*catalog.BookMetadata)) *catalog.BookMetadata {
	added := Epoch.Add(time.Duration(id) * time.Hour)
	md := &catalog.BookMetadata{
		Title:        fmt.Sprintf("Book %04d", id),
		TitleSort:    fmt.Sprintf("Book %04d", id),
		Authors:      []string{"Author"},
		AuthorSort:   "Author",
		Timestamp:    &added,
		LastModified: Epoch.Add(time.Duration(id) * time.Minute),
		FormatMetadata: map[string]catalog.FormatMetadata{
			"EPUB": {Size: int64(1000 + id)},
		},
	}
	for _, m := range mutate {
		m(md)
	}
	return md
}
