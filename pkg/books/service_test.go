package books

import (
	"context"
	"testing"
	"time"

	"github.com/shishobooks/shelfsync/internal/testgen"
	"github.com/shishobooks/shelfsync/pkg/catalog"
	"github.com/shishobooks/shelfsync/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var lib = models.LibraryKey{ServerUUID: "srv", Name: "Main"}

func setup(t *testing.T) *Service {
	t.Helper()
	db := testgen.DB(t)
	testgen.Library(t, db, lib)
	return NewService(db)
}

func TestUpsertLastModified(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := setup(t)

	t1 := testgen.Epoch.Add(time.Hour)
	inserted, err := svc.UpsertLastModified(ctx, lib, map[int]time.Time{1: t1, 2: t1})
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	candidates, err := svc.UpdateCandidates(ctx, lib)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, candidates, "new ids have never been synced")

	// A removed book that reappears is restored.
	require.NoError(t, svc.MarkRemoved(ctx, lib, []int{2}, testgen.Epoch))
	t2 := t1.Add(time.Hour)
	inserted, err = svc.UpsertLastModified(ctx, lib, map[int]time.Time{2: t2, 3: t2})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)

	book, err := svc.RetrieveBook(ctx, RetrieveBookOptions{Key: &models.BookKey{ServerUUID: "srv", LibraryName: "Main", ID: 2}})
	require.NoError(t, err)
	assert.False(t, book.Removed)
	assert.Nil(t, book.RemovedAt)
	assert.True(t, book.LastModified.Equal(t2))
}

func TestUpsertLastModified_LargeBatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := setup(t)

	entries := map[int]time.Time{}
	for i := 1; i <= 1024; i++ {
		entries[i] = testgen.Epoch
	}
	inserted, err := svc.UpsertLastModified(ctx, lib, entries)
	require.NoError(t, err)
	assert.Equal(t, 1024, inserted)

	local, err := svc.LocalIDs(ctx, lib)
	require.NoError(t, err)
	assert.Len(t, local, 1024)
}

func TestApplyMetadata(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := setup(t)

	modified := testgen.Epoch.Add(5 * time.Hour)
	_, err := svc.UpsertLastModified(ctx, lib, map[int]time.Time{1: modified, 2: modified})
	require.NoError(t, err)

	md := testgen.Metadata(1, func(m *catalog.BookMetadata) {
		m.LastModified = modified
		m.UserMetadata = map[string]catalog.UserValue{"#pages": {Datatype: "int", Value: float64(321)}}
	})
	res, err := svc.ApplyMetadata(ctx, lib, map[int]*catalog.BookMetadata{1: md, 2: nil}, ApplyMetadataOptions{PagesColumn: "#pages"})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, res.Updated)
	assert.Equal(t, []int{2}, res.Deleted)

	book, err := svc.RetrieveBook(ctx, RetrieveBookOptions{Key: &models.BookKey{ServerUUID: "srv", LibraryName: "Main", ID: 1}})
	require.NoError(t, err)
	assert.Equal(t, "Book 0001", book.Title)
	assert.Equal(t, models.StringList{"Author"}, book.Authors)
	require.NotNil(t, book.PageCount)
	assert.Equal(t, 321, *book.PageCount)
	require.Len(t, book.Formats, 1)
	assert.Equal(t, "EPUB", book.Formats[0].Format)
	assert.False(t, book.NeedsUpdate())

	// Null from the server suppresses further attempts without removing.
	candidates, err := svc.UpdateCandidates(ctx, lib)
	require.NoError(t, err)
	assert.Empty(t, candidates)
	gone, err := svc.RetrieveBook(ctx, RetrieveBookOptions{Key: &models.BookKey{ServerUUID: "srv", LibraryName: "Main", ID: 2}})
	require.NoError(t, err)
	assert.False(t, gone.Removed)
}

func TestApplyMetadata_DerivesMissingSortKeys(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := setup(t)

	md := testgen.Metadata(1, func(m *catalog.BookMetadata) {
		m.Title = "The Colour of Magic"
		m.TitleSort = ""
		m.Authors = []string{"Terry Pratchett"}
		m.AuthorSort = ""
	})
	_, err := svc.ApplyMetadata(ctx, lib, map[int]*catalog.BookMetadata{1: md}, ApplyMetadataOptions{})
	require.NoError(t, err)

	book, err := svc.RetrieveBook(ctx, RetrieveBookOptions{Key: &models.BookKey{ServerUUID: "srv", LibraryName: "Main", ID: 1}})
	require.NoError(t, err)
	assert.Equal(t, "Colour of Magic, The", book.TitleSort)
	assert.Equal(t, "Pratchett, Terry", book.AuthorSort)
}

func TestApplyMetadata_KeepsCacheState(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := setup(t)

	_, err := svc.ApplyMetadata(ctx, lib, map[int]*catalog.BookMetadata{7: testgen.Metadata(7)}, ApplyMetadataOptions{})
	require.NoError(t, err)

	size := int64(99)
	_, err = svc.db.NewUpdate().
		Model((*models.BookFormat)(nil)).
		Set("cached = ?", true).
		Set("cache_size = ?", size).
		Where("book_id = ?", 7).
		Exec(ctx)
	require.NoError(t, err)

	md := testgen.Metadata(7, func(m *catalog.BookMetadata) {
		m.Title = "Renamed"
		m.FormatMetadata["PDF"] = catalog.FormatMetadata{Size: 5}
	})
	_, err = svc.ApplyMetadata(ctx, lib, map[int]*catalog.BookMetadata{7: md}, ApplyMetadataOptions{})
	require.NoError(t, err)

	book, err := svc.RetrieveBook(ctx, RetrieveBookOptions{Key: &models.BookKey{ServerUUID: "srv", LibraryName: "Main", ID: 7}})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", book.Title)
	require.Len(t, book.Formats, 2)
	assert.Equal(t, "EPUB", book.Formats[0].Format)
	assert.True(t, book.Formats[0].Cached)
	require.NotNil(t, book.Formats[0].CacheSize)
	assert.Equal(t, size, *book.Formats[0].CacheSize)
	assert.False(t, book.Formats[1].Cached)
}

func TestUpdateCandidates_SkipsFetchErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := setup(t)

	_, err := svc.UpsertLastModified(ctx, lib, map[int]time.Time{1: testgen.Epoch, 2: testgen.Epoch, 3: testgen.Epoch})
	require.NoError(t, err)
	require.NoError(t, svc.RecordFetchErrors(ctx, lib, []int{2}, "boom"))
	require.NoError(t, svc.RecordFetchErrors(ctx, lib, []int{2}, "boom again"))

	candidates, err := svc.UpdateCandidates(ctx, lib)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, candidates)

	rows, err := svc.ListFetchErrors(ctx, lib)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].Attempts)
	assert.Equal(t, "boom again", rows[0].Message)

	require.NoError(t, svc.ClearFetchErrors(ctx, lib))
	candidates, err = svc.UpdateCandidates(ctx, lib)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, candidates)
}

func TestPurgeRemoved(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := setup(t)

	testgen.Book(t, svc.db, lib, 1)
	testgen.Book(t, svc.db, lib, 2)
	testgen.Book(t, svc.db, lib, 3, func(b *models.Book) {
		b.LastSynced = time.Time{}
	})
	_, err := svc.db.NewInsert().Model(&models.Highlight{
		ServerUUID: "srv", LibraryName: "Main", BookID: 2, Format: "EPUB", UUID: "h1",
		Date: testgen.Epoch, Dirty: true,
	}).Exec(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.MarkRemoved(ctx, lib, []int{1, 2, 3}, testgen.Epoch))

	// Nothing goes until a sync has finished after the removal.
	purged, err := svc.PurgeRemoved(ctx, lib, nil)
	require.NoError(t, err)
	assert.Zero(t, purged)
	before := testgen.Epoch.Add(-time.Second)
	purged, err = svc.PurgeRemoved(ctx, lib, &before)
	require.NoError(t, err)
	assert.Zero(t, purged)

	after := testgen.Epoch.Add(time.Second)
	purged, err = svc.PurgeRemoved(ctx, lib, &after)
	require.NoError(t, err)
	assert.Equal(t, 1, purged, "only the synced book without dirty annotations goes")

	local, err := svc.LocalIDs(ctx, lib)
	require.NoError(t, err)
	assert.NotContains(t, local, 1)
	assert.True(t, local[2].Removed)
	assert.True(t, local[3].Removed)
}

func TestLoadBooks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := setup(t)
	testgen.Book(t, svc.db, lib, 1)
	testgen.Book(t, svc.db, lib, 2, func(b *models.Book) { b.Removed = true })

	books, err := svc.LoadBooks(ctx, lib, []int{1, 2, 3})
	require.NoError(t, err)
	assert.Len(t, books, 1)
	assert.Contains(t, books, 1)
}
