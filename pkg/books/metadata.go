package books

import (
	"context"
	"database/sql"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/shelfsync/pkg/catalog"
	"github.com/shishobooks/shelfsync/pkg/models"
	"github.com/shishobooks/shelfsync/pkg/sortname"
	"github.com/uptrace/bun"
)

type ApplyMetadataOptions struct {
	// PagesColumn is the custom column holding a page count, if the library
	// has the count-pages capability.
	PagesColumn string
}

type ApplyResult struct {
	Updated []int
	// Deleted ids came back null from the server. They are marked synced so
	// they stop being update candidates; the next full sync removes them.
	Deleted []int
}

var bookColumns = []string{
	"title", "title_sort", "authors", "author_sort", "series", "series_index",
	"tags", "identifiers", "publisher", "rating", "page_count", "comments",
	"timestamp", "pub_date", "last_modified", "last_synced", "updated_at",
}

// ApplyMetadata persists one metadata batch. records must contain an entry
// for every id the caller asked the server about.
func (svc *Service) ApplyMetadata(ctx context.Context, key models.LibraryKey, records map[int]*catalog.BookMetadata, opts ApplyMetadataOptions) (*ApplyResult, error) {
	ids := make([]int, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	result := &ApplyResult{}
	now := time.Now()

	err := svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		existing := []*models.Book{}
		err := tx.NewSelect().
			Model(&existing).
			Relation("Formats").
			Where("b.server_uuid = ?", key.ServerUUID).
			Where("b.library_name = ?", key.Name).
			Where("b.id IN (?)", bun.In(ids)).
			Scan(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		known := make(map[int]*models.Book, len(existing))
		for _, b := range existing {
			known[b.ID] = b
		}

		for _, id := range ids {
			md := records[id]
			book, ok := known[id]

			if md == nil {
				if ok {
					_, err := tx.NewUpdate().
						Model((*models.Book)(nil)).
						Set("last_synced = last_modified").
						Set("updated_at = ?", now).
						Where("server_uuid = ?", key.ServerUUID).
						Where("library_name = ?", key.Name).
						Where("id = ?", id).
						Exec(ctx)
					if err != nil {
						return errors.WithStack(err)
					}
				}
				result.Deleted = append(result.Deleted, id)
				continue
			}

			if !ok {
				book = &models.Book{
					ServerUUID:  key.ServerUUID,
					LibraryName: key.Name,
					ID:          id,
					CreatedAt:   now,
				}
			}
			applyRecord(book, md, opts)
			book.UpdatedAt = now

			if ok {
				_, err = tx.NewUpdate().Model(book).Column(bookColumns...).WherePK().Exec(ctx)
			} else {
				_, err = tx.NewInsert().Model(book).Exec(ctx)
			}
			if err != nil {
				return errors.WithStack(err)
			}

			if err := replaceFormats(ctx, tx, book, md); err != nil {
				return errors.WithStack(err)
			}
			result.Updated = append(result.Updated, id)
		}
		return nil
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return result, nil
}

func applyRecord(book *models.Book, md *catalog.BookMetadata, opts ApplyMetadataOptions) {
	book.Title = md.Title
	book.TitleSort = md.TitleSort
	if book.TitleSort == "" {
		book.TitleSort = sortname.Title(md.Title)
	}
	book.Authors = md.Authors
	book.AuthorSort = md.AuthorSort
	if book.AuthorSort == "" {
		book.AuthorSort = sortname.Authors(md.Authors)
	}
	book.Series = md.Series
	book.SeriesIndex = md.SeriesIndex
	book.Tags = md.Tags
	book.Identifiers = md.Identifiers
	book.Publisher = md.Publisher
	book.Rating = md.Rating
	book.Comments = md.Comments
	book.Timestamp = md.Timestamp
	book.PubDate = md.PubDate
	if !md.LastModified.IsZero() && md.LastModified.After(book.LastModified) {
		book.LastModified = md.LastModified
	}
	book.LastSynced = book.LastModified
	book.PageCount = nil
	if opts.PagesColumn != "" {
		if v, ok := md.UserMetadata[opts.PagesColumn]; ok {
			book.PageCount = intValue(v.Value)
		}
	}
}

func intValue(v interface{}) *int {
	switch n := v.(type) {
	case float64:
		i := int(math.Round(n))
		return &i
	case int:
		return &n
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return nil
		}
		return &i
	}
	return nil
}

// replaceFormats rewrites the server side of the format table while keeping
// local cache state for formats that still exist.
func replaceFormats(ctx context.Context, tx bun.Tx, book *models.Book, md *catalog.BookMetadata) error {
	cached := map[string]*models.BookFormat{}
	for _, f := range book.Formats {
		cached[f.Format] = f
	}

	_, err := tx.NewDelete().
		Model((*models.BookFormat)(nil)).
		Where("server_uuid = ?", book.ServerUUID).
		Where("library_name = ?", book.LibraryName).
		Where("book_id = ?", book.ID).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	if len(md.FormatMetadata) == 0 {
		book.Formats = nil
		return nil
	}

	names := make([]string, 0, len(md.FormatMetadata))
	for name := range md.FormatMetadata {
		names = append(names, name)
	}
	sort.Strings(names)

	formats := make([]*models.BookFormat, 0, len(names))
	for _, name := range names {
		fm := md.FormatMetadata[name]
		f := &models.BookFormat{
			ServerUUID:  book.ServerUUID,
			LibraryName: book.LibraryName,
			BookID:      book.ID,
			Format:      name,
			ServerSize:  fm.Size,
			ServerMtime: fm.Mtime,
		}
		if prev, ok := cached[name]; ok {
			f.Cached = prev.Cached
			f.CacheSize = prev.CacheSize
			f.CacheMtime = prev.CacheMtime
		}
		formats = append(formats, f)
	}
	_, err = tx.NewInsert().Model(&formats).Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	book.Formats = formats
	return nil
}

// PurgeRemoved physically deletes removed books that are fully synced and
// carry no annotation changes still waiting to be written back. Only books
// removed no later than syncedUntil, the end of the library's previous
// successful sync, are eligible, so a removal always survives the pass that
// made it.
func (svc *Service) PurgeRemoved(ctx context.Context, key models.LibraryKey, syncedUntil *time.Time) (int, error) {
	if syncedUntil == nil {
		return 0, nil
	}

	log := logger.FromContext(ctx)
	purged := 0

	err := svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		removed := []*models.Book{}
		err := tx.NewSelect().
			Model(&removed).
			Column("id", "last_modified", "last_synced", "removed_at").
			Where("b.server_uuid = ?", key.ServerUUID).
			Where("b.library_name = ?", key.Name).
			Where("b.removed = ?", true).
			Scan(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		for _, b := range removed {
			if b.RemovedAt == nil || b.RemovedAt.After(*syncedUntil) || b.NeedsUpdate() {
				continue
			}
			dirty, err := hasDirtyAnnotations(ctx, tx, key, b.ID)
			if err != nil {
				return errors.WithStack(err)
			}
			if dirty {
				continue
			}
			for _, table := range []string{"reading_positions", "bookmarks", "highlights", "reading_sessions", "book_formats", "fetch_errors"} {
				_, err := tx.NewDelete().
					TableExpr(table).
					Where("server_uuid = ?", key.ServerUUID).
					Where("library_name = ?", key.Name).
					Where("book_id = ?", b.ID).
					Exec(ctx)
				if err != nil {
					return errors.WithStack(err)
				}
			}
			_, err = tx.NewDelete().
				Model((*models.Book)(nil)).
				Where("server_uuid = ?", key.ServerUUID).
				Where("library_name = ?", key.Name).
				Where("id = ?", b.ID).
				Exec(ctx)
			if err != nil {
				return errors.WithStack(err)
			}
			purged++
		}
		return nil
	})
	if err != nil {
		return 0, errors.WithStack(err)
	}

	if purged > 0 {
		log.Info("purged removed books", logger.Data{"library": key.String(), "count": purged})
	}
	return purged, nil
}

func hasDirtyAnnotations(ctx context.Context, tx bun.Tx, key models.LibraryKey, id int) (bool, error) {
	for _, table := range []string{"reading_positions", "bookmarks", "highlights"} {
		exists, err := tx.NewSelect().
			TableExpr(table).
			Where("server_uuid = ?", key.ServerUUID).
			Where("library_name = ?", key.Name).
			Where("book_id = ?", id).
			Where("dirty = ?", true).
			Exists(ctx)
		if err != nil {
			return false, errors.WithStack(err)
		}
		if exists {
			return true, nil
		}
	}
	return false, nil
}
