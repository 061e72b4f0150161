package books

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/shishobooks/shelfsync/pkg/errcodes"
	"github.com/shishobooks/shelfsync/pkg/models"
	"github.com/uptrace/bun"
)

// insertChunk bounds the rows per multi-row INSERT so the statement stays
// well under SQLite's bound-parameter limit.
const insertChunk = 256

type RetrieveBookOptions struct {
	Key *models.BookKey
}

type ListBooksOptions struct {
	Library        *models.LibraryKey
	IDs            []int
	IncludeRemoved bool
}

type UpdateBookOptions struct {
	Columns []string
}

// LocalState is the subset of a stored book the sync pass needs to compute
// deletions.
type LocalState struct {
	InShelf bool
	Removed bool
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

func (svc *Service) RetrieveBook(ctx context.Context, opts RetrieveBookOptions) (*models.Book, error) {
	book := &models.Book{}

	q := svc.db.
		NewSelect().
		Model(book).
		Relation("Formats", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.Order("format ASC")
		})

	if opts.Key != nil {
		q = q.
			Where("b.server_uuid = ?", opts.Key.ServerUUID).
			Where("b.library_name = ?", opts.Key.LibraryName).
			Where("b.id = ?", opts.Key.ID)
	}

	err := q.Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Book")
		}
		return nil, errors.WithStack(err)
	}

	return book, nil
}

func (svc *Service) ListBooks(ctx context.Context, opts ListBooksOptions) ([]*models.Book, error) {
	books := []*models.Book{}

	q := svc.db.
		NewSelect().
		Model(&books).
		Order("b.server_uuid ASC", "b.library_name ASC", "b.id ASC")

	if opts.Library != nil {
		q = q.
			Where("b.server_uuid = ?", opts.Library.ServerUUID).
			Where("b.library_name = ?", opts.Library.Name)
	}
	if opts.IDs != nil {
		if len(opts.IDs) == 0 {
			return books, nil
		}
		q = q.Where("b.id IN (?)", bun.In(opts.IDs))
	}
	if !opts.IncludeRemoved {
		q = q.Where("b.removed = ?", false)
	}

	err := q.Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return books, nil
}

// LoadBooks returns the visible books of one library keyed by id. Missing
// or removed ids are absent from the map.
func (svc *Service) LoadBooks(ctx context.Context, key models.LibraryKey, ids []int) (map[int]*models.Book, error) {
	out := make(map[int]*models.Book, len(ids))
	for start := 0; start < len(ids); start += insertChunk {
		end := min(start+insertChunk, len(ids))
		books, err := svc.ListBooks(ctx, ListBooksOptions{Library: &key, IDs: ids[start:end]})
		if err != nil {
			return nil, errors.WithStack(err)
		}
		for _, b := range books {
			out[b.ID] = b
		}
	}
	return out, nil
}

func (svc *Service) UpdateBook(ctx context.Context, book *models.Book, opts UpdateBookOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	book.UpdatedAt = time.Now()
	columns := append(append([]string{}, opts.Columns...), "updated_at")

	_, err := svc.db.
		NewUpdate().
		Model(book).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// UpsertLastModified records the server's last-modified time for a batch of
// ids in one transaction. New ids are inserted unsynced; known ids get their
// last-modified refreshed and are un-removed if they had been removed.
func (svc *Service) UpsertLastModified(ctx context.Context, key models.LibraryKey, entries map[int]time.Time) (inserted int, err error) {
	if len(entries) == 0 {
		return 0, nil
	}
	ids := make([]int, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	now := time.Now()
	err = svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		existing := []*models.Book{}
		err := tx.NewSelect().
			Model(&existing).
			Column("server_uuid", "library_name", "id", "last_modified", "removed").
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

		fresh := []*models.Book{}
		for _, id := range ids {
			modified := entries[id]
			b, ok := known[id]
			if !ok {
				fresh = append(fresh, &models.Book{
					ServerUUID:   key.ServerUUID,
					LibraryName:  key.Name,
					ID:           id,
					CreatedAt:    now,
					UpdatedAt:    now,
					LastModified: modified,
				})
				continue
			}
			if b.LastModified.Equal(modified) && !b.Removed {
				continue
			}
			_, err := tx.NewUpdate().
				Model((*models.Book)(nil)).
				Set("last_modified = ?", modified).
				Set("removed = ?", false).
				Set("removed_at = NULL").
				Set("updated_at = ?", now).
				Where("server_uuid = ?", key.ServerUUID).
				Where("library_name = ?", key.Name).
				Where("id = ?", id).
				Exec(ctx)
			if err != nil {
				return errors.WithStack(err)
			}
		}

		for start := 0; start < len(fresh); start += insertChunk {
			chunk := fresh[start:min(start+insertChunk, len(fresh))]
			_, err := tx.NewInsert().Model(&chunk).Exec(ctx)
			if err != nil {
				return errors.WithStack(err)
			}
		}
		inserted = len(fresh)
		return nil
	})
	return inserted, errors.WithStack(err)
}

// LocalIDs returns every stored id of the library with its shelf and
// removal flags.
func (svc *Service) LocalIDs(ctx context.Context, key models.LibraryKey) (map[int]LocalState, error) {
	books := []*models.Book{}
	err := svc.db.NewSelect().
		Model(&books).
		Column("id", "in_shelf", "removed").
		Where("b.server_uuid = ?", key.ServerUUID).
		Where("b.library_name = ?", key.Name).
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	out := make(map[int]LocalState, len(books))
	for _, b := range books {
		out[b.ID] = LocalState{InShelf: b.InShelf, Removed: b.Removed}
	}
	return out, nil
}

// MarkRemoved logically deletes books. The rows stay until PurgeRemoved
// decides they are safe to drop.
func (svc *Service) MarkRemoved(ctx context.Context, key models.LibraryKey, ids []int, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		for start := 0; start < len(ids); start += insertChunk {
			chunk := ids[start:min(start+insertChunk, len(ids))]
			_, err := tx.NewUpdate().
				Model((*models.Book)(nil)).
				Set("removed = ?", true).
				Set("removed_at = ?", at).
				Set("updated_at = ?", at).
				Where("server_uuid = ?", key.ServerUUID).
				Where("library_name = ?", key.Name).
				Where("id IN (?)", bun.In(chunk)).
				Where("removed = ?", false).
				Exec(ctx)
			if err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	})
}

// UpdateCandidates returns ids whose local copy is behind the server,
// skipping removed books and books with a recorded fetch error.
func (svc *Service) UpdateCandidates(ctx context.Context, key models.LibraryKey) ([]int, error) {
	books := []*models.Book{}
	err := svc.db.NewSelect().
		Model(&books).
		Column("id", "last_modified", "last_synced").
		Where("b.server_uuid = ?", key.ServerUUID).
		Where("b.library_name = ?", key.Name).
		Where("b.removed = ?", false).
		Where(`NOT EXISTS (
			SELECT 1 FROM fetch_errors fe
			WHERE fe.server_uuid = b.server_uuid AND fe.library_name = b.library_name AND fe.book_id = b.id
		)`).
		Order("b.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	ids := []int{}
	for _, b := range books {
		// Compared in Go: time columns are stored as text and do not order
		// reliably across offsets in SQL.
		if b.NeedsUpdate() {
			ids = append(ids, b.ID)
		}
	}
	return ids, nil
}

func (svc *Service) SetInShelf(ctx context.Context, key models.BookKey, inShelf bool) error {
	book := &models.Book{ServerUUID: key.ServerUUID, LibraryName: key.LibraryName, ID: key.ID, InShelf: inShelf}
	return errors.WithStack(svc.UpdateBook(ctx, book, UpdateBookOptions{Columns: []string{"in_shelf"}}))
}
