package annotations

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/shishobooks/shelfsync/pkg/catalog"
	"github.com/shishobooks/shelfsync/pkg/errcodes"
	"github.com/shishobooks/shelfsync/pkg/models"
	"github.com/uptrace/bun"
)

type UpdatePositionOptions struct {
	// RecordSession also extends or opens the device's reading session.
	RecordSession bool
}

// UpdatePosition stores a position produced on this side. Epochs are
// monotonic per device, so an update that is not newer than the stored
// one is rejected.
func (svc *Service) UpdatePosition(ctx context.Context, pos *models.ReadingPosition, opts UpdatePositionOptions) error {
	now := time.Now()
	if pos.Epoch == 0 {
		pos.Epoch = epochOf(now)
	}
	pos.Dirty = true

	return svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		cur := &models.ReadingPosition{
			ServerUUID:  pos.ServerUUID,
			LibraryName: pos.LibraryName,
			BookID:      pos.BookID,
			Format:      pos.Format,
			DeviceID:    pos.DeviceID,
		}
		err := tx.NewSelect().Model(cur).WherePK().Scan(ctx)
		switch {
		case err == nil:
			if pos.Epoch <= cur.Epoch {
				return errcodes.Conflict("A newer reading position is already stored for this device.")
			}
		case !errors.Is(err, sql.ErrNoRows):
			return errors.WithStack(err)
		}

		_, err = tx.NewInsert().
			Model(pos).
			On("CONFLICT (server_uuid, library_name, book_id, device_id) DO UPDATE").
			Set("format = EXCLUDED.format").
			Set("reader_name = EXCLUDED.reader_name").
			Set("last_read_page = EXCLUDED.last_read_page").
			Set("last_read_chapter = EXCLUDED.last_read_chapter").
			Set("last_chapter_progress = EXCLUDED.last_chapter_progress").
			Set("last_progress = EXCLUDED.last_progress").
			Set("max_page = EXCLUDED.max_page").
			Set("last_position_page = EXCLUDED.last_position_page").
			Set("last_position_x = EXCLUDED.last_position_x").
			Set("last_position_y = EXCLUDED.last_position_y").
			Set("epoch = EXCLUDED.epoch").
			Set("structural_style = EXCLUDED.structural_style").
			Set("structural_root_page_number = EXCLUDED.structural_root_page_number").
			Set("position_tracking_style = EXCLUDED.position_tracking_style").
			Set("take_precedence = EXCLUDED.take_precedence").
			Set("dirty = EXCLUDED.dirty").
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		if !opts.RecordSession {
			return nil
		}
		_, err = recordSession(ctx, tx, RecordSessionOptions{
			Book:       pos.BookKey(),
			DeviceID:   pos.DeviceID,
			ReaderName: pos.ReaderName,
			Page:       pos.LastPositionPage,
			X:          pos.LastPositionX,
			Y:          pos.LastPositionY,
			At:         TimeOf(pos.Epoch),
		}, svc.sessionWindow)
		return errors.WithStack(err)
	})
}

// AddBookmark makes bm the only visible bookmark at its position.
func (svc *Service) AddBookmark(ctx context.Context, bm *models.Bookmark) error {
	if bm.Date.IsZero() {
		bm.Date = time.Now()
	}
	bm.Removed = false
	bm.Dirty = true

	return svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tombstoneBookmarks(ctx, tx, bm, bm.Date.Add(-tombstoneBump)); err != nil {
			return errors.WithStack(err)
		}
		_, err := tx.NewInsert().Model(bm).Exec(ctx)
		return errors.WithStack(err)
	})
}

// RemoveBookmark tombstones the visible bookmarks at a position.
func (svc *Service) RemoveBookmark(ctx context.Context, book models.BookKey, format, pos string) error {
	at := time.Now()
	return svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		n, err := tombstoneBookmarks(ctx, tx, &models.Bookmark{
			ServerUUID:  book.ServerUUID,
			LibraryName: book.LibraryName,
			BookID:      book.ID,
			Format:      format,
			Pos:         pos,
		}, at)
		if err != nil {
			return errors.WithStack(err)
		}
		if n == 0 {
			return errcodes.NotFound("Bookmark")
		}
		return nil
	})
}

func tombstoneBookmarks(ctx context.Context, tx bun.Tx, bm *models.Bookmark, at time.Time) (int64, error) {
	res, err := tx.NewUpdate().
		Model((*models.Bookmark)(nil)).
		Set("removed = ?", true).
		Set("date = ?", at).
		Set("dirty = ?", true).
		Where("server_uuid = ?", bm.ServerUUID).
		Where("library_name = ?", bm.LibraryName).
		Where("book_id = ?", bm.BookID).
		Where("format = ?", bm.Format).
		Where("pos = ?", bm.Pos).
		Where("removed = ?", false).
		Exec(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	n, err := res.RowsAffected()
	return n, errors.WithStack(err)
}

// SaveHighlight creates or replaces a highlight. A local save is an
// explicit creation, so it also revives a tombstoned highlight.
func (svc *Service) SaveHighlight(ctx context.Context, hl *models.Highlight) error {
	if hl.Date.IsZero() {
		hl.Date = time.Now()
	}
	hl.Removed = false
	hl.Dirty = true

	_, err := svc.db.NewInsert().
		Model(hl).
		On("CONFLICT (server_uuid, library_name, book_id, format, uuid) DO UPDATE").
		Set("type = EXCLUDED.type").
		Set("style = EXCLUDED.style").
		Set("note = EXCLUDED.note").
		Set("highlighted_text = EXCLUDED.highlighted_text").
		Set("start_cfi = EXCLUDED.start_cfi").
		Set("end_cfi = EXCLUDED.end_cfi").
		Set("spine_index = EXCLUDED.spine_index").
		Set("page = EXCLUDED.page").
		Set("start_offset = EXCLUDED.start_offset").
		Set("end_offset = EXCLUDED.end_offset").
		Set("date = EXCLUDED.date").
		Set("removed = EXCLUDED.removed").
		Set("dirty = EXCLUDED.dirty").
		Exec(ctx)
	return errors.WithStack(err)
}

func (svc *Service) RemoveHighlight(ctx context.Context, book models.BookKey, format, id string) error {
	res, err := svc.db.NewUpdate().
		Model((*models.Highlight)(nil)).
		Set("removed = ?", true).
		Set("date = ?", time.Now()).
		Set("dirty = ?", true).
		Where("server_uuid = ?", book.ServerUUID).
		Where("library_name = ?", book.LibraryName).
		Where("book_id = ?", book.ID).
		Where("format = ?", format).
		Where("uuid = ?", id).
		Where("removed = ?", false).
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.WithStack(err)
	}
	if n == 0 {
		return errcodes.NotFound("Highlight")
	}
	return nil
}

type ListAnnotationsOptions struct {
	Format         string
	IncludeRemoved bool
}

// ListAnnotations returns the stored annotations of a book as a payload.
func (svc *Service) ListAnnotations(ctx context.Context, book models.BookKey, opts ListAnnotationsOptions) (*catalog.AnnotationPayload, error) {
	out := &catalog.AnnotationPayload{
		LastReadPositions: []*models.ReadingPosition{},
		Bookmarks:         []*models.Bookmark{},
		Highlights:        []*models.Highlight{},
	}

	cond, args := bookScope("rp", book, opts.Format)
	err := svc.db.NewSelect().Model(&out.LastReadPositions).Where(cond, args...).Order("rp.epoch DESC").Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	cond, args = bookScope("bm", book, opts.Format)
	q := svc.db.NewSelect().Model(&out.Bookmarks).Where(cond, args...).Order("bm.pos ASC", "bm.date DESC")
	if !opts.IncludeRemoved {
		q = q.Where("bm.removed = ?", false)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, errors.WithStack(err)
	}

	cond, args = bookScope("hl", book, opts.Format)
	q = svc.db.NewSelect().Model(&out.Highlights).Where(cond, args...).Order("hl.date ASC", "hl.uuid ASC")
	if !opts.IncludeRemoved {
		q = q.Where("hl.removed = ?", false)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, errors.WithStack(err)
	}

	return out, nil
}
