package annotations

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/shelfsync/pkg/catalog"
	"github.com/shishobooks/shelfsync/pkg/errcodes"
	"github.com/shishobooks/shelfsync/pkg/models"
	"github.com/uptrace/bun"
)

type Service struct {
	db            *bun.DB
	sessionWindow time.Duration
}

func NewService(db *bun.DB) *Service {
	return &Service{db, DefaultSessionWindow}
}

// SetSessionWindow changes how long a reading session stays resumable.
func (svc *Service) SetSessionWindow(d time.Duration) {
	if d > 0 {
		svc.sessionWindow = d
	}
}

// MergeIncoming reconciles a remote payload for one format of a book with
// the stored annotations and returns how many incoming entries lost to a
// newer local record. Those local records are flagged dirty so that
// PendingWriteBack returns them. Malformed entries are skipped.
func (svc *Service) MergeIncoming(ctx context.Context, book models.BookKey, format string, payload *catalog.AnnotationPayload) (int, error) {
	if payload == nil || payload.Len() == 0 {
		return 0, nil
	}
	log := logger.FromContext(ctx).Data(logger.Data{"book": book.String(), "format": format})

	pending := 0
	err := svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		n, err := mergePositions(ctx, tx, book, format, payload.LastReadPositions)
		if err != nil {
			return errors.WithStack(err)
		}
		pending += n

		n, err = mergeBookmarks(ctx, tx, book, format, payload.Bookmarks)
		if err != nil {
			return errors.WithStack(err)
		}
		pending += n

		n, err = mergeHighlights(ctx, tx, book, format, payload.Highlights)
		if err != nil {
			return errors.WithStack(err)
		}
		pending += n
		return nil
	})
	if err != nil {
		return 0, errors.WithStack(err)
	}

	log.Debug("merged incoming annotations", logger.Data{"incoming": payload.Len(), "pending": pending})
	return pending, nil
}

// bookScope returns the condition selecting one book's rows, optionally
// narrowed to a format. alias may be empty.
func bookScope(alias string, book models.BookKey, format string) (string, []interface{}) {
	if alias != "" {
		alias += "."
	}
	cond := alias + "server_uuid = ? AND " + alias + "library_name = ? AND " + alias + "book_id = ?"
	args := []interface{}{book.ServerUUID, book.LibraryName, book.ID}
	if format != "" {
		cond += " AND " + alias + "format = ?"
		args = append(args, format)
	}
	return cond, args
}

func mergePositions(ctx context.Context, tx bun.Tx, book models.BookKey, format string, incoming []*models.ReadingPosition) (int, error) {
	newest := map[string]*models.ReadingPosition{}
	for _, p := range incoming {
		if p == nil || p.DeviceID == "" {
			continue
		}
		if cur, ok := newest[p.DeviceID]; !ok || p.Epoch > cur.Epoch {
			newest[p.DeviceID] = p
		}
	}
	if len(newest) == 0 {
		return 0, nil
	}

	// A device has one current position per book whatever the format.
	local := []*models.ReadingPosition{}
	cond, args := bookScope("rp", book, "")
	q := tx.NewSelect().Model(&local).Where(cond, args...)
	if err := q.Scan(ctx); err != nil {
		return 0, errors.WithStack(err)
	}
	byDevice := make(map[string]*models.ReadingPosition, len(local))
	for _, p := range local {
		byDevice[p.DeviceID] = p
	}

	devices := make([]string, 0, len(newest))
	for id := range newest {
		devices = append(devices, id)
	}
	sort.Strings(devices)

	pending := 0
	for _, id := range devices {
		remote := newest[id]
		cur, ok := byDevice[id]
		if ok {
			switch compareEpochs(cur.Epoch, remote.Epoch) {
			case sameInstant:
				continue
			case localNewer:
				pending++
				if !cur.Dirty {
					cur.Dirty = true
					if _, err := tx.NewUpdate().Model(cur).Column("dirty").WherePK().Exec(ctx); err != nil {
						return 0, errors.WithStack(err)
					}
				}
				continue
			}
		}

		p := *remote
		p.ServerUUID = book.ServerUUID
		p.LibraryName = book.LibraryName
		p.BookID = book.ID
		p.Format = format
		p.Dirty = false
		_, err := tx.NewInsert().
			Model(&p).
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
			return 0, errors.WithStack(err)
		}
	}
	return pending, nil
}

func mergeBookmarks(ctx context.Context, tx bun.Tx, book models.BookKey, format string, incoming []*models.Bookmark) (int, error) {
	groups := map[string][]*models.Bookmark{}
	for _, b := range incoming {
		if b == nil || b.Pos == "" || b.Date.IsZero() {
			continue
		}
		groups[b.Pos] = append(groups[b.Pos], b)
	}
	if len(groups) == 0 {
		return 0, nil
	}

	local := []*models.Bookmark{}
	cond, args := bookScope("bm", book, format)
	q := tx.NewSelect().Model(&local).Where(cond, args...)
	if err := q.Order("bm.id ASC").Scan(ctx); err != nil {
		return 0, errors.WithStack(err)
	}
	localByPos := map[string][]*models.Bookmark{}
	for _, b := range local {
		localByPos[b.Pos] = append(localByPos[b.Pos], b)
	}

	positions := make([]string, 0, len(groups))
	for pos := range groups {
		positions = append(positions, pos)
	}
	sort.Strings(positions)

	bookmarkDate := func(b *models.Bookmark) time.Time { return b.Date }
	bookmarkRemoved := func(b *models.Bookmark) bool { return b.Removed }

	pending := 0
	for _, pos := range positions {
		group := groups[pos]
		newestFirst(group, bookmarkDate, bookmarkRemoved)
		candidate := group[0]

		existing := localByPos[pos]
		var newestLocal *models.Bookmark
		visible := []*models.Bookmark{}
		for _, b := range existing {
			if newestLocal == nil || b.Date.After(newestLocal.Date) {
				newestLocal = b
			}
			if !b.Removed {
				visible = append(visible, b)
			}
		}

		if newestLocal != nil {
			switch compareDates(newestLocal.Date, candidate.Date) {
			case sameInstant:
				continue
			case localNewer:
				pending++
				if !newestLocal.Dirty {
					newestLocal.Dirty = true
					if _, err := tx.NewUpdate().Model(newestLocal).Column("dirty").WherePK().Exec(ctx); err != nil {
						return 0, errors.WithStack(err)
					}
				}
				continue
			}
		}

		for _, b := range visible {
			b.Removed = true
			b.Dirty = false
			if candidate.Removed {
				b.Date = candidate.Date
			} else {
				b.Date = b.Date.Add(tombstoneBump)
			}
			if _, err := tx.NewUpdate().Model(b).Column("removed", "date", "dirty").WherePK().Exec(ctx); err != nil {
				return 0, errors.WithStack(err)
			}
		}

		// A removal with nothing to tombstone is stored so later, older
		// creations cannot bring the position back.
		if candidate.Removed && len(visible) > 0 {
			continue
		}
		row := &models.Bookmark{
			ServerUUID:  book.ServerUUID,
			LibraryName: book.LibraryName,
			BookID:      book.ID,
			Format:      format,
			Pos:         pos,
			PosType:     candidate.PosType,
			Title:       candidate.Title,
			Date:        candidate.Date,
			Removed:     candidate.Removed,
		}
		if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
			return 0, errors.WithStack(err)
		}
	}
	return pending, nil
}

func mergeHighlights(ctx context.Context, tx bun.Tx, book models.BookKey, format string, incoming []*models.Highlight) (int, error) {
	groups := map[string][]*models.Highlight{}
	for _, h := range incoming {
		if h == nil || h.UUID == "" || h.Date.IsZero() {
			continue
		}
		groups[h.UUID] = append(groups[h.UUID], h)
	}
	if len(groups) == 0 {
		return 0, nil
	}

	local := []*models.Highlight{}
	cond, args := bookScope("hl", book, format)
	q := tx.NewSelect().Model(&local).Where(cond, args...)
	if err := q.Scan(ctx); err != nil {
		return 0, errors.WithStack(err)
	}
	byUUID := make(map[string]*models.Highlight, len(local))
	for _, h := range local {
		byUUID[h.UUID] = h
	}

	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	highlightDate := func(h *models.Highlight) time.Time { return h.Date }
	highlightRemoved := func(h *models.Highlight) bool { return h.Removed }

	pending := 0
	for _, id := range ids {
		group := groups[id]
		newestFirst(group, highlightDate, highlightRemoved)
		remote := group[0]
		cur, ok := byUUID[id]

		if !ok {
			row := *remote
			row.ServerUUID = book.ServerUUID
			row.LibraryName = book.LibraryName
			row.BookID = book.ID
			row.Format = format
			row.Dirty = false
			if _, err := tx.NewInsert().Model(&row).Exec(ctx); err != nil {
				return 0, errors.WithStack(err)
			}
			continue
		}

		o := compareDates(cur.Date, remote.Date)
		if o == localNewer {
			pending++
			if !cur.Dirty {
				cur.Dirty = true
				if _, err := tx.NewUpdate().Model(cur).Column("dirty").WherePK().Exec(ctx); err != nil {
					return 0, errors.WithStack(err)
				}
			}
			continue
		}

		if remote.Removed {
			if cur.Removed && o == sameInstant {
				continue
			}
			cur.Removed = true
			cur.Date = later(cur.Date, remote.Date)
			cur.Dirty = false
			if _, err := tx.NewUpdate().Model(cur).Column("removed", "date", "dirty").WherePK().Exec(ctx); err != nil {
				return 0, errors.WithStack(err)
			}
			continue
		}

		// Only a creation clearly newer than the tombstone revives it.
		if cur.Removed && o != remoteNewer {
			continue
		}
		cur.Type = remote.Type
		cur.Style = remote.Style
		cur.Note = remote.Note
		cur.HighlightedText = remote.HighlightedText
		cur.StartCFI = remote.StartCFI
		cur.EndCFI = remote.EndCFI
		cur.SpineIndex = remote.SpineIndex
		cur.Page = remote.Page
		cur.StartOffset = remote.StartOffset
		cur.EndOffset = remote.EndOffset
		cur.Date = remote.Date
		cur.Removed = false
		cur.Dirty = false
		if _, err := tx.NewUpdate().Model(cur).WherePK().Exec(ctx); err != nil {
			return 0, errors.WithStack(err)
		}
	}
	return pending, nil
}

// PendingWriteBack returns, per format, the records of a book that changed
// locally and have not been accepted by the server yet.
func (svc *Service) PendingWriteBack(ctx context.Context, book models.BookKey) (map[string]*catalog.AnnotationPayload, error) {
	out := map[string]*catalog.AnnotationPayload{}
	get := func(format string) *catalog.AnnotationPayload {
		p, ok := out[format]
		if !ok {
			p = &catalog.AnnotationPayload{
				LastReadPositions: []*models.ReadingPosition{},
				Bookmarks:         []*models.Bookmark{},
				Highlights:        []*models.Highlight{},
			}
			out[format] = p
		}
		return p
	}

	positions := []*models.ReadingPosition{}
	cond, args := bookScope("rp", book, "")
	err := svc.db.NewSelect().
		Model(&positions).
		Where(cond, args...).
		Where("rp.dirty = ?", true).
		Order("rp.format ASC", "rp.device_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	for _, p := range positions {
		get(p.Format).LastReadPositions = append(get(p.Format).LastReadPositions, p)
	}

	bookmarks := []*models.Bookmark{}
	cond, args = bookScope("bm", book, "")
	err = svc.db.NewSelect().
		Model(&bookmarks).
		Where(cond, args...).
		Where("bm.dirty = ?", true).
		Order("bm.format ASC", "bm.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	for _, b := range bookmarks {
		get(b.Format).Bookmarks = append(get(b.Format).Bookmarks, b)
	}

	highlights := []*models.Highlight{}
	cond, args = bookScope("hl", book, "")
	err = svc.db.NewSelect().
		Model(&highlights).
		Where(cond, args...).
		Where("hl.dirty = ?", true).
		Order("hl.format ASC", "hl.uuid ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	for _, h := range highlights {
		get(h.Format).Highlights = append(get(h.Format).Highlights, h)
	}

	return out, nil
}

// MarkWrittenBack clears the dirty flag of the records in payload. Records
// that changed again after payload was read stay dirty.
func (svc *Service) MarkWrittenBack(ctx context.Context, book models.BookKey, format string, payload *catalog.AnnotationPayload) error {
	if payload == nil {
		return nil
	}
	return svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		cond, args := bookScope("", book, format)
		for _, p := range payload.LastReadPositions {
			_, err := tx.NewUpdate().
				Model((*models.ReadingPosition)(nil)).
				Set("dirty = ?", false).
				Where(cond, args...).
				Where("device_id = ?", p.DeviceID).
				Where("epoch = ?", p.Epoch).
				Exec(ctx)
			if err != nil {
				return errors.WithStack(err)
			}
		}
		for _, b := range payload.Bookmarks {
			_, err := tx.NewUpdate().
				Model((*models.Bookmark)(nil)).
				Set("dirty = ?", false).
				Where("id = ?", b.ID).
				Where("date = ?", b.Date).
				Where("removed = ?", b.Removed).
				Exec(ctx)
			if err != nil {
				return errors.WithStack(err)
			}
		}
		for _, h := range payload.Highlights {
			_, err := tx.NewUpdate().
				Model((*models.Highlight)(nil)).
				Set("dirty = ?", false).
				Where(cond, args...).
				Where("uuid = ?", h.UUID).
				Where("date = ?", h.Date).
				Where("removed = ?", h.Removed).
				Exec(ctx)
			if err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	})
}

// LatestPosition returns the most recent position of the book across every
// device and format.
func (svc *Service) LatestPosition(ctx context.Context, book models.BookKey) (*models.ReadingPosition, error) {
	pos := &models.ReadingPosition{}
	cond, args := bookScope("rp", book, "")
	err := svc.db.NewSelect().
		Model(pos).
		Where(cond, args...).
		Order("rp.epoch DESC", "rp.device_id ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Reading position")
		}
		return nil, errors.WithStack(err)
	}
	return pos, nil
}
