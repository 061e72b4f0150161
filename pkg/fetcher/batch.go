package fetcher

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/shelfsync/pkg/books"
	"github.com/shishobooks/shelfsync/pkg/catalog"
	"github.com/shishobooks/shelfsync/pkg/models"
)

// batcher carries the per-call state of one Fetch.
type batcher struct {
	worker      *Worker
	key         models.LibraryKey
	result      *Result
	pagesColumn string
	annotations bool
}

// fetch requests one batch and persists it. It returns the ids the server
// answered for neither way.
func (b *batcher) fetch(ctx context.Context, batch []int) ([]int, error) {
	records, err := b.worker.client.Metadata(ctx, b.key, batch)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	answered := make(map[int]*catalog.BookMetadata, len(batch))
	missed := []int{}
	for _, id := range batch {
		md, ok := records[id]
		if !ok {
			missed = append(missed, id)
			continue
		}
		answered[id] = md
	}
	if len(answered) == 0 {
		return missed, nil
	}

	applied, err := b.worker.books.ApplyMetadata(ctx, b.key, answered, books.ApplyMetadataOptions{
		PagesColumn: b.pagesColumn,
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	b.result.Updated = append(b.result.Updated, applied.Updated...)
	b.result.Deleted = append(b.result.Deleted, applied.Deleted...)

	if b.annotations && len(applied.Updated) > 0 {
		b.syncAnnotations(ctx, applied.Updated, answered)
	}
	return missed, nil
}

// syncAnnotations merges the server's annotations for every format of the
// updated books and pushes back local changes. Failures are logged and
// left for the next fetch.
func (b *batcher) syncAnnotations(ctx context.Context, ids []int, records map[int]*catalog.BookMetadata) {
	log := logger.FromContext(ctx).Data(logger.Data{"library": b.key.String()})

	refs := []catalog.AnnotationRef{}
	for _, id := range ids {
		formats := make([]string, 0, len(records[id].FormatMetadata))
		for format := range records[id].FormatMetadata {
			formats = append(formats, format)
		}
		sort.Strings(formats)
		for _, format := range formats {
			refs = append(refs, catalog.AnnotationRef{ID: id, Format: format})
		}
	}
	if len(refs) == 0 {
		return
	}

	payloads, err := b.worker.client.Annotations(ctx, b.key, refs)
	if err != nil {
		log.Err(err).Warn("annotation fetch failed", logger.Data{"count": len(refs)})
		return
	}

	touched := map[int]struct{}{}
	for _, ref := range refs {
		payload, ok := payloads[ref]
		if !ok {
			continue
		}
		book := models.BookKey{ServerUUID: b.key.ServerUUID, LibraryName: b.key.Name, ID: ref.ID}
		pending, err := b.worker.annotations.MergeIncoming(ctx, book, ref.Format, payload)
		if err != nil {
			log.Err(err).Warn("annotation merge failed", logger.Data{"book": book.String(), "format": ref.Format})
			continue
		}
		b.result.Pending += pending
		touched[ref.ID] = struct{}{}
	}

	for _, id := range ids {
		if _, ok := touched[id]; !ok {
			continue
		}
		book := models.BookKey{ServerUUID: b.key.ServerUUID, LibraryName: b.key.Name, ID: id}
		if err := b.writeBack(ctx, book); err != nil {
			log.Err(err).Warn("annotation write-back failed", logger.Data{"book": book.String()})
		}
	}
}

func (b *batcher) writeBack(ctx context.Context, book models.BookKey) error {
	pending, err := b.worker.annotations.PendingWriteBack(ctx, book)
	if err != nil {
		return errors.WithStack(err)
	}
	formats := make([]string, 0, len(pending))
	for format := range pending {
		formats = append(formats, format)
	}
	sort.Strings(formats)

	for _, format := range formats {
		payload := pending[format]
		if payload.Len() == 0 {
			continue
		}
		if err := b.worker.client.PushAnnotations(ctx, book, format, payload); err != nil {
			return errors.WithStack(err)
		}
		if err := b.worker.annotations.MarkWrittenBack(ctx, book, format, payload); err != nil {
			return errors.WithStack(err)
		}
		b.result.Pushed++
	}
	return nil
}
