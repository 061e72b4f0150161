package books

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/shishobooks/shelfsync/pkg/models"
	"github.com/uptrace/bun"
)

// RecordFetchErrors marks ids as permanently failing until the library's
// next full sync.
func (svc *Service) RecordFetchErrors(ctx context.Context, key models.LibraryKey, ids []int, message string) error {
	if len(ids) == 0 {
		return nil
	}
	now := time.Now()
	return svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		prev := []*models.FetchError{}
		err := tx.NewSelect().
			Model(&prev).
			Where("fe.server_uuid = ?", key.ServerUUID).
			Where("fe.library_name = ?", key.Name).
			Where("fe.book_id IN (?)", bun.In(ids)).
			Scan(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		attempts := make(map[int]int, len(prev))
		for _, p := range prev {
			attempts[p.BookID] = p.Attempts
		}

		rows := make([]*models.FetchError, 0, len(ids))
		for _, id := range ids {
			rows = append(rows, &models.FetchError{
				ServerUUID:  key.ServerUUID,
				LibraryName: key.Name,
				BookID:      id,
				Message:     message,
				Attempts:    attempts[id] + 1,
				FailedAt:    now,
			})
		}
		_, err = tx.NewInsert().
			Model(&rows).
			On("CONFLICT (server_uuid, library_name, book_id) DO UPDATE").
			Set("message = EXCLUDED.message").
			Set("attempts = EXCLUDED.attempts").
			Set("failed_at = EXCLUDED.failed_at").
			Exec(ctx)
		return errors.WithStack(err)
	})
}

func (svc *Service) ClearFetchErrors(ctx context.Context, key models.LibraryKey) error {
	_, err := svc.db.NewDelete().
		Model((*models.FetchError)(nil)).
		Where("server_uuid = ?", key.ServerUUID).
		Where("library_name = ?", key.Name).
		Exec(ctx)
	return errors.WithStack(err)
}

func (svc *Service) ListFetchErrors(ctx context.Context, key models.LibraryKey) ([]*models.FetchError, error) {
	rows := []*models.FetchError{}
	err := svc.db.NewSelect().
		Model(&rows).
		Where("fe.server_uuid = ?", key.ServerUUID).
		Where("fe.library_name = ?", key.Name).
		Order("fe.book_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return rows, nil
}
