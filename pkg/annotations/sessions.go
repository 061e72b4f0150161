package annotations

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/shishobooks/shelfsync/pkg/errcodes"
	"github.com/shishobooks/shelfsync/pkg/models"
	"github.com/uptrace/bun"
)

// DefaultSessionWindow is how long a session stays resumable after its
// last recorded activity.
const DefaultSessionWindow = 10 * time.Minute

type RecordSessionOptions struct {
	Book       models.BookKey
	DeviceID   string
	ReaderName string
	Page       int
	X          float64
	Y          float64
	At         time.Time
}

type CloseSessionOptions struct {
	Book     models.BookKey
	DeviceID string
	Page     int
	X        float64
	Y        float64
	At       time.Time
}

type ListSessionsOptions struct {
	Book     *models.BookKey
	DeviceID *string
	Limit    *int
}

// RecordSession extends the device's open session for the book when it saw
// activity within the session window, and opens a new one otherwise.
func (svc *Service) RecordSession(ctx context.Context, opts RecordSessionOptions) (*models.ReadingSession, error) {
	var session *models.ReadingSession
	err := svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var err error
		session, err = recordSession(ctx, tx, opts, svc.sessionWindow)
		return errors.WithStack(err)
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return session, nil
}

func recordSession(ctx context.Context, tx bun.Tx, opts RecordSessionOptions, window time.Duration) (*models.ReadingSession, error) {
	if opts.At.IsZero() {
		opts.At = time.Now()
	}
	at := epochOf(opts.At)

	session, err := openSession(ctx, tx, opts.Book, opts.DeviceID)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if session != nil && at-session.Epoch <= window.Seconds() {
		if at > session.Epoch {
			session.Epoch = at
			if _, err := tx.NewUpdate().Model(session).Column("epoch").WherePK().Exec(ctx); err != nil {
				return nil, errors.WithStack(err)
			}
		}
		return session, nil
	}

	session = &models.ReadingSession{
		ServerUUID:    opts.Book.ServerUUID,
		LibraryName:   opts.Book.LibraryName,
		BookID:        opts.Book.ID,
		DeviceID:      opts.DeviceID,
		ReaderName:    opts.ReaderName,
		StartDatetime: opts.At.UTC(),
		StartPage:     opts.Page,
		StartX:        opts.X,
		StartY:        opts.Y,
		Epoch:         at,
	}
	if _, err := tx.NewInsert().Model(session).Exec(ctx); err != nil {
		return nil, errors.WithStack(err)
	}
	return session, nil
}

func openSession(ctx context.Context, tx bun.Tx, book models.BookKey, deviceID string) (*models.ReadingSession, error) {
	session := &models.ReadingSession{}
	err := tx.NewSelect().
		Model(session).
		Where("rs.server_uuid = ?", book.ServerUUID).
		Where("rs.library_name = ?", book.LibraryName).
		Where("rs.book_id = ?", book.ID).
		Where("rs.device_id = ?", deviceID).
		Where("rs.end_datetime IS NULL").
		Order("rs.epoch DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.WithStack(err)
	}
	return session, nil
}

// CloseSession attaches the end position to the device's most recent open
// session for the book.
func (svc *Service) CloseSession(ctx context.Context, opts CloseSessionOptions) (*models.ReadingSession, error) {
	if opts.At.IsZero() {
		opts.At = time.Now()
	}
	var session *models.ReadingSession
	err := svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var err error
		session, err = openSession(ctx, tx, opts.Book, opts.DeviceID)
		if err != nil {
			return errors.WithStack(err)
		}
		if session == nil {
			return errcodes.NotFound("Reading session")
		}
		end := opts.At.UTC()
		session.EndDatetime = &end
		session.EndPage = &opts.Page
		session.EndX = &opts.X
		session.EndY = &opts.Y
		session.Epoch = max(session.Epoch, epochOf(end))
		_, err = tx.NewUpdate().
			Model(session).
			Column("end_datetime", "end_page", "end_x", "end_y", "epoch").
			WherePK().
			Exec(ctx)
		return errors.WithStack(err)
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return session, nil
}

func (svc *Service) ListSessions(ctx context.Context, opts ListSessionsOptions) ([]*models.ReadingSession, error) {
	sessions := []*models.ReadingSession{}
	q := svc.db.NewSelect().
		Model(&sessions).
		Order("rs.start_datetime DESC", "rs.id DESC")

	if opts.Book != nil {
		q = q.
			Where("rs.server_uuid = ?", opts.Book.ServerUUID).
			Where("rs.library_name = ?", opts.Book.LibraryName).
			Where("rs.book_id = ?", opts.Book.ID)
	}
	if opts.DeviceID != nil {
		q = q.Where("rs.device_id = ?", *opts.DeviceID)
	}
	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, errors.WithStack(err)
	}
	return sessions, nil
}
