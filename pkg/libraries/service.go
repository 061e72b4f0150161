package libraries

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/shishobooks/shelfsync/pkg/errcodes"
	"github.com/shishobooks/shelfsync/pkg/models"
	"github.com/uptrace/bun"
)

type RetrieveLibraryOptions struct {
	Key *models.LibraryKey
}

type ListLibrariesOptions struct {
	ServerUUID     *string
	IncludeHidden  bool
	AutoUpdateOnly bool
}

type UpdateLibraryOptions struct {
	Columns []string
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

// CreateLibrary inserts a newly discovered library. Discovering a library
// that already exists is not an error.
func (svc *Service) CreateLibrary(ctx context.Context, library *models.Library) error {
	now := time.Now()
	if library.CreatedAt.IsZero() {
		library.CreatedAt = now
	}
	library.UpdatedAt = library.CreatedAt

	_, err := svc.db.
		NewInsert().
		Model(library).
		On("CONFLICT (server_uuid, name) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

func (svc *Service) RetrieveLibrary(ctx context.Context, opts RetrieveLibraryOptions) (*models.Library, error) {
	library := &models.Library{}

	q := svc.db.
		NewSelect().
		Model(library)

	if opts.Key != nil {
		q = q.
			Where("l.server_uuid = ?", opts.Key.ServerUUID).
			Where("l.name = ?", opts.Key.Name)
	}

	err := q.Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Library")
		}
		return nil, errors.WithStack(err)
	}

	return library, nil
}

func (svc *Service) ListLibraries(ctx context.Context, opts ListLibrariesOptions) ([]*models.Library, error) {
	libraries := []*models.Library{}

	q := svc.db.
		NewSelect().
		Model(&libraries).
		Order("l.server_uuid ASC", "l.name ASC")

	if opts.ServerUUID != nil {
		q = q.Where("l.server_uuid = ?", *opts.ServerUUID)
	}
	if !opts.IncludeHidden {
		q = q.Where("l.hidden = ?", false)
	}
	if opts.AutoUpdateOnly {
		q = q.Where("l.auto_update = ?", true)
	}

	err := q.Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return libraries, nil
}

func (svc *Service) UpdateLibrary(ctx context.Context, library *models.Library, opts UpdateLibraryOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	library.UpdatedAt = time.Now()
	columns := append(append([]string{}, opts.Columns...), "updated_at")

	_, err := svc.db.
		NewUpdate().
		Model(library).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// AdvanceWatermark moves the library's last-modified watermark forward. It
// never moves it backwards.
func (svc *Service) AdvanceWatermark(ctx context.Context, key models.LibraryKey, watermark time.Time) error {
	return svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		library := &models.Library{}
		err := tx.NewSelect().
			Model(library).
			Where("l.server_uuid = ?", key.ServerUUID).
			Where("l.name = ?", key.Name).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errcodes.NotFound("Library")
			}
			return errors.WithStack(err)
		}
		if !watermark.After(library.LastModified) {
			return nil
		}
		library.LastModified = watermark
		library.UpdatedAt = time.Now()
		_, err = tx.NewUpdate().
			Model(library).
			Column("last_modified", "updated_at").
			WherePK().
			Exec(ctx)
		return errors.WithStack(err)
	})
}

func (svc *Service) SetCustomColumns(ctx context.Context, key models.LibraryKey, columns models.CustomColumns) error {
	library := &models.Library{
		ServerUUID:    key.ServerUUID,
		Name:          key.Name,
		CustomColumns: columns,
	}
	return errors.WithStack(svc.UpdateLibrary(ctx, library, UpdateLibraryOptions{Columns: []string{"custom_columns"}}))
}

// MarkSynced records when a successful sync finished and clears any earlier
// sync error.
func (svc *Service) MarkSynced(ctx context.Context, key models.LibraryKey, at time.Time) error {
	library := &models.Library{
		ServerUUID: key.ServerUUID,
		Name:       key.Name,
		LastSynced: &at,
	}
	return errors.WithStack(svc.UpdateLibrary(ctx, library, UpdateLibraryOptions{Columns: []string{"last_sync_error", "last_synced"}}))
}

// SetSyncError records the outcome of the latest sync. A nil message clears
// the error.
func (svc *Service) SetSyncError(ctx context.Context, key models.LibraryKey, message *string) error {
	library := &models.Library{
		ServerUUID:    key.ServerUUID,
		Name:          key.Name,
		LastSyncError: message,
	}
	return errors.WithStack(svc.UpdateLibrary(ctx, library, UpdateLibraryOptions{Columns: []string{"last_sync_error"}}))
}
