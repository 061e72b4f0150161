package jobs

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/shishobooks/shelfsync/pkg/errcodes"
	"github.com/shishobooks/shelfsync/pkg/models"
	"github.com/uptrace/bun"
)

type RetrieveJobOptions struct {
	ID *int
}

type ListJobsOptions struct {
	Limit              *int
	Offset             *int
	Statuses           []string
	Type               *string
	Library            *models.LibraryKey
	ProcessIDToExclude *string

	includeTotal bool
}

type UpdateJobOptions struct {
	Columns []string
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

func (svc *Service) CreateJob(ctx context.Context, job *models.Job) error {
	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = job.CreatedAt

	if job.Data == "" && job.DataParsed != nil {
		// Marshal the data into a JSON string to save into the database.
		data, err := json.Marshal(job.DataParsed)
		if err != nil {
			return errors.WithStack(err)
		}
		job.Data = string(data)
	}

	_, err := svc.db.
		NewInsert().
		Model(job).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// EnqueueSync creates a pending sync job for the library unless one is
// already pending or running, in which case that job is returned and
// created is false.
func (svc *Service) EnqueueSync(ctx context.Context, key models.LibraryKey, incremental bool) (job *models.Job, created bool, err error) {
	err = svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		active := []*models.Job{}
		err := tx.NewSelect().
			Model(&active).
			Where("j.type = ?", models.JobTypeSync).
			Where("j.server_uuid = ?", key.ServerUUID).
			Where("j.library_name = ?", key.Name).
			Where("j.status IN (?)", bun.In([]string{models.JobStatusPending, models.JobStatusInProgress})).
			Order("j.created_at ASC").
			Limit(1).
			Scan(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if len(active) > 0 {
			job = active[0]
			return errors.WithStack(job.UnmarshalData())
		}

		data, err := json.Marshal(&models.JobSyncData{Incremental: incremental})
		if err != nil {
			return errors.WithStack(err)
		}
		now := time.Now()
		job = &models.Job{
			CreatedAt:   now,
			UpdatedAt:   now,
			Type:        models.JobTypeSync,
			Status:      models.JobStatusPending,
			Data:        string(data),
			DataParsed:  &models.JobSyncData{Incremental: incremental},
			ServerUUID:  &key.ServerUUID,
			LibraryName: &key.Name,
		}
		if _, err := tx.NewInsert().Model(job).Returning("*").Exec(ctx); err != nil {
			return errors.WithStack(err)
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, errors.WithStack(err)
	}
	return job, created, nil
}

func (svc *Service) RetrieveJob(ctx context.Context, opts RetrieveJobOptions) (*models.Job, error) {
	job := &models.Job{}

	q := svc.db.
		NewSelect().
		Model(job)

	if opts.ID != nil {
		q = q.Where("j.id = ?", *opts.ID)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Job")
		}
		return nil, errors.WithStack(err)
	}

	if job.Data != "" {
		// Unmarshal the data into a struct to be returned.
		err := job.UnmarshalData()
		if err != nil {
			return nil, errors.WithStack(err)
		}
	}

	return job, nil
}

func (svc *Service) ListJobs(ctx context.Context, opts ListJobsOptions) ([]*models.Job, error) {
	j, _, err := svc.listJobsWithTotal(ctx, opts)
	return j, errors.WithStack(err)
}

func (svc *Service) ListJobsWithTotal(ctx context.Context, opts ListJobsOptions) ([]*models.Job, int, error) {
	opts.includeTotal = true
	return svc.listJobsWithTotal(ctx, opts)
}

func (svc *Service) listJobsWithTotal(ctx context.Context, opts ListJobsOptions) ([]*models.Job, int, error) {
	jobs := []*models.Job{}
	var total int
	var err error

	q := svc.db.
		NewSelect().
		Model(&jobs).
		Order("j.created_at ASC", "j.id ASC")

	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}
	if len(opts.Statuses) > 0 {
		q = q.Where("j.status IN (?)", bun.In(opts.Statuses))
	}
	if opts.Type != nil {
		q = q.Where("j.type = ?", *opts.Type)
	}
	if opts.Library != nil {
		q = q.
			Where("j.server_uuid = ?", opts.Library.ServerUUID).
			Where("j.library_name = ?", opts.Library.Name)
	}
	if opts.ProcessIDToExclude != nil {
		q = q.WhereGroup(" AND ", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.
				Where("j.process_id IS NULL").
				WhereOr("j.process_id != ?", *opts.ProcessIDToExclude)
		})
	}

	if opts.includeTotal {
		total, err = q.ScanAndCount(ctx)
	} else {
		err = q.Scan(ctx)
	}
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	for _, job := range jobs {
		err := job.UnmarshalData()
		if err != nil {
			return nil, 0, errors.WithStack(err)
		}
	}

	return jobs, total, nil
}

// HasActiveJob checks if there's a pending or in-progress job of the given
// type, optionally scoped to one library.
func (svc *Service) HasActiveJob(ctx context.Context, jobType string, key *models.LibraryKey) (bool, error) {
	q := svc.db.NewSelect().
		Model((*models.Job)(nil)).
		Where("j.type = ?", jobType).
		Where("j.status IN (?)", bun.In([]string{models.JobStatusPending, models.JobStatusInProgress}))
	if key != nil {
		q = q.
			Where("j.server_uuid = ?", key.ServerUUID).
			Where("j.library_name = ?", key.Name)
	}
	count, err := q.Count(ctx)
	if err != nil {
		return false, errors.WithStack(err)
	}
	return count > 0, nil
}

// FailAbandoned marks in-progress jobs claimed by any process other than
// processID as failed. Those processes are gone, and their rows would
// otherwise block new syncs for the library forever.
func (svc *Service) FailAbandoned(ctx context.Context, processID string) (int, error) {
	res, err := svc.db.NewUpdate().
		Model((*models.Job)(nil)).
		Set("status = ?", models.JobStatusFailed).
		Set("error = ?", "Interrupted by a restart.").
		Set("updated_at = ?", time.Now()).
		Where("status = ?", models.JobStatusInProgress).
		Where("process_id IS NULL OR process_id != ?", processID).
		Exec(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return int(n), nil
}

func (svc *Service) UpdateJob(ctx context.Context, job *models.Job, opts UpdateJobOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	// Update updated_at.
	now := time.Now()
	job.UpdatedAt = now
	columns := append(append([]string{}, opts.Columns...), "updated_at")

	_, err := svc.db.
		NewUpdate().
		Model(job).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errcodes.NotFound("Job")
		}
		return errors.WithStack(err)
	}

	return nil
}
