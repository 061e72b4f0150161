package worker

import (
	"context"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/shelfsync/pkg/models"
)

func (w *Worker) ProcessSyncJob(ctx context.Context, job *models.Job) error {
	log := logger.FromContext(ctx)

	if job.ServerUUID == nil || job.LibraryName == nil {
		return errors.New("sync job has no library")
	}
	key := models.LibraryKey{ServerUUID: *job.ServerUUID, Name: *job.LibraryName}

	data, ok := job.DataParsed.(*models.JobSyncData)
	if !ok {
		return errors.Errorf("unexpected sync job data %T", job.DataParsed)
	}

	result, err := w.syncer.Sync(ctx, key, data.Incremental)
	if err != nil {
		return errors.WithStack(err)
	}
	if result.AlreadySyncing {
		log.Info("library already syncing", logger.Data{"library": key.String()})
		return nil
	}

	job.Progress = 100
	return nil
}
