package worker

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/shelfsync/pkg/libraries"
)

// startScheduler registers the periodic incremental sync. A non-positive
// interval disables it.
func (w *Worker) startScheduler() error {
	if w.config.SyncIntervalMinutes <= 0 {
		w.log.Info("sync scheduler disabled")
		return nil
	}

	spec := fmt.Sprintf("@every %dm", w.config.SyncIntervalMinutes)
	_, err := w.cron.AddFunc(spec, func() {
		ctx := w.log.WithContext(context.Background())
		if _, err := w.scheduleSyncs(ctx); err != nil {
			w.log.Err(err).Error("schedule syncs error")
		}
	})
	if err != nil {
		return errors.Wrapf(err, "invalid sync schedule %q", spec)
	}
	w.cron.Start()
	w.log.Info("sync scheduler started", logger.Data{"interval_minutes": w.config.SyncIntervalMinutes})
	return nil
}

// scheduleSyncs queues an incremental sync for every visible auto-update
// library that has no sync job pending or running. It returns how many
// jobs were created.
func (w *Worker) scheduleSyncs(ctx context.Context) (int, error) {
	log := logger.FromContext(ctx)

	libs, err := w.libraryService.ListLibraries(ctx, libraries.ListLibrariesOptions{
		AutoUpdateOnly: true,
	})
	if err != nil {
		return 0, errors.WithStack(err)
	}

	created := 0
	for _, library := range libs {
		_, ok, err := w.jobService.EnqueueSync(ctx, library.Key(), true)
		if err != nil {
			return created, errors.WithStack(err)
		}
		if ok {
			created++
		}
	}

	if created > 0 {
		log.Info("scheduled syncs", logger.Data{"count": created})
	}
	return created, nil
}
