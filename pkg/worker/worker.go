package worker

import (
	"context"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/shishobooks/shelfsync/pkg/catalogsync"
	"github.com/shishobooks/shelfsync/pkg/config"
	"github.com/shishobooks/shelfsync/pkg/database"
	"github.com/shishobooks/shelfsync/pkg/jobs"
	"github.com/shishobooks/shelfsync/pkg/libraries"
	"github.com/shishobooks/shelfsync/pkg/models"
)

var processID = randStringBytes(8)

// Syncer runs one sync pass for a library.
type Syncer interface {
	Sync(ctx context.Context, key models.LibraryKey, incremental bool) (*catalogsync.Result, error)
}

type Worker struct {
	config *config.Config
	log    logger.Logger

	processFuncs map[string]func(ctx context.Context, job *models.Job) error

	jobService     *jobs.Service
	libraryService *libraries.Service
	syncer         Syncer

	cron           *cron.Cron
	pollInterval   time.Duration
	queue          chan *models.Job
	shutdown       chan struct{}
	doneFetching   chan struct{}
	doneProcessing chan struct{}
}

func New(cfg *config.Config, jobService *jobs.Service, libraryService *libraries.Service, syncer Syncer) *Worker {
	w := &Worker{
		config: cfg,
		log:    logger.New(),

		jobService:     jobService,
		libraryService: libraryService,
		syncer:         syncer,

		cron:           cron.New(),
		pollInterval:   5 * time.Second,
		queue:          make(chan *models.Job, cfg.WorkerProcesses),
		shutdown:       make(chan struct{}),
		doneFetching:   make(chan struct{}),
		doneProcessing: make(chan struct{}, cfg.WorkerProcesses),
	}

	w.processFuncs = map[string]func(ctx context.Context, job *models.Job) error{
		models.JobTypeSync: w.ProcessSyncJob,
	}

	return w
}

func (w *Worker) Start() error {
	n, err := w.jobService.FailAbandoned(context.Background(), processID)
	if err != nil {
		return errors.WithStack(err)
	}
	if n > 0 {
		w.log.Warn("failed jobs abandoned by a previous process", logger.Data{"count": n})
	}
	if err := w.startScheduler(); err != nil {
		return err
	}
	go w.fetchJobs()
	for i := 0; i < w.config.WorkerProcesses; i++ {
		go w.processJobs()
	}
	return nil
}

func (w *Worker) fetchJobs() {
	timer := time.NewTimer(w.pollInterval)

	for {
		select {
		case <-w.shutdown:
			// We're shutting down, so stop adding more jobs to the queue.
			timer.Stop()
			w.doneFetching <- struct{}{}
			return
		case <-timer.C:
			j, err := w.jobService.ListJobs(context.Background(), jobs.ListJobsOptions{
				Limit:              pointerutil.Int(w.config.WorkerProcesses),
				Statuses:           []string{models.JobStatusPending},
				ProcessIDToExclude: &processID,
			})
			if err != nil {
				w.log.Err(err).Error("list jobs error")
				timer.Reset(w.pollInterval)
				continue
			}
			for _, job := range j {
				select {
				case w.queue <- job:
				case <-w.shutdown:
					timer.Stop()
					w.doneFetching <- struct{}{}
					return
				}
			}
			timer.Reset(w.pollInterval)
		}
	}
}

func (w *Worker) processJobs() {
	for {
		select {
		case <-w.shutdown:
			w.doneProcessing <- struct{}{}
			return
		case job := <-w.queue:
			w.process(job)
		}
	}
}

func (w *Worker) process(job *models.Job) {
	// Prep the context to be passed down to the process function.
	id, err := uuid.NewRandom()
	if err != nil {
		w.log.Err(err).Error("new uuid error")
		return
	}
	log := w.log.ID(id.String()).Root(logger.Data{"job_id": job.ID, "type": job.Type, "process_id": processID})
	ctx := database.WithLogging(log.WithContext(context.Background()))

	// Update job to be in progress and claimed by this process.
	job.Status = models.JobStatusInProgress
	job.ProcessID = &processID

	err = w.jobService.UpdateJob(ctx, job, jobs.UpdateJobOptions{
		Columns: []string{"status", "process_id"},
	})
	if err != nil {
		log.Err(err).Error("update job error")
		return
	}

	// Find and invoke the appropriate process function.
	job.Status = models.JobStatusCompleted
	fn, ok := w.processFuncs[job.Type]
	if !ok {
		log.Error("can't find process function for type")
		msg := "unknown job type"
		job.Status = models.JobStatusFailed
		job.Error = &msg
	} else if err := fn(ctx, job); err != nil {
		log.Err(err).Error("process error")
		msg := err.Error()
		job.Status = models.JobStatusFailed
		job.Error = &msg
	}

	// Record the outcome so that it's not picked up anymore.
	err = w.jobService.UpdateJob(ctx, job, jobs.UpdateJobOptions{
		Columns: []string{"status", "error", "progress"},
	})
	if err != nil {
		log.Err(err).Error("update job error")
	}
}

func (w *Worker) Shutdown() {
	stopped := w.cron.Stop()
	<-stopped.Done()

	close(w.shutdown)

	<-w.doneFetching
	for i := 0; i < w.config.WorkerProcesses; i++ {
		<-w.doneProcessing
	}
}

const letterBytes = "abcdef0123456789"

func randStringBytes(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = letterBytes[rand.Intn(len(letterBytes))]
	}
	return string(b)
}
