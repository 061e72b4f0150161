package worker

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/shishobooks/shelfsync/internal/testgen"
	"github.com/shishobooks/shelfsync/pkg/catalogsync"
	"github.com/shishobooks/shelfsync/pkg/config"
	"github.com/shishobooks/shelfsync/pkg/jobs"
	"github.com/shishobooks/shelfsync/pkg/libraries"
	"github.com/shishobooks/shelfsync/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncCall struct {
	key         models.LibraryKey
	incremental bool
}

type fakeSyncer struct {
	mu    sync.Mutex
	calls []syncCall
	err   error
}

func (f *fakeSyncer) Sync(_ context.Context, key models.LibraryKey, incremental bool) (*catalogsync.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, syncCall{key, incremental})
	if f.err != nil {
		return nil, f.err
	}
	return &catalogsync.Result{Incremental: incremental}, nil
}

type testContext struct {
	ctx            context.Context
	worker         *Worker
	syncer         *fakeSyncer
	jobService     *jobs.Service
	libraryService *libraries.Service
}

func newTestContext(t *testing.T) *testContext {
	t.Helper()
	db := testgen.DB(t)

	cfg := config.NewForTest()
	cfg.WorkerProcesses = 1

	tc := &testContext{
		ctx:            logger.New().WithContext(context.Background()),
		syncer:         &fakeSyncer{},
		jobService:     jobs.NewService(db),
		libraryService: libraries.NewService(db),
	}
	tc.worker = New(cfg, tc.jobService, tc.libraryService, tc.syncer)

	for _, lib := range []struct {
		name       string
		autoUpdate bool
		hidden     bool
	}{
		{"Main", true, false},
		{"Manual", false, false},
		{"Hidden", true, true},
		{"Second", true, false},
	} {
		key := models.LibraryKey{ServerUUID: "srv", Name: lib.name}
		library := testgen.Library(t, db, key)
		library.AutoUpdate = lib.autoUpdate
		library.Hidden = lib.hidden
		err := tc.libraryService.UpdateLibrary(tc.ctx, library, libraries.UpdateLibraryOptions{
			Columns: []string{"auto_update", "hidden"},
		})
		require.NoError(t, err)
	}
	return tc
}

func TestScheduleSyncs(t *testing.T) {
	t.Parallel()
	tc := newTestContext(t)

	created, err := tc.worker.scheduleSyncs(tc.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, created)

	pending, err := tc.jobService.ListJobs(tc.ctx, jobs.ListJobsOptions{Statuses: []string{models.JobStatusPending}})
	require.NoError(t, err)
	require.Len(t, pending, 2)
	names := []string{*pending[0].LibraryName, *pending[1].LibraryName}
	assert.ElementsMatch(t, []string{"Main", "Second"}, names)
	data, ok := pending[0].DataParsed.(*models.JobSyncData)
	require.True(t, ok)
	assert.True(t, data.Incremental)

	// Libraries that still have a queued job are skipped.
	created, err = tc.worker.scheduleSyncs(tc.ctx)
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestProcess(t *testing.T) {
	t.Parallel()
	tc := newTestContext(t)
	key := models.LibraryKey{ServerUUID: "srv", Name: "Main"}

	job, _, err := tc.jobService.EnqueueSync(tc.ctx, key, false)
	require.NoError(t, err)

	tc.worker.process(job)

	done, err := tc.jobService.RetrieveJob(tc.ctx, jobs.RetrieveJobOptions{ID: &job.ID})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, done.Status)
	assert.Equal(t, 100, done.Progress)
	require.NotNil(t, done.ProcessID)
	assert.Equal(t, processID, *done.ProcessID)

	require.Len(t, tc.syncer.calls, 1)
	assert.Equal(t, syncCall{key, false}, tc.syncer.calls[0])
}

func TestProcess_RecordsFailure(t *testing.T) {
	t.Parallel()
	tc := newTestContext(t)
	tc.syncer.err = errors.New("catalog unreachable")

	job, _, err := tc.jobService.EnqueueSync(tc.ctx, models.LibraryKey{ServerUUID: "srv", Name: "Main"}, true)
	require.NoError(t, err)

	tc.worker.process(job)

	failed, err := tc.jobService.RetrieveJob(tc.ctx, jobs.RetrieveJobOptions{ID: &job.ID})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, failed.Status)
	require.NotNil(t, failed.Error)
	assert.Contains(t, *failed.Error, "catalog unreachable")

	// A failed job no longer blocks the next scheduled sync.
	created, err := tc.worker.scheduleSyncs(tc.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, created)
}

func TestProcessSyncJob_RequiresLibrary(t *testing.T) {
	t.Parallel()
	tc := newTestContext(t)

	err := tc.worker.ProcessSyncJob(tc.ctx, &models.Job{Type: models.JobTypeSync, DataParsed: &models.JobSyncData{}})
	assert.Error(t, err)
	assert.Empty(t, tc.syncer.calls)
}

func TestStartAndShutdown(t *testing.T) {
	t.Parallel()
	tc := newTestContext(t)

	main := models.LibraryKey{ServerUUID: "srv", Name: "Main"}
	abandoned, _, err := tc.jobService.EnqueueSync(tc.ctx, main, false)
	require.NoError(t, err)
	abandoned.Status = models.JobStatusInProgress
	abandoned.ProcessID = pointerutil.String("gone")
	require.NoError(t, tc.jobService.UpdateJob(tc.ctx, abandoned, jobs.UpdateJobOptions{Columns: []string{"status", "process_id"}}))

	require.NoError(t, tc.worker.Start())
	assert.Len(t, tc.worker.cron.Entries(), 1)
	tc.worker.Shutdown()

	got, err := tc.jobService.RetrieveJob(tc.ctx, jobs.RetrieveJobOptions{ID: &abandoned.ID})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
}
