package catalogsync

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/shelfsync/pkg/books"
	"github.com/shishobooks/shelfsync/pkg/catalog"
	"github.com/shishobooks/shelfsync/pkg/fetcher"
	"github.com/shishobooks/shelfsync/pkg/libraries"
	"github.com/shishobooks/shelfsync/pkg/models"
	"golang.org/x/sync/errgroup"
)

const (
	defaultIDBatchSize    = 1024
	defaultFetchBatchSize = 100
)

type Config struct {
	// IDBatchSize caps the id/last-modified entries persisted per
	// transaction.
	IDBatchSize int
	// FetchBatchSize caps the ids handed to the fetch worker per call.
	FetchBatchSize int
}

// Invalidator drops cached query results for a library.
type Invalidator interface {
	InvalidateLibrary(key models.LibraryKey)
}

type Result struct {
	AlreadySyncing bool `json:"already_syncing"`
	Incremental    bool `json:"incremental"`
	// Listed is the number of ids the server reported.
	Listed   int `json:"listed"`
	Inserted int `json:"inserted"`
	Removed  int `json:"removed"`
	Purged   int `json:"purged"`
	Updated  int `json:"updated"`
	Deleted  int `json:"deleted"`
	Failed   int `json:"failed"`
	// Pending counts annotation entries that are waiting to be written back.
	Pending   int       `json:"pending"`
	Watermark time.Time `json:"watermark"`
}

func (r *Result) changed() bool {
	return r.Inserted+r.Removed+r.Purged+r.Updated+r.Deleted > 0
}

type Syncer struct {
	client    catalog.Client
	books     *books.Service
	libraries *libraries.Service
	fetcher   *fetcher.Worker
	cache     Invalidator
	tracker   *Tracker
	cfg       Config

	mu      sync.Mutex
	running map[models.LibraryKey]struct{}
}

func New(client catalog.Client, bookService *books.Service, libraryService *libraries.Service, fetchWorker *fetcher.Worker, cache Invalidator, tracker *Tracker, cfg Config) *Syncer {
	if cfg.IDBatchSize <= 0 {
		cfg.IDBatchSize = defaultIDBatchSize
	}
	if cfg.FetchBatchSize <= 0 {
		cfg.FetchBatchSize = defaultFetchBatchSize
	}
	if tracker == nil {
		tracker = NewTracker()
	}
	return &Syncer{
		client:    client,
		books:     bookService,
		libraries: libraryService,
		fetcher:   fetchWorker,
		cache:     cache,
		tracker:   tracker,
		cfg:       cfg,
		running:   map[models.LibraryKey]struct{}{},
	}
}

func (s *Syncer) Tracker() *Tracker {
	return s.tracker
}

func (s *Syncer) acquire(key models.LibraryKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.running[key]; ok {
		return false
	}
	s.running[key] = struct{}{}
	return true
}

func (s *Syncer) releaseKey(key models.LibraryKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, key)
}

// Sync brings the library's local book set up to date with the server. A
// call for a library that is already syncing returns immediately with
// AlreadySyncing set.
func (s *Syncer) Sync(ctx context.Context, key models.LibraryKey, incremental bool) (*Result, error) {
	if !s.acquire(key) {
		return &Result{AlreadySyncing: true, Incremental: incremental}, nil
	}
	defer s.releaseKey(key)

	log := logger.FromContext(ctx).Data(logger.Data{"library": key.String(), "incremental": incremental})
	ctx = log.WithContext(ctx)

	s.tracker.set(key, StateSyncing, "")
	log.Info("sync started")
	start := time.Now()

	result, err := s.run(ctx, key, incremental)
	if err != nil {
		msg := err.Error()
		s.tracker.set(key, StateError, msg)
		if serr := s.libraries.SetSyncError(context.WithoutCancel(ctx), key, &msg); serr != nil {
			log.Err(serr).Warn("failed to record sync error")
		}
		log.Err(err).Error("sync failed")
		return nil, errors.WithStack(err)
	}

	s.tracker.set(key, StateSuccess, "")
	if err := s.libraries.MarkSynced(ctx, key, time.Now()); err != nil {
		log.Err(err).Warn("failed to record sync completion")
	}
	if result.changed() && s.cache != nil {
		s.cache.InvalidateLibrary(key)
	}

	log.Info("sync finished", logger.Data{
		"listed":   result.Listed,
		"inserted": result.Inserted,
		"removed":  result.Removed,
		"updated":  result.Updated,
		"deleted":  result.Deleted,
		"failed":   result.Failed,
		"purged":   result.Purged,
		"duration": time.Since(start).String(),
	})
	return result, nil
}

func (s *Syncer) run(ctx context.Context, key models.LibraryKey, incremental bool) (*Result, error) {
	log := logger.FromContext(ctx)
	result := &Result{Incremental: incremental}

	library, err := s.libraries.RetrieveLibrary(ctx, libraries.RetrieveLibraryOptions{Key: &key})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	// Custom columns drive the plugin capabilities the fetch step uses.
	columns, err := s.client.CustomColumns(ctx, key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch custom columns")
	}
	if err := s.libraries.SetCustomColumns(ctx, key, columns); err != nil {
		return nil, errors.WithStack(err)
	}

	if !incremental {
		if err := s.books.ClearFetchErrors(ctx, key); err != nil {
			return nil, errors.WithStack(err)
		}
	}

	var since *time.Time
	if incremental && !library.LastModified.IsZero() {
		since = &library.LastModified
	}
	entries, err := s.client.IDList(ctx, key, since)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch id list")
	}
	result.Listed = len(entries)
	for _, modified := range entries {
		if modified.After(result.Watermark) {
			result.Watermark = modified
		}
	}

	inserted, err := s.persist(ctx, key, entries)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	result.Inserted = inserted

	if !incremental {
		removed, err := s.removeMissing(ctx, key, entries)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		result.Removed = removed
	}

	if !result.Watermark.IsZero() {
		if err := s.libraries.AdvanceWatermark(ctx, key, result.Watermark); err != nil {
			return nil, errors.WithStack(err)
		}
	}

	if err := s.update(ctx, key, result); err != nil {
		return nil, errors.WithStack(err)
	}

	if !incremental {
		purged, err := s.books.PurgeRemoved(ctx, key, library.LastSynced)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		result.Purged = purged
	}

	log.Debug("sync pass complete", logger.Data{"watermark": result.Watermark})
	return result, nil
}

// persist writes the id list in bounded batches. Batches are cut by one
// goroutine and stored by another so the next batch is ready as soon as a
// transaction commits.
func (s *Syncer) persist(ctx context.Context, key models.LibraryKey, entries map[int]time.Time) (int, error) {
	ids := make([]int, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	g, gctx := errgroup.WithContext(ctx)
	batches := make(chan map[int]time.Time, 2)

	g.Go(func() error {
		defer close(batches)
		for start := 0; start < len(ids); start += s.cfg.IDBatchSize {
			chunk := ids[start:min(start+s.cfg.IDBatchSize, len(ids))]
			batch := make(map[int]time.Time, len(chunk))
			for _, id := range chunk {
				batch[id] = entries[id]
			}
			select {
			case batches <- batch:
			case <-gctx.Done():
				return errors.WithStack(gctx.Err())
			}
		}
		return nil
	})

	inserted := 0
	g.Go(func() error {
		for batch := range batches {
			n, err := s.books.UpsertLastModified(gctx, key, batch)
			if err != nil {
				return errors.WithStack(err)
			}
			inserted += n
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return 0, errors.WithStack(err)
	}
	return inserted, nil
}

// removeMissing logically deletes local books the server no longer lists.
// Shelved books are kept so a partial server response cannot hide them.
func (s *Syncer) removeMissing(ctx context.Context, key models.LibraryKey, entries map[int]time.Time) (int, error) {
	local, err := s.books.LocalIDs(ctx, key)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	missing := []int{}
	for id, state := range local {
		if _, ok := entries[id]; ok || state.InShelf || state.Removed {
			continue
		}
		missing = append(missing, id)
	}
	sort.Ints(missing)
	if err := s.books.MarkRemoved(ctx, key, missing, time.Now()); err != nil {
		return 0, errors.WithStack(err)
	}
	return len(missing), nil
}

// update hands stale books to the fetch worker. Ids another fetch already
// holds are left to it.
func (s *Syncer) update(ctx context.Context, key models.LibraryKey, result *Result) error {
	candidates, err := s.books.UpdateCandidates(ctx, key)
	if err != nil {
		return errors.WithStack(err)
	}
	busy := map[int]struct{}{}
	for _, id := range s.fetcher.InFlight(key) {
		busy[id] = struct{}{}
	}
	ids := make([]int, 0, len(candidates))
	for _, id := range candidates {
		if _, ok := busy[id]; !ok {
			ids = append(ids, id)
		}
	}

	for start := 0; start < len(ids); start += s.cfg.FetchBatchSize {
		chunk := ids[start:min(start+s.cfg.FetchBatchSize, len(ids))]
		res, err := s.fetcher.Fetch(ctx, key, chunk, fetcher.Options{Annotations: true})
		if err != nil {
			return errors.WithStack(err)
		}
		result.Updated += len(res.Updated)
		result.Deleted += len(res.Deleted)
		result.Failed += len(res.Failed)
		result.Pending += res.Pending
	}
	return nil
}
