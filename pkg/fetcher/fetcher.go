package fetcher

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/shelfsync/pkg/annotations"
	"github.com/shishobooks/shelfsync/pkg/books"
	"github.com/shishobooks/shelfsync/pkg/catalog"
	"github.com/shishobooks/shelfsync/pkg/libraries"
	"github.com/shishobooks/shelfsync/pkg/models"
)

type Config struct {
	// BatchSize caps the ids sent in one metadata request.
	BatchSize int
	// RetryBatches is how many batches the ids that failed in one round are
	// split into for the next round.
	RetryBatches int
	// MaxRounds bounds the retry rounds of a single Fetch call. Ids still
	// failing afterwards are recorded as persistent fetch errors.
	MaxRounds int
}

type Options struct {
	Annotations bool
}

type Result struct {
	Updated []int
	Deleted []int
	// Failed ids were recorded as persistent fetch errors.
	Failed []int
	// Skipped ids were already being fetched by another call.
	Skipped []int
	// Pending counts incoming annotation entries that lost to newer local
	// records.
	Pending int
	// Pushed counts formats whose local annotation changes were written
	// back.
	Pushed int
}

type Worker struct {
	client      catalog.Client
	books       *books.Service
	libraries   *libraries.Service
	annotations *annotations.Service
	cfg         Config

	mu       sync.Mutex
	inflight map[models.LibraryKey]map[int]struct{}
}

func New(client catalog.Client, bookService *books.Service, libraryService *libraries.Service, annotationService *annotations.Service, cfg Config) *Worker {
	if cfg.RetryBatches <= 0 {
		cfg.RetryBatches = 16
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 8
	}
	return &Worker{
		client:      client,
		books:       bookService,
		libraries:   libraryService,
		annotations: annotationService,
		cfg:         cfg,
		inflight:    map[models.LibraryKey]map[int]struct{}{},
	}
}

// InFlight returns the ids of the library currently being fetched, sorted.
func (w *Worker) InFlight(key models.LibraryKey) []int {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]int, 0, len(w.inflight[key]))
	for id := range w.inflight[key] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// claim marks ids as in flight and returns those that were not already.
func (w *Worker) claim(key models.LibraryKey, ids []int) (claimed, skipped []int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	set, ok := w.inflight[key]
	if !ok {
		set = map[int]struct{}{}
		w.inflight[key] = set
	}
	for _, id := range ids {
		if _, busy := set[id]; busy {
			skipped = append(skipped, id)
			continue
		}
		set[id] = struct{}{}
		claimed = append(claimed, id)
	}
	return claimed, skipped
}

func (w *Worker) release(key models.LibraryKey, ids []int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	set := w.inflight[key]
	for _, id := range ids {
		delete(set, id)
	}
	if len(set) == 0 {
		delete(w.inflight, key)
	}
}

// FetchRecords fetches metadata only. It lets the search service fill
// records it needs for a page.
func (w *Worker) FetchRecords(ctx context.Context, key models.LibraryKey, ids []int) error {
	_, err := w.Fetch(ctx, key, ids, Options{})
	return errors.WithStack(err)
}

// Fetch pulls metadata, and optionally annotations, for ids and persists
// them. Ids whose batch fails are retried in smaller batches each round so
// that a single bad id ends up alone in a batch of one, where a failure is
// recorded as a persistent fetch error. The returned error is only set for
// failures that affect the whole call.
func (w *Worker) Fetch(ctx context.Context, key models.LibraryKey, ids []int, opts Options) (*Result, error) {
	log := logger.FromContext(ctx).Data(logger.Data{"library": key.String()})
	result := &Result{}

	library, err := w.libraries.RetrieveLibrary(ctx, libraries.RetrieveLibraryOptions{Key: &key})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	claimed, skipped := w.claim(key, dedupe(ids))
	result.Skipped = skipped
	if len(claimed) == 0 {
		return result, nil
	}
	defer w.release(key, claimed)

	b := &batcher{
		worker:      w,
		key:         key,
		result:      result,
		annotations: opts.Annotations && libraries.ReadingPositionEnabled(library),
	}
	if cp, ok := libraries.ResolveCapabilities(library)[libraries.PluginCountPages].(libraries.CountPages); ok && cp.IsEnabled() {
		b.pagesColumn = cp.PagesColumn
	}

	pending := claimed
	size := len(pending)
	if w.cfg.BatchSize > 0 {
		size = min(size, w.cfg.BatchSize)
	}

	for round := 0; len(pending) > 0; round++ {
		if err := ctx.Err(); err != nil {
			return result, errors.WithStack(err)
		}
		if round >= w.cfg.MaxRounds {
			log.Warn("giving up on ids after retry rounds", logger.Data{"count": len(pending), "rounds": round})
			if err := w.fail(ctx, key, pending, "fetch retries exhausted", result); err != nil {
				return result, errors.WithStack(err)
			}
			break
		}

		retry := []int{}
		for start := 0; start < len(pending); start += size {
			batch := pending[start:min(start+size, len(pending))]
			missed, err := b.fetch(ctx, batch)
			if err != nil {
				log.Err(err).Warn("metadata batch failed", logger.Data{"size": len(batch), "round": round})
				missed = batch
			}
			if len(missed) == 0 {
				continue
			}
			if len(batch) == 1 {
				msg := "book missing from metadata response"
				if err != nil {
					msg = err.Error()
				}
				if err := w.fail(ctx, key, missed, msg, result); err != nil {
					return result, errors.WithStack(err)
				}
				continue
			}
			retry = append(retry, missed...)
		}

		pending = retry
		size = max(1, (len(retry)+w.cfg.RetryBatches-1)/w.cfg.RetryBatches)
	}

	log.Debug("fetched books", logger.Data{
		"updated": len(result.Updated),
		"deleted": len(result.Deleted),
		"failed":  len(result.Failed),
		"skipped": len(result.Skipped),
	})
	return result, nil
}

func (w *Worker) fail(ctx context.Context, key models.LibraryKey, ids []int, message string, result *Result) error {
	if err := w.books.RecordFetchErrors(ctx, key, ids, message); err != nil {
		return errors.WithStack(err)
	}
	result.Failed = append(result.Failed, ids...)
	return nil
}

func dedupe(ids []int) []int {
	seen := make(map[int]struct{}, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
