package search

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/shelfsync/pkg/books"
	"github.com/shishobooks/shelfsync/pkg/catalog"
	"github.com/shishobooks/shelfsync/pkg/models"
)

const (
	// maxPasses bounds how often one query re-merges after a source was
	// flagged mid-merge.
	maxPasses = 2
	// maxResets bounds total-count conflicts handled in one id fetch.
	maxResets = 3
	// minSearchPage is the smallest page requested from the catalog.
	minSearchPage = 50
)

// ErrSuperseded is returned to a query that a newer query for the same view
// replaced. Its results were dropped.
var ErrSuperseded = errors.New("search: superseded by a newer query")

// RecordFetcher fills the store with records the merge needs but that have
// never been synced.
type RecordFetcher interface {
	FetchRecords(ctx context.Context, key models.LibraryKey, ids []int) error
}

type QueryOptions struct {
	Libraries []models.LibraryKey
	Criteria  Criteria
	Page      int
	PageSize  int
}

type call struct {
	cancel context.CancelFunc
}

type Service struct {
	catalog catalog.Client
	books   *books.Service
	fetcher RecordFetcher
	cache   *Cache

	mu       sync.Mutex
	inflight map[viewKey]*call
}

func NewService(client catalog.Client, bookService *books.Service, fetcher RecordFetcher) *Service {
	return &Service{
		catalog:  client,
		books:    bookService,
		fetcher:  fetcher,
		cache:    NewCache(),
		inflight: map[viewKey]*call{},
	}
}

// InvalidateLibrary drops every cached view containing the library. Called
// after a sync changes it.
func (svc *Service) InvalidateLibrary(key models.LibraryKey) {
	svc.cache.InvalidateLibrary(key)
}

// begin registers ctx as the current query for view, cancelling whichever
// query held that spot before.
func (svc *Service) begin(ctx context.Context, view viewKey) (context.Context, *call, func()) {
	ctx, cancel := context.WithCancel(ctx)
	c := &call{cancel: cancel}

	svc.mu.Lock()
	if prev, ok := svc.inflight[view]; ok {
		prev.cancel()
	}
	svc.inflight[view] = c
	svc.mu.Unlock()

	return ctx, c, func() {
		cancel()
		svc.mu.Lock()
		if svc.inflight[view] == c {
			delete(svc.inflight, view)
		}
		svc.mu.Unlock()
	}
}

func (svc *Service) superseded(view viewKey, c *call) bool {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.inflight[view] != c
}

// Query returns one page of the merged, sorted view over the given
// libraries.
func (svc *Service) Query(ctx context.Context, opts QueryOptions) ([]models.BookKey, error) {
	if len(opts.Libraries) == 0 || opts.PageSize <= 0 || opts.Page < 0 {
		return []models.BookKey{}, nil
	}
	log := logger.FromContext(ctx)

	libraries := append([]models.LibraryKey{}, opts.Libraries...)
	sort.Slice(libraries, func(i, j int) bool { return libraries[i].String() < libraries[j].String() })

	view := newViewKey(libraries, opts.Criteria)
	ctx, c, done := svc.begin(ctx, view)
	defer done()

	lock := svc.cache.viewLock(view)
	lock.Lock()
	defer lock.Unlock()

	sources := make([]*Source, 0, len(libraries))
	for _, l := range libraries {
		sources = append(sources, &Source{Library: l, Result: svc.cache.get(view, l)})
	}

	var keys []models.BookKey
	for pass := 0; pass < maxPasses; pass++ {
		if svc.superseded(view, c) {
			return nil, ErrSuperseded
		}

		for _, src := range sources {
			src.Result.discardStale()
		}
		startPage, cursors := ResumePoint(sources, opts.Page)
		window := (opts.Page - startPage + 1) * opts.PageSize
		for i, src := range sources {
			svc.ensureIDs(ctx, src, opts.Criteria, cursors[i]+window)
		}

		// Fetching ids can reset a source, which moves the resume point.
		startPage, cursors = ResumePoint(sources, opts.Page)
		window = (opts.Page - startPage + 1) * opts.PageSize
		records, err := svc.loadWindow(ctx, sources, cursors, window)
		if svc.superseded(view, c) {
			return nil, ErrSuperseded
		}
		if err != nil {
			return nil, errors.WithStack(err)
		}

		keys = Merge(sources, opts.Criteria.Sort, opts.Page, opts.PageSize, func(l models.LibraryKey, id int) (*models.Book, bool) {
			b, ok := records[l][id]
			return b, ok
		})

		flagged := false
		for _, src := range sources {
			if src.Result.Error {
				flagged = true
				log.Debug("library flagged during merge", logger.Data{
					"library": src.Library.String(),
					"offset":  src.Result.ErrorOffset,
					"pass":    pass,
				})
			}
		}
		if !flagged {
			return keys, nil
		}
	}

	log.Warn("query returned a partial page", logger.Data{"view": string(view), "page": opts.Page})
	return keys, nil
}

// ensureIDs pages the catalog search until the result knows at least need
// ids or has all of them. Failures flag the result instead of failing the
// query.
func (svc *Service) ensureIDs(ctx context.Context, src *Source, criteria Criteria, need int) {
	log := logger.FromContext(ctx)
	r := src.Result
	resets := 0

	for {
		if r.known() && (len(r.BookIDs) >= need || len(r.BookIDs) >= r.TotalNumber) {
			return
		}
		offset := len(r.BookIDs)
		page, err := svc.catalog.Search(ctx, src.Library, catalog.SearchRequest{
			Query:     criteria.Query,
			Sort:      string(criteria.Sort.Criterion),
			SortOrder: criteria.Sort.Order(),
			Offset:    offset,
			Num:       max(need-offset, minSearchPage),
		})
		if err != nil {
			log.Err(err).Warn("catalog search failed", logger.Data{"library": src.Library.String(), "offset": offset})
			r.MarkError(offset)
			return
		}

		conflict := r.known() && page.TotalNum != r.TotalNumber
		if !conflict {
			conflict = overlaps(r.BookIDs, page.BookIDs)
		}
		if conflict {
			resets++
			log.Info("search result changed on the server, starting over", logger.Data{
				"library": src.Library.String(),
				"total":   page.TotalNum,
				"resets":  resets,
			})
			if resets > maxResets {
				r.MarkError(0)
				return
			}
			r.reset(page.TotalNum)
			continue
		}

		if !r.known() {
			r.TotalNumber = page.TotalNum
		}
		if len(page.BookIDs) == 0 {
			// The server claimed more than it has.
			r.TotalNumber = len(r.BookIDs)
			return
		}
		r.BookIDs = append(r.BookIDs, page.BookIDs...)
	}
}

func overlaps(have, page []int) bool {
	if len(have) == 0 || len(page) == 0 {
		return false
	}
	seen := make(map[int]struct{}, len(have))
	for _, id := range have {
		seen[id] = struct{}{}
	}
	for _, id := range page {
		if _, ok := seen[id]; ok {
			return true
		}
	}
	return false
}

// loadWindow reads the records each source may contribute to the requested
// page, asking the fetcher for any that were never synced.
func (svc *Service) loadWindow(ctx context.Context, sources []*Source, cursors []int, window int) (map[models.LibraryKey]map[int]*models.Book, error) {
	log := logger.FromContext(ctx)
	out := make(map[models.LibraryKey]map[int]*models.Book, len(sources))

	for i, src := range sources {
		ids := src.Result.BookIDs
		from := min(cursors[i], len(ids))
		to := min(cursors[i]+window, len(ids))
		want := ids[from:to]

		loaded, err := svc.books.LoadBooks(ctx, src.Library, want)
		if err != nil {
			return nil, errors.WithStack(err)
		}

		missing := []int{}
		for _, id := range want {
			if _, ok := loaded[id]; !ok {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 && svc.fetcher != nil {
			if err := svc.fetcher.FetchRecords(ctx, src.Library, missing); err != nil {
				log.Err(err).Warn("fetching missing records failed", logger.Data{"library": src.Library.String(), "count": len(missing)})
			}
			more, err := svc.books.LoadBooks(ctx, src.Library, missing)
			if err != nil {
				return nil, errors.WithStack(err)
			}
			for id, b := range more {
				loaded[id] = b
			}
		}
		out[src.Library] = loaded
	}

	return out, nil
}
