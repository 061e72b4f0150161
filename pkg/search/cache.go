package search

import (
	"sort"
	"strings"
	"sync"

	"github.com/shishobooks/shelfsync/pkg/models"
)

// SearchResult is the paging state of one library under one criteria key.
type SearchResult struct {
	// TotalNumber is the count the server reported; -1 until the first
	// page has been fetched.
	TotalNumber int
	// BookIDs only grows, in server sort order, until a conflict resets it.
	BookIDs []int
	// PageOffset maps a logical page to the number of this library's ids
	// consumed before that page.
	PageOffset map[int]int
	// Error marks everything at or past ErrorOffset as stale.
	Error       bool
	ErrorOffset int
}

func NewSearchResult() *SearchResult {
	return &SearchResult{TotalNumber: -1, PageOffset: map[int]int{}}
}

func (r *SearchResult) known() bool {
	return r.TotalNumber >= 0
}

// MarkError flags the result stale from offset on, keeping the lowest
// offset seen.
func (r *SearchResult) MarkError(offset int) {
	if !r.Error || offset < r.ErrorOffset {
		r.ErrorOffset = offset
	}
	r.Error = true
}

// discardStale drops ids and checkpoints at or beyond ErrorOffset and
// clears the flag.
func (r *SearchResult) discardStale() {
	if !r.Error {
		return
	}
	if r.ErrorOffset < len(r.BookIDs) {
		r.BookIDs = r.BookIDs[:r.ErrorOffset]
	}
	for page, off := range r.PageOffset {
		if off > r.ErrorOffset {
			delete(r.PageOffset, page)
		}
	}
	r.Error = false
	r.ErrorOffset = 0
}

// reset forgets everything after the server reported a different total.
func (r *SearchResult) reset(total int) {
	r.TotalNumber = total
	r.BookIDs = nil
	r.PageOffset = map[int]int{}
	r.Error = false
	r.ErrorOffset = 0
}

// Criteria identifies one merged view: the search text, the sort, and the
// set of libraries merged together. Checkpoints depend on every library in
// the view, so the library set is part of the key.
type Criteria struct {
	Query string `json:"query"`
	Sort  Sort   `json:"sort"`
}

type viewKey string

func newViewKey(libraries []models.LibraryKey, c Criteria) viewKey {
	names := make([]string, 0, len(libraries))
	for _, l := range libraries {
		names = append(names, l.String())
	}
	sort.Strings(names)
	return viewKey(c.Sort.String() + "|" + c.Query + "|" + strings.Join(names, ","))
}

type resultKey struct {
	view    viewKey
	library models.LibraryKey
}

// Cache owns every SearchResult. Results are handed out by pointer; the
// query service serializes access per view.
type Cache struct {
	mu      sync.Mutex
	results map[resultKey]*SearchResult
	views   map[viewKey]*sync.Mutex
}

func NewCache() *Cache {
	return &Cache{
		results: map[resultKey]*SearchResult{},
		views:   map[viewKey]*sync.Mutex{},
	}
}

func (c *Cache) get(view viewKey, library models.LibraryKey) *SearchResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := resultKey{view, library}
	r, ok := c.results[k]
	if !ok {
		r = NewSearchResult()
		c.results[k] = r
	}
	return r
}

func (c *Cache) viewLock(view viewKey) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.views[view]
	if !ok {
		m = &sync.Mutex{}
		c.views[view] = m
	}
	return m
}

// InvalidateLibrary discards every result that includes the library.
func (c *Cache) InvalidateLibrary(library models.LibraryKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stale := map[viewKey]bool{}
	for k := range c.results {
		if k.library == library {
			stale[k.view] = true
		}
	}
	for k := range c.results {
		if stale[k.view] {
			delete(c.results, k)
		}
	}
}
