// Package catalogtest provides an in-memory catalog.Client for tests.
package catalogtest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shishobooks/shelfsync/pkg/catalog"
	"github.com/shishobooks/shelfsync/pkg/models"
)

type Library struct {
	Books       map[int]*catalog.BookMetadata
	Columns     models.CustomColumns
	Annotations map[catalog.AnnotationRef]*catalog.AnnotationPayload
	// HiddenFromMetadata ids are listed by IDList and Search but come back
	// null from Metadata, as if deleted between the two calls.
	HiddenFromMetadata map[int]bool
}

type Push struct {
	Book    models.BookKey
	Format  string
	Payload *catalog.AnnotationPayload
}

// Fake is safe for concurrent use. Hooks run before the default behaviour
// and may return an error to simulate transport failures.
type Fake struct {
	mu        sync.Mutex
	Servers   map[string]*catalog.LibraryInfo
	Libraries map[models.LibraryKey]*Library
	Pushes    []Push

	IDListErr     error
	SearchHook    func(key models.LibraryKey, req catalog.SearchRequest) error
	MetadataHook  func(key models.LibraryKey, ids []int) error
	MetadataCalls [][]int
	IDListCalls   []*time.Time
}

func New() *Fake {
	return &Fake{
		Servers:   map[string]*catalog.LibraryInfo{},
		Libraries: map[models.LibraryKey]*Library{},
	}
}

// AddBook creates the library on first use.
func (f *Fake) AddBook(key models.LibraryKey, id int, md *catalog.BookMetadata) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lib := f.library(key)
	lib.Books[id] = md
}

func (f *Fake) RemoveBook(key models.LibraryKey, id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.library(key).Books, id)
}

func (f *Fake) SetAnnotations(key models.LibraryKey, ref catalog.AnnotationRef, p *catalog.AnnotationPayload) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.library(key).Annotations[ref] = p
}

func (f *Fake) library(key models.LibraryKey) *Library {
	lib, ok := f.Libraries[key]
	if !ok {
		lib = &Library{
			Books:              map[int]*catalog.BookMetadata{},
			Columns:            models.CustomColumns{},
			Annotations:        map[catalog.AnnotationRef]*catalog.AnnotationPayload{},
			HiddenFromMetadata: map[int]bool{},
		}
		f.Libraries[key] = lib
	}
	return lib
}

func (f *Fake) lookup(key models.LibraryKey) (*Library, error) {
	lib, ok := f.Libraries[key]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return lib, nil
}

func (f *Fake) LibraryInfo(_ context.Context, server *models.Server) (*catalog.LibraryInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.Servers[server.UUID]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return info, nil
}

func (f *Fake) CustomColumns(_ context.Context, key models.LibraryKey) (models.CustomColumns, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lib, err := f.lookup(key)
	if err != nil {
		return nil, err
	}
	out := models.CustomColumns{}
	for k, v := range lib.Columns {
		out[k] = v
	}
	return out, nil
}

func (f *Fake) IDList(_ context.Context, key models.LibraryKey, since *time.Time) (map[int]time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.IDListCalls = append(f.IDListCalls, since)
	if f.IDListErr != nil {
		return nil, f.IDListErr
	}
	lib, err := f.lookup(key)
	if err != nil {
		return nil, err
	}
	out := map[int]time.Time{}
	for id, md := range lib.Books {
		if since != nil && md.LastModified.Before(*since) {
			continue
		}
		out[id] = md.LastModified
	}
	return out, nil
}

func (f *Fake) Search(_ context.Context, key models.LibraryKey, req catalog.SearchRequest) (*catalog.SearchPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SearchHook != nil {
		if err := f.SearchHook(key, req); err != nil {
			return nil, err
		}
	}
	lib, err := f.lookup(key)
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(lib.Books))
	for id, md := range lib.Books {
		if req.Query != "" && !strings.Contains(strings.ToLower(md.Title), strings.ToLower(req.Query)) {
			continue
		}
		ids = append(ids, id)
	}
	desc := req.SortOrder == "desc"
	sort.SliceStable(ids, func(i, j int) bool {
		c := compareField(lib.Books[ids[i]], lib.Books[ids[j]], req.Sort)
		if c != 0 {
			if desc {
				return c > 0
			}
			return c < 0
		}
		return ids[i] < ids[j]
	})
	page := &catalog.SearchPage{TotalNum: len(ids), Offset: req.Offset}
	if req.Offset < len(ids) {
		end := min(req.Offset+req.Num, len(ids))
		page.BookIDs = ids[req.Offset:end]
	}
	page.Num = len(page.BookIDs)
	return page, nil
}

func compareField(a, b *catalog.BookMetadata, field string) int {
	switch field {
	case "title":
		return strings.Compare(strings.ToLower(a.TitleSort), strings.ToLower(b.TitleSort))
	case "timestamp":
		return compareTimes(a.Timestamp, b.Timestamp)
	case "pubdate":
		return compareTimes(a.PubDate, b.PubDate)
	case "series_index":
		switch {
		case a.SeriesIndex == nil && b.SeriesIndex == nil:
			return 0
		case a.SeriesIndex == nil:
			return -1
		case b.SeriesIndex == nil:
			return 1
		case *a.SeriesIndex < *b.SeriesIndex:
			return -1
		case *a.SeriesIndex > *b.SeriesIndex:
			return 1
		}
		return 0
	default:
		return a.LastModified.Compare(b.LastModified)
	}
}

func compareTimes(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return a.Compare(*b)
}

func (f *Fake) Metadata(_ context.Context, key models.LibraryKey, ids []int) (map[int]*catalog.BookMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.MetadataCalls = append(f.MetadataCalls, append([]int(nil), ids...))
	if f.MetadataHook != nil {
		if err := f.MetadataHook(key, ids); err != nil {
			return nil, err
		}
	}
	lib, err := f.lookup(key)
	if err != nil {
		return nil, err
	}
	out := map[int]*catalog.BookMetadata{}
	for _, id := range ids {
		md, ok := lib.Books[id]
		if !ok || lib.HiddenFromMetadata[id] {
			out[id] = nil
			continue
		}
		cp := *md
		out[id] = &cp
	}
	return out, nil
}

func (f *Fake) Annotations(_ context.Context, key models.LibraryKey, refs []catalog.AnnotationRef) (map[catalog.AnnotationRef]*catalog.AnnotationPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lib, err := f.lookup(key)
	if err != nil {
		return nil, err
	}
	out := map[catalog.AnnotationRef]*catalog.AnnotationPayload{}
	for _, ref := range refs {
		if p, ok := lib.Annotations[ref]; ok {
			out[ref] = p
		}
	}
	return out, nil
}

func (f *Fake) PushAnnotations(_ context.Context, ref models.BookKey, format string, payload *catalog.AnnotationPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.lookup(ref.Library()); err != nil {
		return errors.WithStack(err)
	}
	f.Pushes = append(f.Pushes, Push{Book: ref, Format: format, Payload: payload})
	return nil
}

var _ catalog.Client = (*Fake)(nil)
