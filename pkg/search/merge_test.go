package search

import (
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/shishobooks/shelfsync/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	books   map[models.BookKey]*models.Book
	sources []*Source
}

// newFixture builds one fully-known source per library size. Modified times
// come from a small LCG so that libraries interleave and collide.
func newFixture(s Sort, sizes ...int) *fixture {
	f := &fixture{books: map[models.BookKey]*models.Book{}}
	seed := uint32(7)
	for li, size := range sizes {
		lib := models.LibraryKey{ServerUUID: "srv", Name: fmt.Sprintf("lib%d", li)}
		libBooks := make([]*models.Book, 0, size)
		for id := 1; id <= size; id++ {
			seed = seed*1103515245 + 12345
			b := &models.Book{
				ServerUUID:   lib.ServerUUID,
				LibraryName:  lib.Name,
				ID:           id,
				Title:        fmt.Sprintf("Title %d", seed%97),
				LastModified: base.Add(time.Duration(seed%500) * time.Minute),
			}
			f.books[b.Key()] = b
			libBooks = append(libBooks, b)
		}
		sort.Slice(libBooks, func(i, j int) bool { return Compare(libBooks[i], libBooks[j], s) < 0 })
		r := NewSearchResult()
		r.TotalNumber = size
		for _, b := range libBooks {
			r.BookIDs = append(r.BookIDs, b.ID)
		}
		f.sources = append(f.sources, &Source{Library: lib, Result: r})
	}
	return f
}

func (f *fixture) load(l models.LibraryKey, id int) (*models.Book, bool) {
	b, ok := f.books[models.BookKey{ServerUUID: l.ServerUUID, LibraryName: l.Name, ID: id}]
	return b, ok
}

func (f *fixture) globalOrder(s Sort) []models.BookKey {
	all := make([]*models.Book, 0, len(f.books))
	for _, b := range f.books {
		all = append(all, b)
	}
	sort.Slice(all, func(i, j int) bool { return Compare(all[i], all[j], s) < 0 })
	keys := make([]models.BookKey, 0, len(all))
	for _, b := range all {
		keys = append(keys, b.Key())
	}
	return keys
}

func (f *fixture) fresh() []*Source {
	out := make([]*Source, 0, len(f.sources))
	for _, src := range f.sources {
		r := NewSearchResult()
		r.TotalNumber = src.Result.TotalNumber
		r.BookIDs = append([]int(nil), src.Result.BookIDs...)
		out = append(out, &Source{Library: src.Library, Result: r})
	}
	return out
}

func TestMerge_GlobalOrder(t *testing.T) {
	t.Parallel()

	sorts := []Sort{
		{CriterionModified, true},
		{CriterionModified, false},
		{CriterionTitle, false},
		{CriterionTitle, true},
	}
	for _, s := range sorts {
		t.Run(s.String(), func(t *testing.T) {
			t.Parallel()
			f := newFixture(s, 37, 0, 64, 5)
			limit := 10

			got := []models.BookKey{}
			for page := 0; ; page++ {
				keys := Merge(f.sources, s, page, limit, f.load)
				got = append(got, keys...)
				if len(keys) < limit {
					break
				}
			}

			assert.Equal(t, f.globalOrder(s), got)
			for _, src := range f.sources {
				assert.False(t, src.Result.Error)
			}
		})
	}
}

func TestMerge_ColdPageMatchesSequential(t *testing.T) {
	t.Parallel()
	s := Sort{CriterionModified, true}
	f := newFixture(s, 41, 23, 58)
	limit := 9

	for n := 0; n < 14; n++ {
		warm := f.fresh()
		var last []models.BookKey
		for page := 0; page <= n; page++ {
			last = Merge(warm, s, page, limit, f.load)
		}

		cold := Merge(f.fresh(), s, n, limit, f.load)
		assert.Equal(t, last, cold, "page %d", n)

		// A third call resuming from the warm checkpoints agrees too.
		again := Merge(warm, s, n, limit, f.load)
		assert.Equal(t, last, again, "page %d resumed", n)
	}
}

func TestMerge_TwoHundredFiftyBooks(t *testing.T) {
	t.Parallel()
	s := Sort{CriterionModified, true}
	f := newFixture(s, 250)
	src := f.sources[0]

	keys := Merge(f.sources, s, 2, 100, f.load)

	require.Len(t, keys, 50)
	all := f.globalOrder(s)
	assert.Equal(t, all[200:250], keys)
	assert.Equal(t, 100, src.Result.PageOffset[1])
	assert.Equal(t, 200, src.Result.PageOffset[2])
	_, ok := src.Result.PageOffset[3]
	assert.False(t, ok, "there is no page 3")
}

func TestMerge_ResumesFromCheckpoint(t *testing.T) {
	t.Parallel()
	s := Sort{CriterionModified, false}
	f := newFixture(s, 30, 30)
	limit := 10

	Merge(f.sources, s, 0, limit, f.load)
	Merge(f.sources, s, 1, limit, f.load)
	start, cursors := ResumePoint(f.sources, 4)
	assert.Equal(t, 2, start)
	assert.Equal(t, 20, cursors[0]+cursors[1])

	// Poison everything before the checkpoint: a resumed merge must not
	// load it.
	loads := map[models.BookKey]bool{}
	Merge(f.sources, s, 2, limit, func(l models.LibraryKey, id int) (*models.Book, bool) {
		b, ok := f.load(l, id)
		loads[b.Key()] = true
		return b, ok
	})
	assert.LessOrEqual(t, len(loads), limit+2)
}

func TestMerge_FlagsShortIDList(t *testing.T) {
	t.Parallel()
	s := Sort{CriterionModified, false}
	f := newFixture(s, 20, 20)
	short := f.sources[1].Result
	short.TotalNumber = 40
	short.BookIDs = short.BookIDs[:5]

	keys := Merge(f.sources, s, 0, 30, f.load)

	assert.True(t, short.Error)
	assert.Equal(t, 5, short.ErrorOffset)
	assert.Len(t, keys, 25)
}

func TestMerge_NoCheckpointAfterFlag(t *testing.T) {
	t.Parallel()
	s := Sort{CriterionModified, false}
	f := newFixture(s, 20, 20)
	empty := f.sources[1].Result
	empty.TotalNumber = 20
	empty.BookIDs = nil

	keys := Merge(f.sources, s, 1, 5, f.load)

	assert.Len(t, keys, 5)
	assert.True(t, empty.Error)
	for _, src := range f.sources {
		assert.Empty(t, src.Result.PageOffset)
	}
}

func TestMerge_FlagsMissingRecord(t *testing.T) {
	t.Parallel()
	s := Sort{CriterionModified, false}
	f := newFixture(s, 10, 10)
	missing := f.sources[0].Result.BookIDs[3]
	delete(f.books, models.BookKey{ServerUUID: "srv", LibraryName: "lib0", ID: missing})

	keys := Merge(f.sources, s, 0, 20, f.load)

	r := f.sources[0].Result
	assert.True(t, r.Error)
	assert.Equal(t, 3, r.ErrorOffset)
	assert.Len(t, keys, 13)
	assert.False(t, f.sources[1].Result.Error)
}

func TestMerge_UnknownTotalFlags(t *testing.T) {
	t.Parallel()
	r := NewSearchResult()
	sources := []*Source{{Library: models.LibraryKey{ServerUUID: "srv", Name: "x"}, Result: r}}

	keys := Merge(sources, Sort{CriterionTitle, false}, 0, 10, func(models.LibraryKey, int) (*models.Book, bool) {
		return nil, false
	})
	assert.Empty(t, keys)
	assert.True(t, r.Error)
	assert.Equal(t, 0, r.ErrorOffset)
}

func TestResumePoint_ExhaustedSource(t *testing.T) {
	t.Parallel()
	done := NewSearchResult()
	done.TotalNumber = 5
	done.BookIDs = []int{1, 2, 3, 4, 5}
	done.PageOffset[1] = 5

	busy := NewSearchResult()
	busy.TotalNumber = 100
	busy.PageOffset[1] = 5
	busy.PageOffset[3] = 25

	sources := []*Source{{Result: done}, {Result: busy}}
	start, cursors := ResumePoint(sources, 4)
	assert.Equal(t, 3, start)
	assert.Equal(t, []int{5, 25}, cursors)

	start, cursors = ResumePoint(sources, 0)
	assert.Equal(t, 0, start)
	assert.Equal(t, []int{0, 0}, cursors)
}

func TestSearchResult_DiscardStale(t *testing.T) {
	t.Parallel()
	r := NewSearchResult()
	r.TotalNumber = 10
	r.BookIDs = []int{1, 2, 3, 4, 5, 6}
	r.PageOffset = map[int]int{1: 2, 2: 4, 3: 6}
	r.MarkError(5)
	r.MarkError(4)
	r.MarkError(6)

	assert.Equal(t, 4, r.ErrorOffset)
	r.discardStale()
	assert.False(t, r.Error)
	assert.Equal(t, []int{1, 2, 3, 4}, r.BookIDs)
	assert.Equal(t, map[int]int{1: 2, 2: 4}, r.PageOffset)
}
