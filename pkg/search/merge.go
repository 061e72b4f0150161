package search

import (
	"github.com/shishobooks/shelfsync/pkg/models"
)

// Source is one library's input to a merge.
type Source struct {
	Library models.LibraryKey
	Result  *SearchResult
}

// Loader returns the stored record for a book, or false if there is none.
type Loader func(library models.LibraryKey, id int) (*models.Book, bool)

// ResumePoint returns the highest page <= page from which every source can
// resume, and the cursor of each source at that page. A source resumes from
// its own checkpoint for the page, or, when an earlier checkpoint already
// reached its total, from the end of its list.
func ResumePoint(sources []*Source, page int) (int, []int) {
	cursors := make([]int, len(sources))
	for p := page; p > 0; p-- {
		ok := true
		for i, src := range sources {
			c, found := cursorAt(src.Result, p)
			if !found {
				ok = false
				break
			}
			cursors[i] = c
		}
		if ok {
			return p, cursors
		}
	}
	for i := range cursors {
		cursors[i] = 0
	}
	return 0, cursors
}

func cursorAt(r *SearchResult, page int) (int, bool) {
	if off, ok := r.PageOffset[page]; ok {
		return off, true
	}
	if !r.known() {
		return 0, false
	}
	for p, off := range r.PageOffset {
		if p < page && off >= r.TotalNumber {
			return r.TotalNumber, true
		}
	}
	return 0, false
}

type head struct {
	source int
	book   *models.Book
}

// Merge produces the keys of logical page `page` (limit keys per page) of
// the globally sorted union of the sources. It records a checkpoint in every
// source each time the number of produced keys crosses a multiple of limit.
// A source whose known ids run out before its total, or whose next record
// cannot be loaded, is marked as errored at that offset and drops out of
// the merge; the result for that pass may then be short.
func Merge(sources []*Source, s Sort, page, limit int, load Loader) []models.BookKey {
	if limit <= 0 || page < 0 {
		return []models.BookKey{}
	}

	startPage, cursors := ResumePoint(sources, page)
	target := limit + (page-startPage)*limit
	out := make([]models.BookKey, 0, target)

	flagged := false
	next := func(i int) *head {
		src := sources[i]
		r := src.Result
		c := cursors[i]
		if c >= len(r.BookIDs) {
			if !r.known() || c < r.TotalNumber {
				r.MarkError(c)
				flagged = true
			}
			return nil
		}
		book, ok := load(src.Library, r.BookIDs[c])
		if !ok {
			r.MarkError(c)
			flagged = true
			return nil
		}
		return &head{source: i, book: book}
	}

	heads := make([]*head, 0, len(sources))
	for i := range sources {
		if h := next(i); h != nil {
			heads = append(heads, h)
		}
	}

	for len(out) < target && len(heads) > 0 {
		best := 0
		for i := 1; i < len(heads); i++ {
			if Compare(heads[i].book, heads[best].book, s) < 0 {
				best = i
			}
		}
		h := heads[best]
		out = append(out, h.book.Key())
		cursors[h.source]++

		// A checkpoint taken after a source dropped out would skip the
		// records that source still owes.
		if len(out)%limit == 0 && !flagged {
			p := startPage + len(out)/limit
			for i, src := range sources {
				src.Result.PageOffset[p] = cursors[i]
			}
		}
		if len(out) >= target {
			break
		}

		if n := next(h.source); n != nil {
			heads[best] = n
		} else {
			heads = append(heads[:best], heads[best+1:]...)
		}
	}

	skip := (page - startPage) * limit
	if skip >= len(out) {
		return []models.BookKey{}
	}
	return out[skip:]
}
