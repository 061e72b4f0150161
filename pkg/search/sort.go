package search

import (
	"strings"
	"time"

	"github.com/shishobooks/shelfsync/pkg/models"
)

type Criterion string

// Criterion values double as the catalog's sort field names.
const (
	CriterionTitle       Criterion = "title"
	CriterionAdded       Criterion = "timestamp"
	CriterionPubDate     Criterion = "pubdate"
	CriterionModified    Criterion = "last_modified"
	CriterionSeriesIndex Criterion = "series_index"
)

type Sort struct {
	Criterion  Criterion `json:"criterion"`
	Descending bool      `json:"descending"`
}

func (s Sort) Order() string {
	if s.Descending {
		return "desc"
	}
	return "asc"
}

func (s Sort) String() string {
	return string(s.Criterion) + ":" + s.Order()
}

// Compare orders two books under s. Missing values sort before present
// ones. Books equal under the criterion are ordered by server UUID, library
// name, then id, ascending regardless of direction, so the merged order is
// total and does not depend on sort stability.
func Compare(a, b *models.Book, s Sort) int {
	c := comparePrimary(a, b, s.Criterion)
	if s.Descending {
		c = -c
	}
	if c != 0 {
		return c
	}
	ka, kb := a.Key(), b.Key()
	switch {
	case ka.Less(kb):
		return -1
	case kb.Less(ka):
		return 1
	}
	return 0
}

func comparePrimary(a, b *models.Book, criterion Criterion) int {
	switch criterion {
	case CriterionTitle:
		return strings.Compare(strings.ToLower(sortTitle(a)), strings.ToLower(sortTitle(b)))
	case CriterionAdded:
		return compareTimePtr(a.Timestamp, b.Timestamp)
	case CriterionPubDate:
		return compareTimePtr(a.PubDate, b.PubDate)
	case CriterionSeriesIndex:
		return compareFloatPtr(a.SeriesIndex, b.SeriesIndex)
	default:
		return a.LastModified.Compare(b.LastModified)
	}
}

func sortTitle(b *models.Book) string {
	if b.TitleSort != "" {
		return b.TitleSort
	}
	return b.Title
}

func compareTimePtr(a, b *time.Time) int {
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

func compareFloatPtr(a, b *float64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	case *a < *b:
		return -1
	case *a > *b:
		return 1
	}
	return 0
}
