package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shishobooks/shelfsync/pkg/models"
)

// ErrNotFound is returned when the server does not know the requested
// library or book.
var ErrNotFound = errors.New("catalog: not found")

// Client is the transport used by sync, fetch, and search. Every method is a
// network round trip and should be treated as failing transiently.
type Client interface {
	LibraryInfo(ctx context.Context, server *models.Server) (*LibraryInfo, error)
	CustomColumns(ctx context.Context, key models.LibraryKey) (models.CustomColumns, error)
	// IDList returns the last-modified time of every book in the library,
	// optionally only those modified at or after since.
	IDList(ctx context.Context, key models.LibraryKey, since *time.Time) (map[int]time.Time, error)
	Search(ctx context.Context, key models.LibraryKey, req SearchRequest) (*SearchPage, error)
	// Metadata returns one entry per requested id. A nil entry means the
	// server no longer has that book.
	Metadata(ctx context.Context, key models.LibraryKey, ids []int) (map[int]*BookMetadata, error)
	Annotations(ctx context.Context, key models.LibraryKey, refs []AnnotationRef) (map[AnnotationRef]*AnnotationPayload, error)
	PushAnnotations(ctx context.Context, ref models.BookKey, format string, payload *AnnotationPayload) error
}

type LibraryInfo struct {
	DefaultLibrary string            `json:"default_library"`
	LibraryMap     map[string]string `json:"library_map"`
}

type SearchRequest struct {
	Query     string
	Sort      string
	SortOrder string
	Offset    int
	Num       int
}

type SearchPage struct {
	TotalNum int   `json:"total_num"`
	Offset   int   `json:"offset"`
	Num      int   `json:"num"`
	BookIDs  []int `json:"book_ids"`
}

type FormatMetadata struct {
	Size  int64      `json:"size"`
	Mtime *time.Time `json:"mtime"`
}

// BookMetadata is one server-side book record.
type BookMetadata struct {
	Title          string                    `json:"title"`
	TitleSort      string                    `json:"title_sort"`
	Authors        []string                  `json:"authors"`
	AuthorSort     string                    `json:"author_sort"`
	Series         *string                   `json:"series"`
	SeriesIndex    *float64                  `json:"series_index"`
	Tags           []string                  `json:"tags"`
	Identifiers    map[string]string         `json:"identifiers"`
	Publisher      *string                   `json:"publisher"`
	Rating         *float64                  `json:"rating"`
	Comments       *string                   `json:"comments"`
	Timestamp      *time.Time                `json:"timestamp"`
	PubDate        *time.Time                `json:"pubdate"`
	LastModified   time.Time                 `json:"last_modified"`
	FormatMetadata map[string]FormatMetadata `json:"format_metadata"`
	UserMetadata   map[string]UserValue      `json:"user_metadata"`
}

type UserValue struct {
	Datatype string      `json:"datatype"`
	Value    interface{} `json:"#value#"`
}

// AnnotationRef addresses the annotations of one format of one book.
type AnnotationRef struct {
	ID     int
	Format string
}

func (r AnnotationRef) String() string {
	return fmt.Sprintf("%d:%s", r.ID, r.Format)
}

type AnnotationPayload struct {
	LastReadPositions []*models.ReadingPosition `json:"last_read_positions"`
	Bookmarks         []*models.Bookmark        `json:"bookmarks"`
	Highlights        []*models.Highlight       `json:"highlights"`
}

func (p *AnnotationPayload) Len() int {
	if p == nil {
		return 0
	}
	return len(p.LastReadPositions) + len(p.Bookmarks) + len(p.Highlights)
}
