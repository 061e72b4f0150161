package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Book struct {
	bun.BaseModel `bun:"table:books,alias:b"`

	ServerUUID  string        `bun:"server_uuid,pk" json:"server_uuid"`
	LibraryName string        `bun:"library_name,pk" json:"library_name"`
	ID          int           `bun:"id,pk" json:"id"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	Title       string        `bun:",nullzero" json:"title"`
	TitleSort   string        `bun:",nullzero" json:"title_sort"`
	Authors     StringList    `json:"authors"`
	AuthorSort  string        `bun:",nullzero" json:"author_sort"`
	Series      *string       `json:"series,omitempty"`
	SeriesIndex *float64      `json:"series_index,omitempty"`
	Tags        StringList    `json:"tags"`
	Identifiers StringMap     `json:"identifiers"`
	Publisher   *string       `json:"publisher,omitempty"`
	Rating      *float64      `json:"rating,omitempty"`
	PageCount   *int          `json:"page_count,omitempty"`
	Comments    *string       `json:"comments,omitempty"`
	Timestamp   *time.Time    `json:"timestamp,omitempty"`
	PubDate     *time.Time    `json:"pubdate,omitempty"`
	Formats     []*BookFormat `bun:"rel:has-many,join:server_uuid=server_uuid,join:library_name=library_name,join:id=book_id" json:"formats,omitempty"`

	// LastModified is the server-side change time; LastSynced is when the
	// local copy was last pulled. LastSynced < LastModified means the book
	// needs an update.
	LastModified time.Time `bun:",nullzero" json:"last_modified"`
	LastSynced   time.Time `bun:",nullzero" json:"last_synced"`

	InShelf   bool       `json:"in_shelf"`
	Removed   bool       `json:"removed"`
	RemovedAt *time.Time `json:"removed_at,omitempty"`
}

func (b *Book) Key() BookKey {
	return BookKey{ServerUUID: b.ServerUUID, LibraryName: b.LibraryName, ID: b.ID}
}

func (b *Book) LibraryKey() LibraryKey {
	return LibraryKey{ServerUUID: b.ServerUUID, Name: b.LibraryName}
}

// NeedsUpdate reports whether the local copy is behind the server.
func (b *Book) NeedsUpdate() bool {
	return b.LastSynced.IsZero() || b.LastSynced.Before(b.LastModified)
}

// BookFormat tracks one downloadable format of a book, both as the server
// reports it and as it exists in the local file cache.
type BookFormat struct {
	bun.BaseModel `bun:"table:book_formats,alias:bf"`

	ServerUUID  string     `bun:"server_uuid,pk" json:"-"`
	LibraryName string     `bun:"library_name,pk" json:"-"`
	BookID      int        `bun:"book_id,pk" json:"-"`
	Format      string     `bun:"format,pk" json:"format"`
	ServerSize  int64      `json:"server_size"`
	ServerMtime *time.Time `json:"server_mtime,omitempty"`
	Cached      bool       `json:"cached"`
	CacheSize   *int64     `json:"cache_size,omitempty"`
	CacheMtime  *time.Time `json:"cache_mtime,omitempty"`
}
