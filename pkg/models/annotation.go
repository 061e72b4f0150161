package models

import (
	"time"

	"github.com/uptrace/bun"
)

// ReadingPosition is the current position of one reading context
// ("device") within a book. Format records which format it was read in.
type ReadingPosition struct {
	bun.BaseModel `bun:"table:reading_positions,alias:rp"`

	ServerUUID  string `bun:"server_uuid,pk" json:"-"`
	LibraryName string `bun:"library_name,pk" json:"-"`
	BookID      int    `bun:"book_id,pk" json:"-"`
	DeviceID    string `bun:"device_id,pk" json:"id"`
	Format      string `bun:"format" json:"format"`

	ReaderName          string  `json:"reader_name"`
	LastReadPage        int     `json:"last_read_page"`
	LastReadChapter     string  `json:"last_read_chapter"`
	LastChapterProgress float64 `json:"last_chapter_progress"`
	LastProgress        float64 `json:"last_progress"`
	MaxPage             int     `json:"max_page"`
	LastPositionPage    int     `json:"last_position_page"`
	LastPositionX       float64 `bun:"last_position_x" json:"last_position_x"`
	LastPositionY       float64 `bun:"last_position_y" json:"last_position_y"`
	// Epoch is a Unix timestamp in fractional seconds.
	Epoch                    float64 `json:"epoch"`
	StructuralStyle          int     `json:"structural_style"`
	StructuralRootPageNumber int     `json:"structural_root_page_number"`
	PositionTrackingStyle    int     `json:"position_tracking_style"`
	TakePrecedence           bool    `json:"take_precedence"`

	Dirty bool `json:"-"`
}

func (p *ReadingPosition) BookKey() BookKey {
	return BookKey{ServerUUID: p.ServerUUID, LibraryName: p.LibraryName, ID: p.BookID}
}

type Bookmark struct {
	bun.BaseModel `bun:"table:bookmarks,alias:bm"`

	ID          int       `bun:",pk,autoincrement" json:"-"`
	ServerUUID  string    `bun:",nullzero" json:"-"`
	LibraryName string    `bun:",nullzero" json:"-"`
	BookID      int       `json:"-"`
	Format      string    `bun:",nullzero" json:"-"`
	Pos         string    `bun:",nullzero" json:"pos"`
	PosType     string    `json:"pos_type"`
	Title       string    `json:"title"`
	Date        time.Time `json:"timestamp"`
	Removed     bool      `json:"removed"`
	Dirty       bool      `json:"-"`
}

type Highlight struct {
	bun.BaseModel `bun:"table:highlights,alias:hl"`

	ServerUUID  string `bun:"server_uuid,pk" json:"-"`
	LibraryName string `bun:"library_name,pk" json:"-"`
	BookID      int    `bun:"book_id,pk" json:"-"`
	Format      string `bun:"format,pk" json:"-"`
	UUID        string `bun:"uuid,pk" json:"uuid"`

	Type            string    `json:"type"`
	Style           StringMap `json:"style,omitempty"`
	Note            *string   `json:"notes,omitempty"`
	HighlightedText string    `json:"highlighted_text"`
	StartCFI        string    `bun:"start_cfi" json:"start_cfi"`
	EndCFI          string    `bun:"end_cfi" json:"end_cfi"`
	SpineIndex      int       `json:"spine_index"`
	Page            int       `json:"page"`
	StartOffset     int       `json:"start_offset"`
	EndOffset       int       `json:"end_offset"`
	Date            time.Time `json:"timestamp"`
	Removed         bool      `json:"removed"`
	Dirty           bool      `json:"-"`
}
