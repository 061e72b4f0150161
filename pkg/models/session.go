package models

import (
	"time"

	"github.com/uptrace/bun"
)

// ReadingSession is history only. It never takes part in conflict
// resolution.
type ReadingSession struct {
	bun.BaseModel `bun:"table:reading_sessions,alias:rs"`

	ID            int        `bun:",pk,autoincrement" json:"id"`
	ServerUUID    string     `bun:",nullzero" json:"server_uuid"`
	LibraryName   string     `bun:",nullzero" json:"library_name"`
	BookID        int        `json:"book_id"`
	DeviceID      string     `bun:",nullzero" json:"device_id"`
	ReaderName    string     `json:"reader_name"`
	StartDatetime time.Time  `json:"start_datetime"`
	StartPage     int        `json:"start_page"`
	StartX        float64    `bun:"start_x" json:"start_x"`
	StartY        float64    `bun:"start_y" json:"start_y"`
	EndDatetime   *time.Time `json:"end_datetime,omitempty"`
	EndPage       *int       `json:"end_page,omitempty"`
	EndX          *float64   `bun:"end_x" json:"end_x,omitempty"`
	EndY          *float64   `bun:"end_y" json:"end_y,omitempty"`
	Epoch         float64    `json:"epoch"`
}

func (s *ReadingSession) Open() bool {
	return s.EndDatetime == nil
}
