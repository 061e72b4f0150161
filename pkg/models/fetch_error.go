package models

import (
	"time"

	"github.com/uptrace/bun"
)

// FetchError marks a book whose metadata could not be fetched even on its
// own. It is skipped by incremental syncs until the next full sync.
type FetchError struct {
	bun.BaseModel `bun:"table:fetch_errors,alias:fe"`

	ServerUUID  string    `bun:"server_uuid,pk" json:"server_uuid"`
	LibraryName string    `bun:"library_name,pk" json:"library_name"`
	BookID      int       `bun:"book_id,pk" json:"book_id"`
	Message     string    `json:"message"`
	Attempts    int       `json:"attempts"`
	FailedAt    time.Time `json:"failed_at"`
}
