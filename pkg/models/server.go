package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Server is a remote catalog host. Credentials other than the username
// live in the external credential store.
type Server struct {
	bun.BaseModel `bun:"table:servers,alias:s"`

	UUID           string     `bun:"uuid,pk" json:"uuid"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	Name           string     `bun:",nullzero" json:"name"`
	BaseURL        string     `bun:",nullzero" json:"base_url"`
	PublicURL      *string    `json:"public_url,omitempty"`
	Username       *string    `json:"username,omitempty"`
	DefaultLibrary *string    `json:"default_library,omitempty"`
	Libraries      []*Library `bun:"rel:has-many,join:uuid=server_uuid" json:"libraries,omitempty"`
}

// URL returns the address requests should go to: the public URL when one
// is configured, otherwise the base URL.
func (s *Server) URL() string {
	if s.PublicURL != nil && *s.PublicURL != "" {
		return *s.PublicURL
	}
	return s.BaseURL
}
