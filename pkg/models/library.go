package models

import (
	"database/sql/driver"
	"time"

	"github.com/uptrace/bun"
)

type Library struct {
	bun.BaseModel `bun:"table:libraries,alias:l"`

	ServerUUID      string          `bun:"server_uuid,pk" json:"server_uuid"`
	Name            string          `bun:"name,pk" json:"name"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Server          *Server         `bun:"rel:belongs-to,join:server_uuid=uuid" json:"-"`
	LastModified    time.Time       `bun:",nullzero" json:"last_modified"`
	CustomColumns   CustomColumns   `json:"custom_columns"`
	PluginOverrides PluginOverrides `json:"plugin_overrides"`
	AutoUpdate      bool            `json:"auto_update"`
	Hidden          bool            `json:"hidden"`
	LastSyncError   *string         `json:"last_sync_error,omitempty"`
	// LastSynced is when the latest successful sync finished.
	LastSynced *time.Time `json:"last_synced,omitempty"`
}

func (l *Library) Key() LibraryKey {
	return LibraryKey{ServerUUID: l.ServerUUID, Name: l.Name}
}

// CustomColumn describes one server-side custom column.
type CustomColumn struct {
	Label      string `json:"label"`
	Name       string `json:"name"`
	Datatype   string `json:"datatype"`
	IsMultiple bool   `json:"is_multiple"`
}

// CustomColumns is keyed by column label (e.g. "#read_pos").
type CustomColumns map[string]CustomColumn

func (c CustomColumns) Value() (driver.Value, error) {
	if c == nil {
		return nil, nil
	}
	return marshalColumn(c)
}

func (c *CustomColumns) Scan(src interface{}) error {
	return unmarshalColumn(src, c)
}

// PluginOverride is an explicit per-library setting for one plugin
// capability. Nil fields fall back to the server-derived default.
type PluginOverride struct {
	Enabled *bool     `json:"enabled,omitempty"`
	Columns StringMap `json:"columns,omitempty"`
}

// PluginOverrides is keyed by plugin kind.
type PluginOverrides map[string]PluginOverride

func (p PluginOverrides) Value() (driver.Value, error) {
	if p == nil {
		return nil, nil
	}
	return marshalColumn(p)
}

func (p *PluginOverrides) Scan(src interface{}) error {
	return unmarshalColumn(src, p)
}
