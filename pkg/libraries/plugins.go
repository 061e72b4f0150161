package libraries

import (
	"sort"

	"github.com/shishobooks/shelfsync/pkg/models"
)

type PluginKind string

const (
	PluginGoodreadsSync    PluginKind = "goodreads_sync"
	PluginCountPages       PluginKind = "count_pages"
	PluginReadingPosition  PluginKind = "reading_position"
	PluginDictionaryViewer PluginKind = "dictionary_viewer"
	PluginDSReaderHelper   PluginKind = "ds_reader_helper"
)

// PluginKinds lists every capability in display order.
var PluginKinds = []PluginKind{
	PluginGoodreadsSync,
	PluginCountPages,
	PluginReadingPosition,
	PluginDictionaryViewer,
	PluginDSReaderHelper,
}

// Columns a server-side plugin conventionally creates. Their presence in a
// library's custom-column schema switches the matching capability on by
// default.
const (
	columnGoodreadsShelves  = "#shelves"
	columnGoodreadsProgress = "#readprogress"
	columnGoodreadsRating   = "#grrating"
	columnPages             = "#pages"
	columnWords             = "#words"
	columnReadPosition      = "#read_pos"
	columnReadPositionDate  = "#read_pos_date"
	columnDSReader          = "#dsreader_pos"
)

// Capability is one library plugin. Resolve fills whatever the receiver
// leaves unset from defaults, which must be of the same kind.
type Capability interface {
	Kind() PluginKind
	IsEnabled() bool
	Resolve(defaults Capability) Capability
}

type GoodreadsSync struct {
	Enabled        *bool  `json:"enabled"`
	ShelvesColumn  string `json:"shelves_column"`
	ProgressColumn string `json:"progress_column"`
	RatingColumn   string `json:"rating_column"`
}

func (p GoodreadsSync) Kind() PluginKind { return PluginGoodreadsSync }
func (p GoodreadsSync) IsEnabled() bool  { return p.Enabled != nil && *p.Enabled }

func (p GoodreadsSync) Resolve(defaults Capability) Capability {
	d, ok := defaults.(GoodreadsSync)
	if !ok {
		return p
	}
	p.Enabled = firstBool(p.Enabled, d.Enabled)
	p.ShelvesColumn = firstString(p.ShelvesColumn, d.ShelvesColumn)
	p.ProgressColumn = firstString(p.ProgressColumn, d.ProgressColumn)
	p.RatingColumn = firstString(p.RatingColumn, d.RatingColumn)
	return p
}

type CountPages struct {
	Enabled     *bool  `json:"enabled"`
	PagesColumn string `json:"pages_column"`
	WordsColumn string `json:"words_column"`
}

func (p CountPages) Kind() PluginKind { return PluginCountPages }
func (p CountPages) IsEnabled() bool  { return p.Enabled != nil && *p.Enabled }

func (p CountPages) Resolve(defaults Capability) Capability {
	d, ok := defaults.(CountPages)
	if !ok {
		return p
	}
	p.Enabled = firstBool(p.Enabled, d.Enabled)
	p.PagesColumn = firstString(p.PagesColumn, d.PagesColumn)
	p.WordsColumn = firstString(p.WordsColumn, d.WordsColumn)
	return p
}

// ReadingPosition gates annotation sync for a library.
type ReadingPosition struct {
	Enabled        *bool  `json:"enabled"`
	PositionColumn string `json:"position_column"`
	DateColumn     string `json:"date_column"`
}

func (p ReadingPosition) Kind() PluginKind { return PluginReadingPosition }
func (p ReadingPosition) IsEnabled() bool  { return p.Enabled != nil && *p.Enabled }

func (p ReadingPosition) Resolve(defaults Capability) Capability {
	d, ok := defaults.(ReadingPosition)
	if !ok {
		return p
	}
	p.Enabled = firstBool(p.Enabled, d.Enabled)
	p.PositionColumn = firstString(p.PositionColumn, d.PositionColumn)
	p.DateColumn = firstString(p.DateColumn, d.DateColumn)
	return p
}

type DictionaryViewer struct {
	Enabled *bool `json:"enabled"`
}

func (p DictionaryViewer) Kind() PluginKind { return PluginDictionaryViewer }
func (p DictionaryViewer) IsEnabled() bool  { return p.Enabled != nil && *p.Enabled }

func (p DictionaryViewer) Resolve(defaults Capability) Capability {
	d, ok := defaults.(DictionaryViewer)
	if !ok {
		return p
	}
	p.Enabled = firstBool(p.Enabled, d.Enabled)
	return p
}

type DSReaderHelper struct {
	Enabled        *bool  `json:"enabled"`
	PositionColumn string `json:"position_column"`
}

func (p DSReaderHelper) Kind() PluginKind { return PluginDSReaderHelper }
func (p DSReaderHelper) IsEnabled() bool  { return p.Enabled != nil && *p.Enabled }

func (p DSReaderHelper) Resolve(defaults Capability) Capability {
	d, ok := defaults.(DSReaderHelper)
	if !ok {
		return p
	}
	p.Enabled = firstBool(p.Enabled, d.Enabled)
	p.PositionColumn = firstString(p.PositionColumn, d.PositionColumn)
	return p
}

func boolPtr(b bool) *bool {
	return &b
}

func firstBool(a, b *bool) *bool {
	if a != nil {
		return a
	}
	return b
}

func firstString(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// DefaultCapabilities derives every capability from the server's custom
// column schema. The result always has one entry per kind with Enabled set.
func DefaultCapabilities(columns models.CustomColumns) map[PluginKind]Capability {
	has := func(label string) bool {
		_, ok := columns[label]
		return ok
	}
	pick := func(label string) string {
		if has(label) {
			return label
		}
		return ""
	}

	return map[PluginKind]Capability{
		PluginGoodreadsSync: GoodreadsSync{
			Enabled:        boolPtr(has(columnGoodreadsShelves) || has(columnGoodreadsProgress)),
			ShelvesColumn:  pick(columnGoodreadsShelves),
			ProgressColumn: pick(columnGoodreadsProgress),
			RatingColumn:   pick(columnGoodreadsRating),
		},
		PluginCountPages: CountPages{
			Enabled:     boolPtr(has(columnPages)),
			PagesColumn: pick(columnPages),
			WordsColumn: pick(columnWords),
		},
		PluginReadingPosition: ReadingPosition{
			Enabled:        boolPtr(has(columnReadPosition)),
			PositionColumn: pick(columnReadPosition),
			DateColumn:     pick(columnReadPositionDate),
		},
		PluginDictionaryViewer: DictionaryViewer{
			Enabled: boolPtr(false),
		},
		PluginDSReaderHelper: DSReaderHelper{
			Enabled:        boolPtr(has(columnDSReader)),
			PositionColumn: pick(columnDSReader),
		},
	}
}

// overrideCapability turns a stored override into its typed capability.
// Unknown kinds yield nil.
func overrideCapability(kind PluginKind, o models.PluginOverride) Capability {
	col := func(name string) string {
		return o.Columns[name]
	}
	switch kind {
	case PluginGoodreadsSync:
		return GoodreadsSync{Enabled: o.Enabled, ShelvesColumn: col("shelves"), ProgressColumn: col("progress"), RatingColumn: col("rating")}
	case PluginCountPages:
		return CountPages{Enabled: o.Enabled, PagesColumn: col("pages"), WordsColumn: col("words")}
	case PluginReadingPosition:
		return ReadingPosition{Enabled: o.Enabled, PositionColumn: col("position"), DateColumn: col("date")}
	case PluginDictionaryViewer:
		return DictionaryViewer{Enabled: o.Enabled}
	case PluginDSReaderHelper:
		return DSReaderHelper{Enabled: o.Enabled, PositionColumn: col("position")}
	}
	return nil
}

// ResolveCapabilities applies the library's explicit overrides on top of the
// defaults derived from its custom columns.
func ResolveCapabilities(library *models.Library) map[PluginKind]Capability {
	resolved := DefaultCapabilities(library.CustomColumns)
	for name, o := range library.PluginOverrides {
		kind := PluginKind(name)
		override := overrideCapability(kind, o)
		if override == nil {
			continue
		}
		resolved[kind] = override.Resolve(resolved[kind])
	}
	return resolved
}

// ReadingPositionEnabled reports whether annotations should be synced for
// the library.
func ReadingPositionEnabled(library *models.Library) bool {
	return ResolveCapabilities(library)[PluginReadingPosition].IsEnabled()
}

// EnabledKinds returns the kinds that resolve to enabled, sorted.
func EnabledKinds(library *models.Library) []PluginKind {
	kinds := []PluginKind{}
	for kind, c := range ResolveCapabilities(library) {
		if c.IsEnabled() {
			kinds = append(kinds, kind)
		}
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
