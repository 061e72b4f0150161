package libraries

import (
	"testing"

	"github.com/shishobooks/shelfsync/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestDefaultCapabilities(t *testing.T) {
	t.Parallel()

	caps := DefaultCapabilities(models.CustomColumns{
		"#read_pos": {Label: "#read_pos", Datatype: "comments"},
		"#pages":    {Label: "#pages", Datatype: "int"},
	})

	assert.True(t, caps[PluginReadingPosition].IsEnabled())
	assert.Equal(t, "#read_pos", caps[PluginReadingPosition].(ReadingPosition).PositionColumn)
	assert.True(t, caps[PluginCountPages].IsEnabled())
	assert.Equal(t, "", caps[PluginCountPages].(CountPages).WordsColumn)
	assert.False(t, caps[PluginGoodreadsSync].IsEnabled())
	assert.False(t, caps[PluginDictionaryViewer].IsEnabled())
	assert.False(t, caps[PluginDSReaderHelper].IsEnabled())
	for _, kind := range PluginKinds {
		assert.Equal(t, kind, caps[kind].Kind())
	}
}

func TestResolveCapabilities(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		library   *models.Library
		kind      PluginKind
		enabled   bool
		checkFunc func(t *testing.T, c Capability)
	}{
		{
			name:    "no override uses server default",
			library: &models.Library{CustomColumns: models.CustomColumns{"#read_pos": {}}},
			kind:    PluginReadingPosition,
			enabled: true,
		},
		{
			name: "explicit disable beats server default",
			library: &models.Library{
				CustomColumns:   models.CustomColumns{"#read_pos": {}},
				PluginOverrides: models.PluginOverrides{"reading_position": {Enabled: boolPtr(false)}},
			},
			kind:    PluginReadingPosition,
			enabled: false,
			checkFunc: func(t *testing.T, c Capability) {
				assert.Equal(t, "#read_pos", c.(ReadingPosition).PositionColumn)
			},
		},
		{
			name: "override column with inherited enabled flag",
			library: &models.Library{
				CustomColumns:   models.CustomColumns{"#pages": {}, "#words": {}},
				PluginOverrides: models.PluginOverrides{"count_pages": {Columns: models.StringMap{"pages": "#page_count"}}},
			},
			kind:    PluginCountPages,
			enabled: true,
			checkFunc: func(t *testing.T, c Capability) {
				cp := c.(CountPages)
				assert.Equal(t, "#page_count", cp.PagesColumn)
				assert.Equal(t, "#words", cp.WordsColumn)
			},
		},
		{
			name: "explicit enable without any columns",
			library: &models.Library{
				PluginOverrides: models.PluginOverrides{"dictionary_viewer": {Enabled: boolPtr(true)}},
			},
			kind:    PluginDictionaryViewer,
			enabled: true,
		},
		{
			name: "unknown override kinds are ignored",
			library: &models.Library{
				PluginOverrides: models.PluginOverrides{"mystery": {Enabled: boolPtr(true)}},
			},
			kind:    PluginGoodreadsSync,
			enabled: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := ResolveCapabilities(tt.library)[tt.kind]
			assert.Equal(t, tt.enabled, c.IsEnabled())
			if tt.checkFunc != nil {
				tt.checkFunc(t, c)
			}
		})
	}
}

func TestResolve_MismatchedDefaults(t *testing.T) {
	t.Parallel()
	c := CountPages{PagesColumn: "#p"}.Resolve(DictionaryViewer{Enabled: boolPtr(true)})
	assert.False(t, c.IsEnabled())
	assert.Equal(t, "#p", c.(CountPages).PagesColumn)
}

func TestEnabledKinds(t *testing.T) {
	t.Parallel()
	lib := &models.Library{
		CustomColumns: models.CustomColumns{"#shelves": {}, "#read_pos": {}},
	}
	assert.Equal(t, []PluginKind{PluginGoodreadsSync, PluginReadingPosition}, EnabledKinds(lib))
	assert.True(t, ReadingPositionEnabled(lib))
}
