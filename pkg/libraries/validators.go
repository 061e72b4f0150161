package libraries

type ListLibrariesQuery struct {
	ServerUUID *string `query:"server_uuid" json:"server_uuid,omitempty" validate:"omitempty,uuid"`
	Hidden     bool    `query:"hidden" json:"hidden,omitempty"`
}

type PluginOverridePayload struct {
	Enabled *bool             `json:"enabled,omitempty"`
	Columns map[string]string `json:"columns,omitempty" validate:"omitempty,max=10,dive,keys,max=32,endkeys,max=64"`
}

type UpdateLibraryPayload struct {
	AutoUpdate *bool                            `json:"auto_update,omitempty"`
	Hidden     *bool                            `json:"hidden,omitempty"`
	Plugins    map[string]PluginOverridePayload `json:"plugins,omitempty" validate:"omitempty,dive,keys,oneof=goodreads_sync count_pages reading_position dictionary_viewer ds_reader_helper,endkeys"`
}
