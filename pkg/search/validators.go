package search

type LibraryPayload struct {
	ServerUUID string `json:"server_uuid" validate:"required"`
	Name       string `json:"name" validate:"required"`
}

type QueryPayload struct {
	Libraries  []LibraryPayload `json:"libraries" validate:"required,min=1,max=50,dive"`
	Query      string           `json:"query" mod:"trim" validate:"max=500"`
	Sort       string           `json:"sort" default:"last_modified" validate:"oneof=title timestamp pubdate last_modified series_index"`
	Descending *bool            `json:"descending,omitempty"`
	Page       int              `json:"page" validate:"min=0"`
	PageSize   int              `json:"page_size" default:"100" validate:"min=1,max=500"`
}
