package annotations

type ListAnnotationsQuery struct {
	Format string `query:"format" json:"format" mod:"ucase" validate:"omitempty,book_format"`
}

type UpdatePositionPayload struct {
	DeviceID                 string   `json:"device_id" mod:"trim" validate:"required,max=128"`
	ReaderName               string   `json:"reader_name" mod:"trim" validate:"max=128"`
	LastReadPage             int      `json:"last_read_page" validate:"min=0"`
	LastReadChapter          string   `json:"last_read_chapter" validate:"max=512"`
	LastChapterProgress      float64  `json:"last_chapter_progress" validate:"min=0,max=100"`
	LastProgress             float64  `json:"last_progress" validate:"min=0,max=100"`
	MaxPage                  int      `json:"max_page" validate:"min=0"`
	LastPositionPage         int      `json:"last_position_page" validate:"min=0"`
	LastPositionX            float64  `json:"last_position_x"`
	LastPositionY            float64  `json:"last_position_y"`
	Epoch                    *float64 `json:"epoch,omitempty" validate:"omitempty,gt=0"`
	StructuralStyle          int      `json:"structural_style"`
	StructuralRootPageNumber int      `json:"structural_root_page_number"`
	PositionTrackingStyle    int      `json:"position_tracking_style"`
	TakePrecedence           bool     `json:"take_precedence"`
	RecordSession            *bool    `json:"record_session,omitempty"`
}

type AddBookmarkPayload struct {
	Pos     string `json:"pos" validate:"required,max=1024"`
	PosType string `json:"pos_type" validate:"max=32"`
	Title   string `json:"title" mod:"trim" validate:"max=512"`
}

type RemoveBookmarkQuery struct {
	Pos string `query:"pos" json:"pos" validate:"required,max=1024"`
}

type SaveHighlightPayload struct {
	UUID            string            `json:"uuid" validate:"required,max=64"`
	Type            string            `json:"type" validate:"max=32"`
	Style           map[string]string `json:"style,omitempty" validate:"omitempty,max=10"`
	Note            *string           `json:"notes,omitempty" validate:"omitempty,max=10000"`
	HighlightedText string            `json:"highlighted_text" validate:"max=20000"`
	StartCFI        string            `json:"start_cfi" validate:"max=1024"`
	EndCFI          string            `json:"end_cfi" validate:"max=1024"`
	SpineIndex      int               `json:"spine_index" validate:"min=0"`
	Page            int               `json:"page" validate:"min=0"`
	StartOffset     int               `json:"start_offset" validate:"min=0"`
	EndOffset       int               `json:"end_offset" validate:"min=0"`
}

type CloseSessionPayload struct {
	DeviceID string  `json:"device_id" mod:"trim" validate:"required,max=128"`
	Page     int     `json:"page" validate:"min=0"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

type ListSessionsQuery struct {
	DeviceID *string `query:"device_id" json:"device_id,omitempty" validate:"omitempty,max=128"`
	Limit    int     `query:"limit" json:"limit" default:"50" validate:"min=1,max=500"`
}
