package books

type UpdateBookPayload struct {
	InShelf *bool `json:"in_shelf,omitempty"`
}
