package servers

type CreateServerPayload struct {
	Name      string  `json:"name" mod:"trim" validate:"max=100"`
	BaseURL   string  `json:"base_url" mod:"trim" validate:"required,catalog_url"`
	PublicURL *string `json:"public_url,omitempty" mod:"trim" validate:"omitempty,catalog_url"`
	Username  *string `json:"username,omitempty" mod:"trim" validate:"omitempty,max=255"`
}

type UpdateServerPayload struct {
	Name      *string `json:"name,omitempty" mod:"trim" validate:"omitempty,max=100"`
	BaseURL   *string `json:"base_url,omitempty" mod:"trim" validate:"omitempty,catalog_url"`
	PublicURL *string `json:"public_url,omitempty" mod:"trim" validate:"omitempty,catalog_url"`
	Username  *string `json:"username,omitempty" mod:"trim" validate:"omitempty,max=255"`
}
