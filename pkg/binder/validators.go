package binder

import (
	"net/url"
	"regexp"

	"github.com/go-playground/validator/v10"
)

const (
	catalogURL = "catalog_url"
	bookFormat = "book_format"
)

var formatRE = regexp.MustCompile(`^[A-Z0-9_]{1,16}$`)

// urlValidator accepts absolute http(s) URLs with a host. Empty strings pass
// so that optional fields can be cleared; pair with `required` otherwise.
func urlValidator(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	u, err := url.Parse(value)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// formatValidator accepts upper-case format names such as EPUB or KEPUB.
func formatValidator(fl validator.FieldLevel) bool {
	return formatRE.MatchString(fl.Field().String())
}
