package binder

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"
	"github.com/segmentio/encoding/json"
)

func formatUnmarshalTypeError(err *json.UnmarshalTypeError) string {
	return fmt.Sprintf("%q should be of type %s", strings.Trim(err.Field, "."), err.Type)
}

func formatSchemaConversionError(err schema.ConversionError) string {
	return fmt.Sprintf("%q should be of type %s", err.Key, err.Type)
}

func formatValidationError(err validator.FieldError) string {
	field := err.Field()

	switch err.Tag() {
	case catalogURL:
		return fmt.Sprintf("%q must be an absolute http or https URL", field)
	case bookFormat:
		return fmt.Sprintf("%q must be an upper-case format name such as EPUB", field)
	case "required":
		return fmt.Sprintf("%q is required", field)
	case "required_with":
		return fmt.Sprintf("%q is required when %s is set", field, strings.ToLower(err.Param()))
	case "uuid":
		return fmt.Sprintf("%q must be a UUID", field)
	case "gt":
		return fmt.Sprintf("%q must be greater than %s", field, err.Param())
	case "max":
		return bound(err, "less")
	case "min":
		return bound(err, "greater")
	case "oneof":
		valids := strings.Fields(err.Param())
		for i, v := range valids {
			valids[i] = fmt.Sprintf("%q", v)
		}
		return fmt.Sprintf("%q must be one of the following: %s", field, strings.Join(valids, ", "))
	}
	return fmt.Sprintf("%q failed %s validation", field, err.Tag())
}

// bound words a min or max failure. Numbers are compared by value, strings
// by character count and slices or maps by element count.
func bound(err validator.FieldError, direction string) string {
	field, limit := err.Field(), err.Param()

	unit := ""
	switch err.Kind() {
	case reflect.String:
		unit = "character"
	case reflect.Slice, reflect.Array, reflect.Map:
		unit = "element"
	}
	if unit == "" {
		return fmt.Sprintf("%q must be %s than or equal to %s", field, direction, limit)
	}
	if limit != "1" {
		unit += "s"
	}
	return fmt.Sprintf("%q length must be %s than or equal to %s %s", field, direction, limit, unit)
}
