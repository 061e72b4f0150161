package binder

import (
	"reflect"
	"testing"

	ut "github.com/go-playground/universal-translator"
	"github.com/stretchr/testify/assert"
)

type mockFieldError struct {
	tag   string
	field string
	param string
	kind  reflect.Kind
}

func (e *mockFieldError) Error() string           { return "Mock Field Error" }
func (e *mockFieldError) Tag() string             { return e.tag }
func (e *mockFieldError) ActualTag() string       { return e.tag }
func (e *mockFieldError) Namespace() string       { return "" }
func (e *mockFieldError) StructNamespace() string { return "" }
func (e *mockFieldError) Field() string           { return e.field }
func (e *mockFieldError) StructField() string     { return "" }
func (e *mockFieldError) Value() interface{}      { return "" }
func (e *mockFieldError) Param() string           { return e.param }
func (e *mockFieldError) Kind() reflect.Kind {
	if e.kind == 0 {
		return reflect.String
	}
	return e.kind
}
func (e *mockFieldError) Type() reflect.Type               { return reflect.TypeOf("") }
func (e *mockFieldError) Translate(_ ut.Translator) string { return "" }

func TestFormatValidationError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		tag   string
		param string
		kind  reflect.Kind
		msg   string
	}{
		{catalogURL, "", 0, `"base_url" must be an absolute http or https URL`},
		{bookFormat, "", 0, `"base_url" must be an upper-case format name such as EPUB`},
		{"required", "", 0, `"base_url" is required`},
		{"required_with", "Username", 0, `"base_url" is required when username is set`},
		{"uuid", "", 0, `"base_url" must be a UUID`},
		{"gt", "0", reflect.Float64, `"base_url" must be greater than 0`},
		{"max", "20", reflect.String, `"base_url" length must be less than or equal to 20 characters`},
		{"min", "1", reflect.String, `"base_url" length must be greater than or equal to 1 character`},
		{"max", "500", reflect.Int, `"base_url" must be less than or equal to 500`},
		{"min", "0", reflect.Float64, `"base_url" must be greater than or equal to 0`},
		{"max", "10", reflect.Map, `"base_url" length must be less than or equal to 10 elements`},
		{"min", "1", reflect.Slice, `"base_url" length must be greater than or equal to 1 element`},
		{"oneof", "sync", 0, `"base_url" must be one of the following: "sync"`},
		{"dive", "", 0, `"base_url" failed dive validation`},
	}

	for _, tt := range cases {
		err := mockFieldError{tag: tt.tag, field: "base_url", param: tt.param, kind: tt.kind}
		assert.Equal(t, tt.msg, formatValidationError(&err), tt.tag)
	}
}
