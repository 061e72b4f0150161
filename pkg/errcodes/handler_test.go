package errcodes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestDescribe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantKey  string
	}{
		{"custom error", NotFound("Library"), http.StatusNotFound, "not_found"},
		{"wrapped custom error", errors.WithStack(Conflict("Server")), http.StatusConflict, "conflict"},
		{"echo error", echo.NewHTTPError(http.StatusMethodNotAllowed, "Method Not Allowed"), http.StatusMethodNotAllowed, "method_not_allowed"},
		{"superseded query", echo.NewHTTPError(http.StatusConflict, "Superseded"), http.StatusConflict, "superseded"},
		{"generic error", errors.New("boom"), http.StatusInternalServerError, "internal_server_error"},
		{"catalog", CatalogUnavailable("timeout"), http.StatusBadGateway, "catalog_unavailable"},
		{"canceled", errors.WithStack(context.Canceled), StatusClientClosedRequest, "client_closed_request"},
		{"deadline", errors.Wrap(context.DeadlineExceeded, "fetch"), http.StatusGatewayTimeout, "timeout"},
	}

	h := NewHandler()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := h.describe(tt.err)
			assert.Equal(t, tt.wantCode, got.StatusCode)
			assert.Equal(t, tt.wantKey, got.Code)
		})
	}
}

func TestHandle(t *testing.T) {
	t.Parallel()
	h := NewHandler()

	rec := httptest.NewRecorder()
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	h.Handle(NotFound("Book"), c)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":{"code":"not_found","message":"Book not found.","status_code":404}}`, rec.Body.String())

	rec = httptest.NewRecorder()
	c = echo.New().NewContext(httptest.NewRequest(http.MethodHead, "/", nil), rec)
	h.Handle(NotFound("Book"), c)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = httptest.NewRecorder()
	c = echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.Response().WriteHeader(http.StatusOK)
	h.Handle(errors.New("stream broke"), c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}
