package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/segmentio/encoding/json"
	"github.com/shishobooks/shelfsync/internal/testgen"
	"github.com/shishobooks/shelfsync/pkg/catalog/catalogtest"
	"github.com/shishobooks/shelfsync/pkg/config"
	"github.com/shishobooks/shelfsync/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var lib = models.LibraryKey{ServerUUID: "srv", Name: "Main"}

func newTestEcho(t *testing.T) (*echo.Echo, *Services) {
	t.Helper()
	db := testgen.DB(t)
	testgen.Library(t, db, lib)

	fake := catalogtest.New()
	for id := 1; id <= 3; id++ {
		fake.AddBook(lib, id, testgen.Metadata(id))
		testgen.Book(t, db, lib, id)
	}

	svcs := NewServices(config.NewForTest(), db, fake)
	e, err := newEcho(db, svcs)
	require.NoError(t, err)
	return e, svcs
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	t.Parallel()
	e, _ := newTestEcho(t)

	rec := do(e, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSyncRoutes(t *testing.T) {
	t.Parallel()
	e, _ := newTestEcho(t)

	rec := do(e, http.MethodPost, "/libraries/srv/Main/sync", `{"incremental":true}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	resp := struct {
		Job     models.Job `json:"job"`
		Created bool       `json:"created"`
	}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Created)
	assert.Equal(t, models.JobTypeSync, resp.Job.Type)

	rec = do(e, http.MethodPost, "/libraries/srv/Main/sync", `{"incremental":false}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Created)

	rec = do(e, http.MethodPost, "/libraries/srv/Missing/sync", `{"incremental":false}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(e, http.MethodGet, "/libraries/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"statuses":[]}`, rec.Body.String())

	rec = do(e, http.MethodPost, "/jobs", `{"type":"sync","data":{"incremental":true},"server_uuid":"srv","library_name":"Main"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSearchRoute(t *testing.T) {
	t.Parallel()
	e, _ := newTestEcho(t)

	rec := do(e, http.MethodPost, "/search", `{"libraries":[{"server_uuid":"srv","name":"Main"}],"page_size":2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := struct {
		Books []models.BookKey `json:"books"`
	}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Books, 2)
	assert.Equal(t, 3, resp.Books[0].ID)
	assert.Equal(t, 2, resp.Books[1].ID)

	rec = do(e, http.MethodPost, "/search", `{"libraries":[]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAnnotationRoutes(t *testing.T) {
	t.Parallel()
	e, _ := newTestEcho(t)

	body := `{"bookmarks":[{"pos":"epubcfi(/6/4)","title":"Chapter","timestamp":"2026-01-01T00:01:40Z"}]}`
	rec := do(e, http.MethodPost, "/books/srv/Main/1/annotations/EPUB", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"pending":0}`, rec.Body.String())

	rec = do(e, http.MethodGet, "/books/srv/Main/1/annotations/pending", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"formats":{}}`, rec.Body.String())

	rec = do(e, http.MethodGet, "/books/srv/Main/1/annotations?format=epub", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Chapter")

	rec = do(e, http.MethodGet, "/books/srv/Main/1/annotations?format=e-pub", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(e, http.MethodGet, "/books/srv/Main/99/annotations", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(e, http.MethodPost, "/books/srv/Main/1/annotations/epub!", body)
	assert.NotEqual(t, http.StatusOK, rec.Code)
}
