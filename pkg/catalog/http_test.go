package catalog

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/shishobooks/shelfsync/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*HTTPClient, models.LibraryKey) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	server := &models.Server{UUID: "srv-1", BaseURL: ts.URL, Username: pointerutil.String("reader")}
	resolver := func(_ context.Context, uuid string) (*models.Server, error) {
		if uuid != server.UUID {
			return nil, errors.New("unknown server")
		}
		return server, nil
	}
	client := NewHTTPClient(resolver, StaticCredentials{"srv-1": "secret"}, HTTPClientOptions{
		Timeout:    2 * time.Second,
		MaxRetries: 2,
	})
	return client, models.LibraryKey{ServerUUID: "srv-1", Name: "Calibre Library"}
}

func TestHTTPClient_Search(t *testing.T) {
	t.Parallel()
	client, key := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ajax/search/Calibre Library", r.URL.Path)
		assert.Equal(t, "last_modified", r.URL.Query().Get("sort"))
		assert.Equal(t, "100", r.URL.Query().Get("offset"))
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "reader", user)
		assert.Equal(t, "secret", pass)
		_, _ = w.Write([]byte(`{"total_num":250,"offset":100,"num":3,"book_ids":[7,5,3]}`))
	})

	page, err := client.Search(context.Background(), key, SearchRequest{Sort: "last_modified", SortOrder: "desc", Offset: 100, Num: 100})
	require.NoError(t, err)
	assert.Equal(t, 250, page.TotalNum)
	assert.Equal(t, []int{7, 5, 3}, page.BookIDs)
}

func TestHTTPClient_RetriesServerErrors(t *testing.T) {
	t.Parallel()
	var calls int32
	client, key := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"book_ids":{"1":"2026-01-02T03:04:05Z","x":"2026-01-02T03:04:05Z"}}`))
	})

	ids, err := client.IDList(context.Background(), key, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	require.Len(t, ids, 1)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), ids[1].UTC())
}

func TestHTTPClient_RetryDiscardsTruncatedBody(t *testing.T) {
	t.Parallel()
	var calls int32
	client, key := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			partial := `{"1":{"title":"Stale"},"2":`
			w.Header().Set("Content-Length", "512")
			_, _ = w.Write([]byte(partial))
			return
		}
		_, _ = w.Write([]byte(`{"3":{"title":"Fresh","last_modified":"2026-03-01T00:00:00Z"}}`))
	})

	books, err := client.Metadata(context.Background(), key, []int{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	require.Len(t, books, 1)
	require.NotNil(t, books[3])
	assert.Equal(t, "Fresh", books[3].Title)
}

func TestHTTPClient_DoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()
	var calls int32
	client, key := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := client.Metadata(context.Background(), key, []int{1, 2})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestHTTPClient_NotFound(t *testing.T) {
	t.Parallel()
	client, key := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.CustomColumns(context.Background(), key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHTTPClient_MetadataNullMeansDeleted(t *testing.T) {
	t.Parallel()
	client, key := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1,2", r.URL.Query().Get("ids"))
		_, _ = w.Write([]byte(`{"1":{"title":"Dune","authors":["Frank Herbert"],"last_modified":"2026-03-01T00:00:00Z","format_metadata":{"EPUB":{"size":1024}}},"2":null}`))
	})

	books, err := client.Metadata(context.Background(), key, []int{1, 2})
	require.NoError(t, err)
	require.Contains(t, books, 2)
	assert.Nil(t, books[2])
	require.NotNil(t, books[1])
	assert.Equal(t, "Dune", books[1].Title)
	assert.Equal(t, int64(1024), books[1].FormatMetadata["EPUB"].Size)
}

func TestHTTPClient_Annotations(t *testing.T) {
	t.Parallel()
	client, key := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/book-get-annotations/Calibre Library/1-EPUB_2-PDF", r.URL.Path)
		_, _ = w.Write([]byte(`{"1:EPUB":{"last_read_positions":[{"id":"kobo","epoch":1700000000.5}],"bookmarks":[],"highlights":[]},"bogus":{}}`))
	})

	got, err := client.Annotations(context.Background(), key, []AnnotationRef{{1, "EPUB"}, {2, "PDF"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	p := got[AnnotationRef{1, "EPUB"}]
	require.NotNil(t, p)
	require.Len(t, p.LastReadPositions, 1)
	assert.Equal(t, "kobo", p.LastReadPositions[0].DeviceID)
	assert.InDelta(t, 1700000000.5, p.LastReadPositions[0].Epoch, 0.0001)
	assert.Equal(t, 1, p.Len())
}

func TestHTTPClient_PushAnnotations(t *testing.T) {
	t.Parallel()
	var body []byte
	client, key := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/book-update-annotations/Calibre Library/9/EPUB", r.URL.Path)
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	})

	ref := models.BookKey{ServerUUID: key.ServerUUID, LibraryName: key.Name, ID: 9}
	err := client.PushAnnotations(context.Background(), ref, "EPUB", &AnnotationPayload{
		Bookmarks: []*models.Bookmark{{Pos: "epubcfi(/6/4)", Title: "here"}},
	})
	require.NoError(t, err)
	assert.Contains(t, string(body), `"pos":"epubcfi(/6/4)"`)
}
