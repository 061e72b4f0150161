package catalog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
	"github.com/sethvargo/go-retry"
	"github.com/shishobooks/shelfsync/pkg/models"
)

const (
	retryBaseDelay = 200 * time.Millisecond
	retryMaxDelay  = 5 * time.Second
	maxErrorBody   = 512
)

// ServerResolver looks up the server record a library belongs to.
type ServerResolver func(ctx context.Context, uuid string) (*models.Server, error)

// Credentials supplies the password for a server. Storage of the secret is
// somebody else's job.
type Credentials interface {
	Password(ctx context.Context, serverUUID string) (string, error)
}

// StaticCredentials maps server UUID to password.
type StaticCredentials map[string]string

func (s StaticCredentials) Password(_ context.Context, serverUUID string) (string, error) {
	return s[serverUUID], nil
}

type HTTPClientOptions struct {
	Timeout    time.Duration
	MaxRetries int
}

// HTTPClient talks to a Calibre-style content server.
type HTTPClient struct {
	http        *http.Client
	servers     ServerResolver
	credentials Credentials
	maxRetries  int
}

func NewHTTPClient(servers ServerResolver, credentials Credentials, opts HTTPClientOptions) *HTTPClient {
	if credentials == nil {
		credentials = StaticCredentials{}
	}
	return &HTTPClient{
		http:        &http.Client{Timeout: opts.Timeout},
		servers:     servers,
		credentials: credentials,
		maxRetries:  opts.MaxRetries,
	}
}

// statusError is a non-2xx response.
type statusError struct {
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("catalog: unexpected status %d: %s", e.Status, e.Body)
}

func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.Status >= 500 || se.Status == http.StatusTooManyRequests
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}

func (c *HTTPClient) LibraryInfo(ctx context.Context, server *models.Server) (*LibraryInfo, error) {
	info := &LibraryInfo{}
	err := c.do(ctx, server, http.MethodGet, "/ajax/library-info", nil, nil, info)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return info, nil
}

func (c *HTTPClient) CustomColumns(ctx context.Context, key models.LibraryKey) (models.CustomColumns, error) {
	cols := models.CustomColumns{}
	err := c.doLibrary(ctx, key, http.MethodGet, "/ajax/custom-columns/"+url.PathEscape(key.Name), nil, nil, &cols)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return cols, nil
}

type idListResponse struct {
	BookIDs map[string]time.Time `json:"book_ids"`
}

func (c *HTTPClient) IDList(ctx context.Context, key models.LibraryKey, since *time.Time) (map[int]time.Time, error) {
	q := url.Values{}
	if since != nil {
		q.Set("modified_since", since.UTC().Format(time.RFC3339Nano))
	}
	resp := &idListResponse{}
	err := c.doLibrary(ctx, key, http.MethodGet, "/ajax/ids/"+url.PathEscape(key.Name), q, nil, resp)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	ids := make(map[int]time.Time, len(resp.BookIDs))
	for k, v := range resp.BookIDs {
		id, err := strconv.Atoi(k)
		if err != nil {
			logger.FromContext(ctx).Warn("skipping malformed book id", logger.Data{"library": key.String(), "id": k})
			continue
		}
		ids[id] = v
	}
	return ids, nil
}

func (c *HTTPClient) Search(ctx context.Context, key models.LibraryKey, req SearchRequest) (*SearchPage, error) {
	q := url.Values{}
	q.Set("query", req.Query)
	if req.Sort != "" {
		q.Set("sort", req.Sort)
	}
	if req.SortOrder != "" {
		q.Set("sort_order", req.SortOrder)
	}
	q.Set("offset", strconv.Itoa(req.Offset))
	q.Set("num", strconv.Itoa(req.Num))
	page := &SearchPage{}
	err := c.doLibrary(ctx, key, http.MethodGet, "/ajax/search/"+url.PathEscape(key.Name), q, nil, page)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return page, nil
}

func (c *HTTPClient) Metadata(ctx context.Context, key models.LibraryKey, ids []int) (map[int]*BookMetadata, error) {
	strs := make([]string, 0, len(ids))
	for _, id := range ids {
		strs = append(strs, strconv.Itoa(id))
	}
	q := url.Values{}
	q.Set("ids", strings.Join(strs, ","))
	raw := map[string]*BookMetadata{}
	err := c.doLibrary(ctx, key, http.MethodGet, "/ajax/books/"+url.PathEscape(key.Name), q, nil, &raw)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	out := make(map[int]*BookMetadata, len(raw))
	for k, v := range raw {
		id, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		out[id] = v
	}
	return out, nil
}

func (c *HTTPClient) Annotations(ctx context.Context, key models.LibraryKey, refs []AnnotationRef) (map[AnnotationRef]*AnnotationPayload, error) {
	parts := make([]string, 0, len(refs))
	for _, r := range refs {
		parts = append(parts, fmt.Sprintf("%d-%s", r.ID, r.Format))
	}
	path := fmt.Sprintf("/book-get-annotations/%s/%s", url.PathEscape(key.Name), strings.Join(parts, "_"))
	raw := map[string]*AnnotationPayload{}
	err := c.doLibrary(ctx, key, http.MethodGet, path, nil, nil, &raw)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	out := make(map[AnnotationRef]*AnnotationPayload, len(raw))
	for k, v := range raw {
		ref, ok := parseAnnotationRef(k)
		if !ok {
			logger.FromContext(ctx).Warn("skipping malformed annotation key", logger.Data{"library": key.String(), "key": k})
			continue
		}
		out[ref] = v
	}
	return out, nil
}

func parseAnnotationRef(s string) (AnnotationRef, bool) {
	idStr, format, ok := strings.Cut(s, ":")
	if !ok || format == "" {
		return AnnotationRef{}, false
	}
	id, err := strconv.Atoi(idStr)
	if err != nil {
		return AnnotationRef{}, false
	}
	return AnnotationRef{ID: id, Format: format}, true
}

func (c *HTTPClient) PushAnnotations(ctx context.Context, ref models.BookKey, format string, payload *AnnotationPayload) error {
	path := fmt.Sprintf("/book-update-annotations/%s/%d/%s", url.PathEscape(ref.LibraryName), ref.ID, url.PathEscape(format))
	return errors.WithStack(c.doLibrary(ctx, ref.Library(), http.MethodPost, path, nil, payload, nil))
}

func (c *HTTPClient) doLibrary(ctx context.Context, key models.LibraryKey, method, path string, q url.Values, body, out interface{}) error {
	server, err := c.servers(ctx, key.ServerUUID)
	if err != nil {
		return errors.WithStack(err)
	}
	return c.do(ctx, server, method, path, q, body, out)
}

func (c *HTTPClient) do(ctx context.Context, server *models.Server, method, path string, q url.Values, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return errors.WithStack(err)
		}
	}

	password, err := c.credentials.Password(ctx, server.UUID)
	if err != nil {
		return errors.WithStack(err)
	}

	u := strings.TrimRight(server.URL(), "/") + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	backoff := retry.NewExponential(retryBaseDelay)
	backoff = retry.WithJitterPercent(20, backoff)
	backoff = retry.WithCappedDuration(retryMaxDelay, backoff)
	backoff = retry.WithMaxRetries(uint64(max(c.maxRetries, 0)), backoff)

	// Each attempt reads the whole body; out is only decoded from the
	// attempt that succeeded.
	var data []byte
	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		var err error
		data, err = c.roundTrip(ctx, server, password, method, u, payload)
		if err != nil && retryable(err) {
			logger.FromContext(ctx).Debug("retrying catalog request", logger.Data{
				"url":     u,
				"attempt": attempt,
				"error":   err.Error(),
			})
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return errors.WithStack(err)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return errors.WithStack(json.Unmarshal(data, out))
}

func (c *HTTPClient) roundTrip(ctx context.Context, server *models.Server, password, method, u string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if server.Username != nil && *server.Username != "" {
		req.SetBasicAuth(*server.Username, password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &statusError{Status: resp.StatusCode, Body: string(b)}
	}
	data, err := io.ReadAll(resp.Body)
	return data, errors.WithStack(err)
}
