package catalogsync

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/shishobooks/shelfsync/pkg/jobs"
	"github.com/shishobooks/shelfsync/pkg/libraries"
	"github.com/shishobooks/shelfsync/pkg/models"
)

type handler struct {
	tracker        *Tracker
	libraryService *libraries.Service
	jobService     *jobs.Service
}

// sync queues a sync job. A library that already has one pending or running
// gets that job back.
func (h *handler) sync(c echo.Context) error {
	ctx := c.Request().Context()
	key := models.LibraryKey{ServerUUID: c.Param("server"), Name: c.Param("name")}

	// Bind params.
	params := SyncLibraryPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	if _, err := h.libraryService.RetrieveLibrary(ctx, libraries.RetrieveLibraryOptions{Key: &key}); err != nil {
		return errors.WithStack(err)
	}

	job, created, err := h.jobService.EnqueueSync(ctx, key, params.Incremental)
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Job     *models.Job `json:"job"`
		Created bool        `json:"created"`
	}{job, created}

	return errors.WithStack(c.JSON(http.StatusAccepted, resp))
}

func (h *handler) status(c echo.Context) error {
	resp := struct {
		Statuses []Status `json:"statuses"`
	}{h.tracker.All()}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}

// events streams status changes as server-sent events until the client
// disconnects.
func (h *handler) events(c echo.Context) error {
	ctx := c.Request().Context()
	id, updates := h.tracker.Subscribe()
	defer h.tracker.Unsubscribe(id)

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	for {
		select {
		case <-ctx.Done():
			return nil
		case s, ok := <-updates:
			if !ok {
				return nil
			}
			data, err := json.Marshal(s)
			if err != nil {
				return errors.WithStack(err)
			}
			if _, err := fmt.Fprintf(res, "event: status\ndata: %s\n\n", data); err != nil {
				return errors.WithStack(err)
			}
			res.Flush()
		}
	}
}
