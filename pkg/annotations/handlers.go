package annotations

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shishobooks/shelfsync/pkg/books"
	"github.com/shishobooks/shelfsync/pkg/catalog"
	"github.com/shishobooks/shelfsync/pkg/errcodes"
	"github.com/shishobooks/shelfsync/pkg/models"
)

var formatRE = regexp.MustCompile(`^[A-Z0-9_]{1,16}$`)

type handler struct {
	annotationService *Service
	bookService       *books.Service
}

// target resolves the book and format route parameters, failing with a not
// found error when the book is not stored.
func (h *handler) target(c echo.Context, withFormat bool) (models.BookKey, string, error) {
	key, err := books.BookKeyParam(c)
	if err != nil {
		return key, "", errors.WithStack(err)
	}
	if _, err := h.bookService.RetrieveBook(c.Request().Context(), books.RetrieveBookOptions{Key: &key}); err != nil {
		return key, "", errors.WithStack(err)
	}
	if !withFormat {
		return key, "", nil
	}
	format := strings.ToUpper(c.Param("format"))
	if !formatRE.MatchString(format) {
		return key, "", errcodes.ValidationError("Format must be an upper-case format name such as EPUB.")
	}
	return key, format, nil
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()
	key, _, err := h.target(c, false)
	if err != nil {
		return errors.WithStack(err)
	}

	// Bind params.
	params := ListAnnotationsQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	payload, err := h.annotationService.ListAnnotations(ctx, key, ListAnnotationsOptions{
		Format: params.Format,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, payload))
}

func (h *handler) merge(c echo.Context) error {
	ctx := c.Request().Context()
	key, format, err := h.target(c, true)
	if err != nil {
		return errors.WithStack(err)
	}

	// Bind params.
	params := catalog.AnnotationPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	pending, err := h.annotationService.MergeIncoming(ctx, key, format, &params)
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Pending int `json:"pending"`
	}{pending}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}

func (h *handler) pending(c echo.Context) error {
	ctx := c.Request().Context()
	key, _, err := h.target(c, false)
	if err != nil {
		return errors.WithStack(err)
	}

	payloads, err := h.annotationService.PendingWriteBack(ctx, key)
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Formats map[string]*catalog.AnnotationPayload `json:"formats"`
	}{payloads}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}

func (h *handler) latestPosition(c echo.Context) error {
	ctx := c.Request().Context()
	key, _, err := h.target(c, false)
	if err != nil {
		return errors.WithStack(err)
	}

	pos, err := h.annotationService.LatestPosition(ctx, key)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, pos))
}

func (h *handler) updatePosition(c echo.Context) error {
	ctx := c.Request().Context()
	key, format, err := h.target(c, true)
	if err != nil {
		return errors.WithStack(err)
	}

	// Bind params.
	params := UpdatePositionPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	pos := &models.ReadingPosition{
		ServerUUID:               key.ServerUUID,
		LibraryName:              key.LibraryName,
		BookID:                   key.ID,
		Format:                   format,
		DeviceID:                 params.DeviceID,
		ReaderName:               params.ReaderName,
		LastReadPage:             params.LastReadPage,
		LastReadChapter:          params.LastReadChapter,
		LastChapterProgress:      params.LastChapterProgress,
		LastProgress:             params.LastProgress,
		MaxPage:                  params.MaxPage,
		LastPositionPage:         params.LastPositionPage,
		LastPositionX:            params.LastPositionX,
		LastPositionY:            params.LastPositionY,
		StructuralStyle:          params.StructuralStyle,
		StructuralRootPageNumber: params.StructuralRootPageNumber,
		PositionTrackingStyle:    params.PositionTrackingStyle,
		TakePrecedence:           params.TakePrecedence,
	}
	if params.Epoch != nil {
		pos.Epoch = *params.Epoch
	}

	err = h.annotationService.UpdatePosition(ctx, pos, UpdatePositionOptions{
		RecordSession: params.RecordSession == nil || *params.RecordSession,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, pos))
}

func (h *handler) addBookmark(c echo.Context) error {
	ctx := c.Request().Context()
	key, format, err := h.target(c, true)
	if err != nil {
		return errors.WithStack(err)
	}

	// Bind params.
	params := AddBookmarkPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	bm := &models.Bookmark{
		ServerUUID:  key.ServerUUID,
		LibraryName: key.LibraryName,
		BookID:      key.ID,
		Format:      format,
		Pos:         params.Pos,
		PosType:     params.PosType,
		Title:       params.Title,
	}
	if err := h.annotationService.AddBookmark(ctx, bm); err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusCreated, bm))
}

func (h *handler) removeBookmark(c echo.Context) error {
	ctx := c.Request().Context()
	key, format, err := h.target(c, true)
	if err != nil {
		return errors.WithStack(err)
	}

	// Bind params.
	params := RemoveBookmarkQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	if err := h.annotationService.RemoveBookmark(ctx, key, format, params.Pos); err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.NoContent(http.StatusNoContent))
}

func (h *handler) saveHighlight(c echo.Context) error {
	ctx := c.Request().Context()
	key, format, err := h.target(c, true)
	if err != nil {
		return errors.WithStack(err)
	}

	// Bind params.
	params := SaveHighlightPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	hl := &models.Highlight{
		ServerUUID:      key.ServerUUID,
		LibraryName:     key.LibraryName,
		BookID:          key.ID,
		Format:          format,
		UUID:            params.UUID,
		Type:            params.Type,
		Style:           params.Style,
		Note:            params.Note,
		HighlightedText: params.HighlightedText,
		StartCFI:        params.StartCFI,
		EndCFI:          params.EndCFI,
		SpineIndex:      params.SpineIndex,
		Page:            params.Page,
		StartOffset:     params.StartOffset,
		EndOffset:       params.EndOffset,
	}
	if err := h.annotationService.SaveHighlight(ctx, hl); err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, hl))
}

func (h *handler) removeHighlight(c echo.Context) error {
	ctx := c.Request().Context()
	key, format, err := h.target(c, true)
	if err != nil {
		return errors.WithStack(err)
	}

	if err := h.annotationService.RemoveHighlight(ctx, key, format, c.Param("uuid")); err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.NoContent(http.StatusNoContent))
}

func (h *handler) listSessions(c echo.Context) error {
	ctx := c.Request().Context()
	key, _, err := h.target(c, false)
	if err != nil {
		return errors.WithStack(err)
	}

	// Bind params.
	params := ListSessionsQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	sessions, err := h.annotationService.ListSessions(ctx, ListSessionsOptions{
		Book:     &key,
		DeviceID: params.DeviceID,
		Limit:    &params.Limit,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Sessions []*models.ReadingSession `json:"sessions"`
	}{sessions}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}

func (h *handler) closeSession(c echo.Context) error {
	ctx := c.Request().Context()
	key, _, err := h.target(c, false)
	if err != nil {
		return errors.WithStack(err)
	}

	// Bind params.
	params := CloseSessionPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	session, err := h.annotationService.CloseSession(ctx, CloseSessionOptions{
		Book:     key,
		DeviceID: params.DeviceID,
		Page:     params.Page,
		X:        params.X,
		Y:        params.Y,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, session))
}
