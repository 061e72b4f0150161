package search

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shishobooks/shelfsync/pkg/models"
)

type handler struct {
	searchService *Service
}

func (h *handler) query(c echo.Context) error {
	ctx := c.Request().Context()

	// Bind params.
	params := QueryPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	libraries := make([]models.LibraryKey, 0, len(params.Libraries))
	for _, l := range params.Libraries {
		libraries = append(libraries, models.LibraryKey{ServerUUID: l.ServerUUID, Name: l.Name})
	}
	descending := true
	if params.Descending != nil {
		descending = *params.Descending
	}

	keys, err := h.searchService.Query(ctx, QueryOptions{
		Libraries: libraries,
		Criteria: Criteria{
			Query: params.Query,
			Sort:  Sort{Criterion: Criterion(params.Sort), Descending: descending},
		},
		Page:     params.Page,
		PageSize: params.PageSize,
	})
	if errors.Is(err, ErrSuperseded) {
		return echo.NewHTTPError(http.StatusConflict, "Superseded")
	}
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Books []models.BookKey `json:"books"`
	}{keys}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}
