package books

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shishobooks/shelfsync/pkg/errcodes"
	"github.com/shishobooks/shelfsync/pkg/models"
)

type handler struct {
	bookService *Service
}

// BookKeyParam reads the :server/:library/:id route parameters.
func BookKeyParam(c echo.Context) (models.BookKey, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return models.BookKey{}, errcodes.NotFound("Book")
	}
	return models.BookKey{
		ServerUUID:  c.Param("server"),
		LibraryName: c.Param("library"),
		ID:          id,
	}, nil
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()
	key, err := BookKeyParam(c)
	if err != nil {
		return errors.WithStack(err)
	}

	book, err := h.bookService.RetrieveBook(ctx, RetrieveBookOptions{Key: &key})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, book))
}

func (h *handler) update(c echo.Context) error {
	ctx := c.Request().Context()
	key, err := BookKeyParam(c)
	if err != nil {
		return errors.WithStack(err)
	}

	// Bind params.
	params := UpdateBookPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	book, err := h.bookService.RetrieveBook(ctx, RetrieveBookOptions{Key: &key})
	if err != nil {
		return errors.WithStack(err)
	}

	if params.InShelf != nil && *params.InShelf != book.InShelf {
		if err := h.bookService.SetInShelf(ctx, key, *params.InShelf); err != nil {
			return errors.WithStack(err)
		}
	}

	book, err = h.bookService.RetrieveBook(ctx, RetrieveBookOptions{Key: &key})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, book))
}
