package books

import (
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
)

func RegisterRoutes(e *echo.Echo, db *bun.DB) {
	bookService := NewService(db)

	h := &handler{
		bookService: bookService,
	}

	e.GET("/books/:server/:library/:id", h.retrieve)
	e.POST("/books/:server/:library/:id", h.update)
}
