package libraries

import (
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
)

func RegisterRoutes(e *echo.Echo, db *bun.DB) {
	libraryService := NewService(db)

	h := &handler{
		libraryService: libraryService,
	}

	e.GET("/libraries", h.list)
	e.GET("/libraries/:server/:name", h.retrieve)
	e.POST("/libraries/:server/:name", h.update)
}
