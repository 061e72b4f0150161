package search

import (
	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo, searchService *Service) {
	h := &handler{
		searchService: searchService,
	}

	e.POST("/search", h.query)
}
