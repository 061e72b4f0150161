package jobs

import (
	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo, jobService *Service) {
	h := &handler{
		jobService: jobService,
	}

	e.GET("/jobs", h.list)
	e.GET("/jobs/:id", h.retrieve)
	e.POST("/jobs", h.create)
}
