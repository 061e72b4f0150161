package catalogsync

import (
	"github.com/labstack/echo/v4"
	"github.com/shishobooks/shelfsync/pkg/jobs"
	"github.com/shishobooks/shelfsync/pkg/libraries"
)

func RegisterRoutes(e *echo.Echo, tracker *Tracker, libraryService *libraries.Service, jobService *jobs.Service) {
	h := &handler{
		tracker:        tracker,
		libraryService: libraryService,
		jobService:     jobService,
	}

	e.POST("/libraries/:server/:name/sync", h.sync)
	e.GET("/libraries/status", h.status)
	e.GET("/libraries/status/events", h.events)
}
