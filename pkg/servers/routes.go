package servers

import (
	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo, serverService *Service) {
	h := &handler{
		serverService: serverService,
	}

	e.GET("/servers", h.list)
	e.POST("/servers", h.create)
	e.POST("/servers/:uuid", h.update)
}
