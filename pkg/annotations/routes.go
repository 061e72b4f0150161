package annotations

import (
	"github.com/labstack/echo/v4"
	"github.com/shishobooks/shelfsync/pkg/books"
)

func RegisterRoutes(e *echo.Echo, annotationService *Service, bookService *books.Service) {
	h := &handler{
		annotationService: annotationService,
		bookService:       bookService,
	}

	g := e.Group("/books/:server/:library/:id")
	g.GET("/annotations", h.list)
	g.GET("/annotations/pending", h.pending)
	g.POST("/annotations/:format", h.merge)
	g.GET("/position", h.latestPosition)
	g.POST("/annotations/:format/position", h.updatePosition)
	g.POST("/annotations/:format/bookmarks", h.addBookmark)
	g.DELETE("/annotations/:format/bookmarks", h.removeBookmark)
	g.POST("/annotations/:format/highlights", h.saveHighlight)
	g.DELETE("/annotations/:format/highlights/:uuid", h.removeHighlight)
	g.GET("/sessions", h.listSessions)
	g.POST("/sessions/close", h.closeSession)
}
