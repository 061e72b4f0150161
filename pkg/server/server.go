package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/health"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/echo/v4/middleware/recovery"
	"github.com/shishobooks/shelfsync/pkg/annotations"
	"github.com/shishobooks/shelfsync/pkg/binder"
	"github.com/shishobooks/shelfsync/pkg/books"
	"github.com/shishobooks/shelfsync/pkg/catalogsync"
	"github.com/shishobooks/shelfsync/pkg/config"
	"github.com/shishobooks/shelfsync/pkg/errcodes"
	"github.com/shishobooks/shelfsync/pkg/jobs"
	"github.com/shishobooks/shelfsync/pkg/libraries"
	"github.com/shishobooks/shelfsync/pkg/search"
	"github.com/shishobooks/shelfsync/pkg/servers"
	"github.com/uptrace/bun"
)

func New(cfg *config.Config, db *bun.DB, svcs *Services) (*http.Server, error) {
	e, err := newEcho(db, svcs)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Handler:           e,
		ReadHeaderTimeout: 3 * time.Second,
	}

	return srv, nil
}

func newEcho(db *bun.DB, svcs *Services) (*echo.Echo, error) {
	e := echo.New()

	b, err := binder.New()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	e.Binder = b

	e.Use(logger.Middleware())
	e.Use(recovery.Middleware())
	e.Use(middleware.CORS())

	health.RegisterRoutes(e)

	servers.RegisterRoutes(e, svcs.Servers)
	libraries.RegisterRoutes(e, db)
	catalogsync.RegisterRoutes(e, svcs.Tracker, svcs.Libraries, svcs.Jobs)
	books.RegisterRoutes(e, db)
	annotations.RegisterRoutes(e, svcs.Annotations, svcs.Books)
	search.RegisterRoutes(e, svcs.Search)
	jobs.RegisterRoutes(e, svcs.Jobs)

	echo.NotFoundHandler = notFoundHandler
	e.HTTPErrorHandler = errcodes.NewHandler().Handle

	return e, nil
}

func notFoundHandler(c echo.Context) error {
	c.SetPath("/:path")
	return errcodes.NotFound("Page")
}
