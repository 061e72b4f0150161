package servers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shishobooks/shelfsync/pkg/models"
)

type handler struct {
	serverService *Service
}

func (h *handler) create(c echo.Context) error {
	ctx := c.Request().Context()

	// Bind params.
	params := CreateServerPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	server, err := h.serverService.Probe(ctx, &models.Server{
		Name:      params.Name,
		BaseURL:   params.BaseURL,
		PublicURL: params.PublicURL,
		Username:  params.Username,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, server))
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	servers, err := h.serverService.ListServers(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Servers []*models.Server `json:"servers"`
	}{servers}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}

func (h *handler) update(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("uuid")

	// Bind params.
	params := UpdateServerPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	server, err := h.serverService.RetrieveServer(ctx, RetrieveServerOptions{UUID: &id})
	if err != nil {
		return errors.WithStack(err)
	}

	opts := UpdateServerOptions{Columns: []string{}}

	if params.Name != nil && *params.Name != server.Name {
		server.Name = *params.Name
		opts.Columns = append(opts.Columns, "name")
	}
	if params.BaseURL != nil && *params.BaseURL != server.BaseURL {
		server.BaseURL = *params.BaseURL
		opts.Columns = append(opts.Columns, "base_url")
	}
	if params.PublicURL != nil {
		server.PublicURL = params.PublicURL
		if *params.PublicURL == "" {
			server.PublicURL = nil
		}
		opts.Columns = append(opts.Columns, "public_url")
	}
	if params.Username != nil {
		server.Username = params.Username
		opts.Columns = append(opts.Columns, "username")
	}

	err = h.serverService.UpdateServer(ctx, server, opts)
	if err != nil {
		return errors.WithStack(err)
	}

	server, err = h.serverService.RetrieveServer(ctx, RetrieveServerOptions{UUID: &id})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, server))
}
