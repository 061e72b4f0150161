package libraries

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shishobooks/shelfsync/pkg/models"
)

type handler struct {
	libraryService *Service
}

type libraryResponse struct {
	*models.Library
	Capabilities map[PluginKind]Capability `json:"capabilities"`
}

func newLibraryResponse(library *models.Library) libraryResponse {
	return libraryResponse{library, ResolveCapabilities(library)}
}

func libraryKey(c echo.Context) models.LibraryKey {
	return models.LibraryKey{ServerUUID: c.Param("server"), Name: c.Param("name")}
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()
	key := libraryKey(c)

	library, err := h.libraryService.RetrieveLibrary(ctx, RetrieveLibraryOptions{
		Key: &key,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, newLibraryResponse(library)))
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	// Bind params.
	params := ListLibrariesQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	libraries, err := h.libraryService.ListLibraries(ctx, ListLibrariesOptions{
		ServerUUID:    params.ServerUUID,
		IncludeHidden: params.Hidden,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Libraries []libraryResponse `json:"libraries"`
	}{make([]libraryResponse, 0, len(libraries))}
	for _, l := range libraries {
		resp.Libraries = append(resp.Libraries, newLibraryResponse(l))
	}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}

func (h *handler) update(c echo.Context) error {
	ctx := c.Request().Context()
	key := libraryKey(c)

	// Bind params.
	params := UpdateLibraryPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	// Fetch the library.
	library, err := h.libraryService.RetrieveLibrary(ctx, RetrieveLibraryOptions{
		Key: &key,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	// Keep track of what's been changed.
	opts := UpdateLibraryOptions{Columns: []string{}}

	if params.AutoUpdate != nil && *params.AutoUpdate != library.AutoUpdate {
		library.AutoUpdate = *params.AutoUpdate
		opts.Columns = append(opts.Columns, "auto_update")
	}
	// Hiding is the only way a library goes away; rows stay so in-flight
	// syncs never write to a missing parent.
	if params.Hidden != nil && *params.Hidden != library.Hidden {
		library.Hidden = *params.Hidden
		opts.Columns = append(opts.Columns, "hidden")
	}
	if params.Plugins != nil {
		if library.PluginOverrides == nil {
			library.PluginOverrides = models.PluginOverrides{}
		}
		for kind, p := range params.Plugins {
			library.PluginOverrides[kind] = models.PluginOverride{
				Enabled: p.Enabled,
				Columns: p.Columns,
			}
		}
		opts.Columns = append(opts.Columns, "plugin_overrides")
	}

	// Update the model.
	err = h.libraryService.UpdateLibrary(ctx, library, opts)
	if err != nil {
		return errors.WithStack(err)
	}

	// Reload the model.
	library, err = h.libraryService.RetrieveLibrary(ctx, RetrieveLibraryOptions{
		Key: &key,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, newLibraryResponse(library)))
}
