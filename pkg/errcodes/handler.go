package errcodes

import (
	"context"
	"fmt"
	"net/http"

	"github.com/iancoleman/strcase"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/errutils"
)

// StatusClientClosedRequest is reported when the caller went away before
// the handler finished, usually a UI query replaced by a newer one.
const StatusClientClosedRequest = 499

type body struct {
	Error detail `json:"error"`
}

type detail struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
}

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

// Handle writes err as a JSON error body. Errors that are neither echo nor
// errcodes errors are reported as internal server errors.
func (h *Handler) Handle(err error, c echo.Context) {
	log := logger.FromEchoContext(c)
	if errutils.IsIgnorableErr(err) {
		log.Err(err).Warn("broken pipe")
		return
	}

	out := h.describe(err)
	switch {
	case out.StatusCode == StatusClientClosedRequest:
		log.Info("request canceled by client")
	case out.StatusCode >= http.StatusInternalServerError:
		log.Err(err).Error("server error")
	}

	// Streaming handlers may fail after the headers went out.
	if c.Response().Committed {
		return
	}
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(out.StatusCode)
	} else {
		err = c.JSON(out.StatusCode, body{Error: out})
	}
	if err != nil {
		log.Err(errors.WithStack(err)).Error("error handler json error")
	}
}

func (h *Handler) describe(err error) detail {
	var e *Error
	if errors.As(err, &e) {
		return detail{Code: e.Code, Message: e.Message, StatusCode: e.HTTPCode}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := fmt.Sprint(he.Message)
		return detail{Code: strcase.ToSnake(msg), Message: msg, StatusCode: he.Code}
	}

	switch {
	case errors.Is(err, context.Canceled):
		return detail{Code: "client_closed_request", Message: "Client Closed Request", StatusCode: StatusClientClosedRequest}
	case errors.Is(err, context.DeadlineExceeded):
		return detail{Code: "timeout", Message: "Timed out waiting for the catalog server.", StatusCode: http.StatusGatewayTimeout}
	}
	return detail{Code: "internal_server_error", Message: "Internal Server Error", StatusCode: http.StatusInternalServerError}
}
