package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/sendit/parcel-service/internal/core/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

// errorStatus maps domain sentinels to HTTP codes. First match wins.
var errorStatus = []struct {
	target error
	code   int
}{
	{domain.ErrNotFound, http.StatusNotFound},
	{domain.ErrInvalidTransition, http.StatusBadRequest},
	{domain.ErrValidation, http.StatusBadRequest},
	{domain.ErrForbidden, http.StatusForbidden},
	{domain.ErrConcurrentUpdate, http.StatusConflict},
	{domain.ErrAssignmentExists, http.StatusConflict},
	{domain.ErrDuplicateParcel, http.StatusConflict},
	{domain.ErrUserExists, http.StatusConflict},
}

// NewHTTPErrorHandler renders every error as {"error": "..."}. Domain errors
// keep their message; anything unrecognised is logged with the request ID and
// reported as a bare 500.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, msg := statusFor(err)
		if code == http.StatusInternalServerError {
			log.Error().
				Err(err).
				Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Str("method", c.Request().Method).
				Str("route", c.Path()).
				Msg("unhandled error")
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, errorResponse{Error: msg})
	}
}

func statusFor(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, fmt.Sprint(he.Message)
	}
	for _, m := range errorStatus {
		if errors.Is(err, m.target) {
			return m.code, err.Error()
		}
	}
	return http.StatusInternalServerError, "internal server error"
}
