// Package handler adapts the services to HTTP.  Every JSON response uses
// the same envelope: {"success": true, "data": ...} on success and
// {"success": false, "error": "..."} on failure.
package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/taskflow/internal/service"
)

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func ok(c echo.Context, status int, data any) error {
	return c.JSON(status, envelope{Success: true, Data: data})
}

func fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, envelope{Success: false, Error: msg})
}

// statusOf maps service errors onto HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// ErrorWriter turns an error returned by a service into a response.
// Internal errors are logged and hidden behind a generic message.
type ErrorWriter struct{ Log *zap.Logger }

func (w ErrorWriter) write(c echo.Context, err error) error {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		if w.Log != nil {
			w.Log.Error("request failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
				zap.Error(err))
		}
		return fail(c, status, "internal error")
	}
	return fail(c, status, err.Error())
}

// idParam reads a positive numeric path parameter.
func idParam(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: invalid %s", service.ErrValidation, name)
	}
	return id, nil
}

func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return fmt.Errorf("%w: invalid request body", service.ErrValidation)
	}
	return nil
}

func queryUint(c echo.Context, name string) (uint64, error) {
	s := strings.TrimSpace(c.QueryParam(name))
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s", service.ErrValidation, name)
	}
	return n, nil
}

func queryInt(c echo.Context, name string) int {
	n, _ := strconv.Atoi(c.QueryParam(name))
	return n
}

func queryBool(c echo.Context, name string) bool {
	b, _ := strconv.ParseBool(c.QueryParam(name))
	return b
}
