package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sumire/setlist/internal/domain"
)

// internalErrorMessage is the only text server-side failures may surface.
const internalErrorMessage = "Internal server error"

// SuccessBody is the standard success envelope.
type SuccessBody struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

// ErrorBody is the standard failure envelope.
type ErrorBody struct {
	Success  bool   `json:"success"`
	Error    string `json:"error"`
	Field    string `json:"field,omitempty"`
	Resource string `json:"resource,omitempty"`
	ID       string `json:"id,omitempty"`
}

// Operation is a fallible endpoint body. It may write a raw response itself
// (e.g. a redirect) and return (nil, nil).
type Operation func(c echo.Context) (any, error)

// Wrap adapts an Operation into an echo handler. Failures propagate to
// HTTPErrorHandler; successes pass through onSuccess when given, otherwise
// they are wrapped as {success:true, data}.
func Wrap(op Operation, onSuccess ...func(c echo.Context, v any) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		v, err := op(c)
		if err != nil {
			return err
		}
		if c.Response().Committed {
			return nil
		}
		if len(onSuccess) > 0 && onSuccess[0] != nil {
			return onSuccess[0](c, v)
		}
		return c.JSON(http.StatusOK, SuccessBody{Success: true, Data: v})
	}
}

// HTTPErrorHandler is the global error handler: it logs with severity
// matched to the failure kind, then maps the error onto the closed status
// table. Expected authentication failures log tersely so ordinary
// unauthenticated traffic does not flood the logs.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var authErr *domain.AuthenticationError
	if errors.As(err, &authErr) {
		slog.Warn("authentication failed", "path", c.Request().URL.Path, "reason", authErr.Error())
	} else {
		slog.Error("request failed",
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
			"error", err,
		)
	}

	status, body := MapError(err)
	if jsonErr := c.JSON(status, body); jsonErr != nil {
		slog.Error("failed to send error response", "error", jsonErr)
	}
}

// MapError maps an error onto its HTTP status and response body. The
// taxonomy is closed: every recognized variant has a fixed row, and anything
// else collapses to an opaque 500 so internal detail never reaches the
// client.
func MapError(err error) (int, ErrorBody) {
	// echo's own routing errors (404 on unknown path, 405) keep their status.
	var echoErr *echo.HTTPError
	if errors.As(err, &echoErr) {
		msg, _ := echoErr.Message.(string)
		if msg == "" {
			msg = http.StatusText(echoErr.Code)
		}
		return echoErr.Code, ErrorBody{Error: msg}
	}

	var (
		validationErr *domain.ValidationError
		notFoundErr   *domain.NotFoundError
		authnErr      *domain.AuthenticationError
		authzErr      *domain.AuthorizationError
		dbErr         *domain.DatabaseError
		uploadErr     *domain.FileUploadError
	)

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, ErrorBody{Error: validationErr.Message, Field: validationErr.Field}
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound, ErrorBody{Error: notFoundErr.Error(), Resource: notFoundErr.Resource, ID: notFoundErr.ID}
	case errors.As(err, &authnErr):
		return http.StatusUnauthorized, ErrorBody{Error: authnErr.Error()}
	case errors.As(err, &authzErr):
		return http.StatusForbidden, ErrorBody{Error: authzErr.Error(), Resource: authzErr.Resource}
	case errors.As(err, &dbErr), errors.As(err, &uploadErr):
		return http.StatusInternalServerError, ErrorBody{Error: internalErrorMessage}
	default:
		return http.StatusInternalServerError, ErrorBody{Error: internalErrorMessage}
	}
}
