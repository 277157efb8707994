package handler

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sumire/setlist/internal/domain"
	"github.com/sumire/setlist/internal/service"
	"github.com/sumire/setlist/internal/session"
)

const contextKeySubject = "session_subject"

// RequestLogger logs each HTTP request with structured fields.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			slog.Info("http request",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", c.Response().Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
			)

			return err
		}
	}
}

// SessionAuth validates the session cookie and injects its subject into the
// echo context.
func SessionAuth(auth *service.AuthService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := session.ExtractToken(c.Request().Header.Get("Cookie"))
			if !ok {
				return &domain.AuthenticationError{Message: "missing session cookie"}
			}

			subject, err := auth.ValidateSessionToken(token)
			if err != nil {
				return &domain.AuthenticationError{Message: "invalid session"}
			}

			c.Set(contextKeySubject, subject)
			return next(c)
		}
	}
}

// SessionSubject extracts the authenticated session subject from echo context.
func SessionSubject(c echo.Context) (string, bool) {
	subject, ok := c.Get(contextKeySubject).(string)
	return subject, ok
}
