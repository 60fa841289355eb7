package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/99minutos/starter/internal/core/domain"
)

// errorPage is the data handed to the error template.
type errorPage struct {
	Status  int
	Title   string
	Message string
	Detail  string
}

type resolved struct {
	code     int
	message  string
	redirect string
	detail   string
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Sends auth failures through TranslateAuthFailure (redirect to login or 500).
//   - Maps known domain errors to their appropriate HTTP status codes.
//   - Logs unexpected errors internally without leaking details to the client.
//   - Renders the error page; error detail is included only in development.
func NewHTTPErrorHandler(log zerolog.Logger, development bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		r := resolveError(err, log, c)
		if r.redirect != "" {
			_ = c.Redirect(http.StatusFound, r.redirect)
			return
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(r.code)
			return
		}

		page := errorPage{Status: r.code, Title: http.StatusText(r.code), Message: r.message}
		if development {
			page.Detail = r.detail
		}
		if renderErr := c.Render(r.code, "error", page); renderErr != nil {
			log.Error().Err(renderErr).Msg("rendering error page")
			_ = c.String(r.code, r.message)
		}
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) resolved {
	// Guard and token failures.
	var ae *domain.AuthError
	if errors.As(err, &ae) {
		out := TranslateAuthFailure(ae.Kind)
		if out.Redirect != "" {
			log.Debug().Str("kind", ae.Kind.String()).Str("path", c.Path()).Msg("auth failure, redirecting to login")
			return resolved{redirect: out.Redirect}
		}
		log.Error().Err(err).Str("kind", ae.Kind.String()).Msg("auth configuration failure")
		return resolved{code: out.Status, message: "internal server error", detail: err.Error()}
	}

	// Echo's own errors (bind failures, 404 from router, rate limiting, etc.)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		r := resolved{code: he.Code, message: fmt.Sprintf("%v", he.Message)}
		if he.Internal != nil {
			r.detail = he.Internal.Error()
		}
		return r
	}

	// Known domain errors → deterministic HTTP codes.
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		return resolved{redirect: LoginPath}
	case errors.Is(err, domain.ErrUserExists):
		return resolved{code: http.StatusConflict, message: "user already exists"}
	case errors.Is(err, domain.ErrHashing):
		log.Error().Err(err).Str("path", c.Path()).Msg("password hashing failed")
		return resolved{code: http.StatusInternalServerError, message: "internal server error", detail: err.Error()}
	}

	// Unexpected error: log the real cause, return a generic message.
	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("unhandled error")

	return resolved{code: http.StatusInternalServerError, message: "internal server error", detail: err.Error()}
}
