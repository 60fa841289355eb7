package middleware

import (
	"errors"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/starter/internal/api/metrics"
	"github.com/99minutos/starter/internal/core/domain"
	"github.com/99minutos/starter/internal/core/ports"
)

// SessionCookie is the name of the cookie carrying the signed session token.
const SessionCookie = "token"

const principalKey = "principal"

// Auth is the full guard for a protected route: it authenticates the session
// cookie and then requires the principal's role to be in capability.
func Auth(codec ports.TokenCodec, capability domain.Capability) echo.MiddlewareFunc {
	authenticate := Authenticate(codec)
	authorize := RBAC(capability)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return authenticate(authorize(next))
	}
}

// Authenticate validates the session cookie and injects the principal into
// context. Failures are returned as *domain.AuthError for the error handler.
func Authenticate(codec ports.TokenCodec) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cookie, err := c.Cookie(SessionCookie)
			if err != nil || cookie.Value == "" {
				return guardFailure(domain.NewAuthError(domain.TokenMissing, nil))
			}

			claims, err := codec.Validate(cookie.Value)
			if err != nil {
				var ae *domain.AuthError
				if !errors.As(err, &ae) {
					ae = domain.NewAuthError(domain.TokenMalformed, err)
				}
				return guardFailure(ae)
			}

			c.Set(principalKey, domain.Principal{Subject: claims.Subject, Role: claims.Role})
			return next(c)
		}
	}
}

// PrincipalFrom returns the principal set by Authenticate.
func PrincipalFrom(c echo.Context) (domain.Principal, bool) {
	p, ok := c.Get(principalKey).(domain.Principal)
	return p, ok
}

func guardFailure(err *domain.AuthError) error {
	metrics.GuardOutcomesTotal.WithLabelValues(err.Kind.String()).Inc()
	return err
}
