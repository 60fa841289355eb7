package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/99minutos/starter/internal/api/metrics"
	"github.com/99minutos/starter/internal/core/domain"
)

// RBAC enforces role-based access control on the principal injected by
// Authenticate. A missing principal is treated as an unauthenticated request.
func RBAC(capability domain.Capability) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := PrincipalFrom(c)
			if !ok {
				return guardFailure(domain.NewAuthError(domain.TokenMissing, nil))
			}
			if !capability.Allows(p.Role) {
				return guardFailure(domain.NewAuthError(domain.RoleUnauthorized, nil))
			}
			metrics.GuardOutcomesTotal.WithLabelValues("granted").Inc()
			return next(c)
		}
	}
}
