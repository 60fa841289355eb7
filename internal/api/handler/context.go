package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/99minutos/starter/internal/api/middleware"
	"github.com/99minutos/starter/internal/core/domain"
)

// ctxPrincipal returns the principal injected by the auth guard. A handler
// mounted without the guard fails closed with TokenMissing.
func ctxPrincipal(c echo.Context) (domain.Principal, error) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return domain.Principal{}, domain.NewAuthError(domain.TokenMissing, nil)
	}
	return p, nil
}
