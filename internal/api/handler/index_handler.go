package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type indexPage struct {
	Subject int64
	Role    string
}

// IndexHandler serves the authenticated landing page.
type IndexHandler struct{}

func NewIndexHandler() *IndexHandler {
	return &IndexHandler{}
}

// Show handles GET /. It must be mounted behind the auth guard.
func (h *IndexHandler) Show(c echo.Context) error {
	p, err := ctxPrincipal(c)
	if err != nil {
		return err
	}
	return c.Render(http.StatusOK, "index", indexPage{Subject: p.Subject, Role: p.Role.String()})
}
