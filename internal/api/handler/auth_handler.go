package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/99minutos/starter/internal/api/middleware"
	"github.com/99minutos/starter/internal/core/domain"
	"github.com/99minutos/starter/internal/core/ports"
)

const (
	loginFailedMessage = "Invalid email or password."
	userExistsMessage  = "An account with this email already exists."
	registeredNotice   = "Account created. You can sign in now."
)

// CookieConfig controls the attributes of the session cookie.
type CookieConfig struct {
	Domain string
	Secure bool
}

type AuthHandler struct {
	authService ports.AuthService
	cookie      CookieConfig
	log         zerolog.Logger
	now         func() time.Time
}

func NewAuthHandler(authService ports.AuthService, cookie CookieConfig, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, cookie: cookie, log: log, now: time.Now}
}

type loginRequest struct {
	Email    string `form:"email"`
	Password string `form:"password"`
}

type registerRequest struct {
	Email          string `form:"email" validate:"required,email"`
	Password       string `form:"password" validate:"required,min=8"`
	RepeatPassword string `form:"repeat_password" validate:"required,eqfield=Password"`
}

type loginPage struct {
	Email  string
	Error  string
	Notice string
}

type registerPage struct {
	Email string
	Error string
}

// LoginPage handles GET /login.
func (h *AuthHandler) LoginPage(c echo.Context) error {
	page := loginPage{}
	if c.QueryParam("registered") != "" {
		page.Notice = registeredNotice
	}
	return c.Render(http.StatusOK, "login", page)
}

// Login handles POST /login. Every credential failure re-renders the form
// with the same message.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		h.log.Debug().Err(err).Msg("login form bind failed")
		return c.Render(http.StatusOK, "login", loginPage{Error: loginFailedMessage})
	}

	session, err := h.authService.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			return c.Render(http.StatusOK, "login", loginPage{Email: req.Email, Error: loginFailedMessage})
		}
		return err
	}

	c.SetCookie(h.sessionCookie(session))
	return c.Redirect(http.StatusSeeOther, "/")
}

// RegisterPage handles GET /register.
func (h *AuthHandler) RegisterPage(c echo.Context) error {
	return c.Render(http.StatusOK, "register", registerPage{})
}

// Register handles POST /register and creates a user-role account.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return c.Render(http.StatusBadRequest, "register", registerPage{Error: "Invalid form submission."})
	}
	if err := c.Validate(&req); err != nil {
		return c.Render(http.StatusUnprocessableEntity, "register", registerPage{Email: req.Email, Error: err.Error()})
	}

	_, err := h.authService.Register(c.Request().Context(), ports.RegisterInput{
		Email:          req.Email,
		Password:       req.Password,
		RepeatPassword: req.RepeatPassword,
	})
	switch {
	case err == nil:
		return c.Redirect(http.StatusSeeOther, "/login?registered=1")
	case errors.Is(err, domain.ErrUserExists):
		return c.Render(http.StatusConflict, "register", registerPage{Email: req.Email, Error: userExistsMessage})
	case errors.Is(err, domain.ErrPasswordTooShort),
		errors.Is(err, domain.ErrPasswordMismatch),
		errors.Is(err, domain.ErrInvalidEmail):
		return c.Render(http.StatusUnprocessableEntity, "register", registerPage{Email: req.Email, Error: err.Error()})
	default:
		return err
	}
}

// Logout handles POST /logout by expiring the session cookie.
func (h *AuthHandler) Logout(c echo.Context) error {
	cookie := h.baseCookie()
	cookie.MaxAge = -1
	cookie.Expires = time.Unix(0, 0)
	c.SetCookie(cookie)
	return c.Redirect(http.StatusSeeOther, "/login")
}

// sessionCookie binds Max-Age and Expires to the token's signed expiry so the
// browser drops the cookie when the token stops validating.
func (h *AuthHandler) sessionCookie(s *ports.Session) *http.Cookie {
	expires := s.Claims.Expiry()
	maxAge := int(expires.Sub(h.now()) / time.Second)
	if maxAge < 1 {
		maxAge = 1
	}

	cookie := h.baseCookie()
	cookie.Value = s.Token
	cookie.Expires = expires
	cookie.MaxAge = maxAge
	return cookie
}

func (h *AuthHandler) baseCookie() *http.Cookie {
	return &http.Cookie{
		Name:     middleware.SessionCookie,
		Domain:   h.cookie.Domain,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}
