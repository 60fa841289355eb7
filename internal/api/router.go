package api

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/99minutos/starter/internal/api/handler"
	"github.com/99minutos/starter/internal/api/middleware"
	"github.com/99minutos/starter/internal/core/domain"
	"github.com/99minutos/starter/internal/core/ports"
	"github.com/99minutos/starter/internal/infrastructure/http/handlers"
	"github.com/99minutos/starter/web"
)

const bodyLimit = "64K"

// RouterOptions carries everything NewRouter needs besides the core services.
type RouterOptions struct {
	Production bool
	// TrustProxy makes c.RealIP() honour X-Forwarded-For. Only enable it
	// behind a proxy that overwrites the header.
	TrustProxy bool
	Cookie     handler.CookieConfig
	// Capability guards the protected pages.
	Capability domain.Capability

	LoginLimit    middleware.RateLimitConfig
	RegisterLimit middleware.RateLimitConfig
	GeneralLimit  middleware.RateLimitConfig

	Readiness []handlers.Dependency

	// Registry receives the HTTP metrics. Nil means the default Prometheus
	// registry, which also holds the application metrics.
	Registry *prometheus.Registry
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(authService ports.AuthService, tokens ports.TokenCodec, opts RouterOptions, log zerolog.Logger) (*echo.Echo, error) {
	renderer, err := handler.NewRenderer(web.Templates)
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = renderer
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(log, !opts.Production)
	if opts.TrustProxy {
		e.IPExtractor = echo.ExtractIPFromXFFHeader()
	} else {
		e.IPExtractor = echo.ExtractIPDirect()
	}

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestIDWithConfig(echomiddleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RequestLogger(log))
	e.Use(middleware.SecurityHeaders(opts.Production))
	e.Use(echomiddleware.BodyLimit(bodyLimit))
	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if opts.Registry != nil {
		registerer, gatherer = opts.Registry, opts.Registry
	}
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "starter",
		Registerer: registerer,
		Skipper:    skipOps,
	}))

	general := opts.GeneralLimit
	general.Skipper = skipOps
	e.Use(middleware.RateLimit(general, log))

	// --- Dependencies ---
	authHandler := handler.NewAuthHandler(authService, opts.Cookie, log)
	indexHandler := handler.NewIndexHandler()

	// --- Auth routes ---
	e.GET("/login", authHandler.LoginPage)
	e.POST("/login", authHandler.Login, middleware.RateLimit(opts.LoginLimit, log))
	e.GET("/register", authHandler.RegisterPage)
	e.POST("/register", authHandler.Register, middleware.RateLimit(opts.RegisterLimit, log))
	e.POST("/logout", authHandler.Logout)

	// --- Protected pages ---
	guard := middleware.Auth(tokens, opts.Capability)
	e.GET("/", indexHandler.Show, guard)

	// --- Static assets ---
	e.StaticFS("/static", echo.MustSubFS(web.Static, "static"))

	// --- Health probes and metrics (no auth required) ---
	healthHandler := handlers.NewHealthHandler()
	healthDepsHandler := handlers.NewHealthDependenciesHandler(opts.Readiness...)

	e.GET("/health", healthHandler.Liveness)
	e.GET("/health/ready", healthDepsHandler.Readiness)
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: gatherer}))

	return e, nil
}

func skipOps(c echo.Context) bool {
	p := c.Request().URL.Path
	return p == "/metrics" || strings.HasPrefix(p, "/health")
}
