// Command server runs the starter web application.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/99minutos/starter/internal/api"
	"github.com/99minutos/starter/internal/api/handler"
	apimw "github.com/99minutos/starter/internal/api/middleware"
	"github.com/99minutos/starter/internal/core/ports"
	"github.com/99minutos/starter/internal/core/service"
	"github.com/99minutos/starter/internal/infrastructure/config"
	"github.com/99minutos/starter/internal/infrastructure/db/mongo"
	"github.com/99minutos/starter/internal/infrastructure/db/redis"
	"github.com/99minutos/starter/internal/infrastructure/db/sqldb"
	httpserver "github.com/99minutos/starter/internal/infrastructure/http"
	"github.com/99minutos/starter/internal/infrastructure/http/handlers"
	"github.com/99minutos/starter/internal/infrastructure/password"
	"github.com/99minutos/starter/internal/infrastructure/queue"
	"github.com/99minutos/starter/internal/infrastructure/ratelimit"
	"github.com/99minutos/starter/internal/infrastructure/token"
	"github.com/99minutos/starter/pkg/logger"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Nothing is bound until the configuration is known to be complete.
	cfg, err := config.Load(ctx)
	if err != nil {
		boot := logger.New(logger.Options{Service: "starter"})
		boot.Fatal().Err(err).Msg("refusing to start: invalid configuration")
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  !cfg.IsProduction(),
		Service: "starter",
	})

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("server exited cleanly")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	codec, err := token.NewCodec(cfg.JWTSecret)
	if err != nil {
		return fmt.Errorf("token codec: %w", err)
	}

	hashCfg := password.DefaultConfig()
	hashCfg.MemoryKiB = cfg.Argon2.MemoryKiB
	hashCfg.Time = cfg.Argon2.Time
	hashCfg.Parallelism = cfg.Argon2.Parallelism
	hasher, err := password.NewHasher(hashCfg)
	if err != nil {
		return fmt.Errorf("password hasher: %w", err)
	}

	pool := queue.NewPool(cfg.HashWorkers, logger.Component(log, "hash-pool"))
	pool.Start(ctx)

	repo, readiness, closeStore, err := openUserStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	var redisClient *goredis.Client
	if cfg.Redis.Addr != "" {
		redisClient, err = redis.Connect(ctx, redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer redisClient.Close()
		readiness = append(readiness, handlers.Dependency{Name: "redis", Check: redis.Check(redisClient)})
	}

	loginPolicy := ratelimit.Policy{Name: "login", Rate: rate.Every(cfg.RateLimit.LoginEvery), Burst: cfg.RateLimit.LoginBurst}
	registerPolicy := loginPolicy
	registerPolicy.Name = "register"
	generalPolicy := ratelimit.Policy{Name: "general", Rate: rate.Limit(cfg.RateLimit.GeneralRate), Burst: cfg.RateLimit.GeneralBurst}

	newLimit := func(p ratelimit.Policy) apimw.RateLimitConfig {
		var store middleware.RateLimiterStore
		if cfg.RateLimit.Backend == "redis" {
			store = redis.NewRateLimitStore(redisClient, p)
		} else {
			mem := ratelimit.NewMemoryStore(p)
			go mem.Run(ctx)
			store = mem
		}
		return apimw.RateLimitConfig{Policy: p.Name, Store: store, RetryAfter: p.RetryAfter()}
	}

	authService := service.NewAuthService(repo, hasher, codec, pool, service.AuthOptions{
		SessionTTL:      cfg.SessionTTL,
		LoginCapability: cfg.LoginCapability(),
	}, logger.Component(log, "auth"))

	warmCtx, warmCancel := context.WithTimeout(ctx, 30*time.Second)
	err = authService.WarmUp(warmCtx)
	warmCancel()
	if err != nil {
		return fmt.Errorf("warm up: %w", err)
	}

	if cfg.Admin.Email != "" {
		if _, err := authService.SeedAdmin(ctx, cfg.Admin.Email, cfg.Admin.Password); err != nil {
			return fmt.Errorf("seed admin: %w", err)
		}
	}

	e, err := api.NewRouter(authService, codec, api.RouterOptions{
		Production: cfg.IsProduction(),
		TrustProxy: cfg.TrustProxy,
		Cookie: handler.CookieConfig{
			Domain: cfg.Domain,
			Secure: cfg.IsProduction(),
		},
		Capability:    cfg.LoginCapability(),
		LoginLimit:    newLimit(loginPolicy),
		RegisterLimit: newLimit(registerPolicy),
		GeneralLimit:  newLimit(generalPolicy),
		Readiness:     readiness,
	}, logger.Component(log, "http"))
	if err != nil {
		return err
	}

	srv, err := httpserver.Listen(e, ":"+cfg.Port, cfg.ShutdownTimeout, log)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	log.Info().
		Str("env", cfg.Env).
		Str("db", cfg.DB.Driver).
		Str("rate_limit", cfg.RateLimit.Backend).
		Int("hash_workers", pool.Size()).
		Msg("starter ready")

	return srv.Run(ctx)
}

// openUserStore selects the user repository from DB_DRIVER.
func openUserStore(ctx context.Context, cfg *config.Config) (ports.UserRepository, []handlers.Dependency, func(), error) {
	if cfg.DB.Driver == "mongo" {
		client, db, err := mongo.Connect(ctx, mongo.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("mongo: %w", err)
		}
		closeFn := func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(shutdownCtx)
		}
		repo := mongo.NewUserRepository(db)
		if err := repo.EnsureIndexes(ctx); err != nil {
			closeFn()
			return nil, nil, nil, fmt.Errorf("mongo indexes: %w", err)
		}
		return repo, []handlers.Dependency{{Name: "mongo", Check: mongo.Check(db)}}, closeFn, nil
	}

	dialect := sqldb.Dialect(cfg.DB.Driver)
	var (
		db  *sql.DB
		err error
	)
	if db, err = sqldb.Open(ctx, dialect, cfg.DB.DSN); err != nil {
		return nil, nil, nil, fmt.Errorf("database: %w", err)
	}
	closeFn := func() { _ = db.Close() }
	return sqldb.NewUserRepository(db, dialect), []handlers.Dependency{{Name: cfg.DB.Driver, Check: sqldb.Check(db)}}, closeFn, nil
}
