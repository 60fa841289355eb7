package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"

	"github.com/99minutos/starter/internal/core/domain"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Port            string        `env:"PORT,             default=8080"`
	Env             string        `env:"ENV,              default=production"`
	LogLevel        string        `env:"LOG_LEVEL,        default=info"`
	JWTSecret       string        `env:"JWT_SECRET,       required"`
	Domain          string        `env:"DOMAIN,           required"`
	SessionTTL      time.Duration `env:"SESSION_TTL,      default=12h"`
	LoginRoles      []string      `env:"LOGIN_ROLES,      default=admin"`
	TrustProxy      bool          `env:"TRUST_PROXY,      default=false"`
	HashWorkers     int           `env:"HASH_WORKERS,     default=0"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT, default=10s"`

	DB        DBConfig
	Mongo     MongoConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Argon2    Argon2Config
	Admin     AdminConfig
}

type DBConfig struct {
	Driver string `env:"DB_DRIVER, default=sqlite"`
	DSN    string `env:"DB_DSN,    default=file:starter.db?_foreign_keys=on"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=starter"`
}

// RedisConfig is optional; an empty Addr disables Redis.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB, default=0"`
}

type RateLimitConfig struct {
	Backend      string        `env:"RATE_LIMIT_BACKEND,       default=memory"`
	LoginEvery   time.Duration `env:"RATE_LIMIT_LOGIN_EVERY,   default=120s"`
	LoginBurst   int           `env:"RATE_LIMIT_LOGIN_BURST,   default=1"`
	GeneralRate  float64       `env:"RATE_LIMIT_GENERAL_RATE,  default=100"`
	GeneralBurst int           `env:"RATE_LIMIT_GENERAL_BURST, default=100"`
}

type Argon2Config struct {
	MemoryKiB   uint32 `env:"ARGON2_MEMORY_KIB,  default=65536"`
	Time        uint32 `env:"ARGON2_TIME,        default=3"`
	Parallelism uint8  `env:"ARGON2_PARALLELISM, default=1"`
}

// AdminConfig seeds the first admin account when the user store is empty.
type AdminConfig struct {
	Email    string `env:"ADMIN_EMAIL"`
	Password string `env:"ADMIN_PASSWORD"`
}

// Load reads configuration from environment variables using go-envconfig.
// Outside production a .env file in the working directory is loaded first;
// variables already set in the environment win.
func Load(ctx context.Context) (*Config, error) {
	if os.Getenv("ENV") != EnvProduction {
		_ = godotenv.Load()
	}
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith is Load without the .env step, reading from lookuper.
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		if errors.Is(err, envconfig.ErrMissingRequired) {
			return nil, domain.NewAuthError(domain.ConfigurationError, err)
		}
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values go-envconfig cannot express as tags.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return domain.NewAuthError(domain.ConfigurationError, errors.New("JWT_SECRET is empty"))
	}
	if strings.TrimSpace(c.Domain) == "" {
		return errors.New("config: DOMAIN is empty")
	}

	switch c.Env {
	case EnvDevelopment, EnvProduction:
	default:
		return fmt.Errorf("config: ENV must be %q or %q, got %q", EnvDevelopment, EnvProduction, c.Env)
	}

	switch c.DB.Driver {
	case "sqlite", "postgres", "mongo":
	default:
		return fmt.Errorf("config: unsupported DB_DRIVER %q", c.DB.Driver)
	}

	switch c.RateLimit.Backend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return errors.New("config: RATE_LIMIT_BACKEND=redis requires REDIS_ADDR")
		}
	default:
		return fmt.Errorf("config: unsupported RATE_LIMIT_BACKEND %q", c.RateLimit.Backend)
	}
	if c.RateLimit.LoginEvery <= 0 || c.RateLimit.LoginBurst < 1 ||
		c.RateLimit.GeneralRate <= 0 || c.RateLimit.GeneralBurst < 1 {
		return errors.New("config: rate limits must be positive")
	}

	if c.SessionTTL < time.Second {
		return fmt.Errorf("config: SESSION_TTL must be at least 1s, got %s", c.SessionTTL)
	}

	for _, r := range c.LoginRoles {
		if domain.ParseRole(r) == domain.RoleNone {
			return fmt.Errorf("config: unknown role %q in LOGIN_ROLES", r)
		}
	}

	if (c.Admin.Email == "") != (c.Admin.Password == "") {
		return errors.New("config: ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}
	return nil
}

func (c *Config) IsProduction() bool { return c.Env == EnvProduction }

// LoginCapability is the set of roles allowed to sign in and reach the
// protected pages.
func (c *Config) LoginCapability() domain.Capability {
	roles := make([]domain.Role, 0, len(c.LoginRoles))
	for _, r := range c.LoginRoles {
		roles = append(roles, domain.ParseRole(r))
	}
	return domain.RequireRoles(roles...)
}
