package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/starter/internal/api/metrics"
	"github.com/99minutos/starter/internal/core/domain"
	"github.com/99minutos/starter/internal/core/ports"
)

const dummyPassword = "dummy_password_for_timing_safety"

// AuthOptions configures AuthService.
type AuthOptions struct {
	// SessionTTL is the signed lifetime of issued tokens.
	SessionTTL time.Duration
	// LoginCapability lists the roles allowed to sign in.
	LoginCapability domain.Capability
}

// AuthService implements registration and the timing-safe login flow.
type AuthService struct {
	repo   ports.UserRepository
	hasher ports.PasswordHasher
	tokens ports.TokenCodec
	pool   ports.WorkerPool
	opts   AuthOptions
	log    zerolog.Logger

	// dummyHash is computed at most once per process and compared against
	// whenever the submitted email has no account.
	dummyHash func() (string, error)
}

func NewAuthService(
	repo ports.UserRepository,
	hasher ports.PasswordHasher,
	tokens ports.TokenCodec,
	pool ports.WorkerPool,
	opts AuthOptions,
	log zerolog.Logger,
) *AuthService {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 12 * time.Hour
	}
	s := &AuthService{
		repo:   repo,
		hasher: hasher,
		tokens: tokens,
		pool:   pool,
		opts:   opts,
		log:    log,
	}
	s.dummyHash = sync.OnceValues(func() (string, error) {
		return hasher.Hash(dummyPassword)
	})
	return s
}

// WarmUp computes the dummy hash ahead of the first login.
func (s *AuthService) WarmUp(ctx context.Context) error {
	var err error
	if poolErr := s.pool.Do(ctx, func() { _, err = s.dummyHash() }); poolErr != nil {
		return poolErr
	}
	if err != nil {
		return fmt.Errorf("computing dummy hash: %w", err)
	}
	return nil
}

// Login verifies credentials and issues a session token. Unknown email, wrong
// password and a role outside the login capability all yield
// domain.ErrInvalidCredentials after exactly one password verification.
func (s *AuthService) Login(ctx context.Context, email, password string) (*ports.Session, error) {
	email = domain.NormalizeEmail(email)

	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("login: find user: %w", err)
	}

	var (
		comparison string
		matched    bool
		hashErr    error
	)
	start := time.Now()
	if poolErr := s.pool.Do(ctx, func() {
		if user != nil {
			comparison = user.PasswordHash
		} else if comparison, hashErr = s.dummyHash(); hashErr != nil {
			return
		}
		matched = s.hasher.Verify(password, comparison)
	}); poolErr != nil {
		metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("login: %w", poolErr)
	}
	metrics.PasswordHashDuration.WithLabelValues("verify").Observe(time.Since(start).Seconds())

	if hashErr != nil {
		metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("login: dummy hash: %w", hashErr)
	}

	if user == nil || !matched || !s.opts.LoginCapability.Allows(user.Role) {
		metrics.LoginAttemptsTotal.WithLabelValues("rejected").Inc()
		s.log.Info().Msg("login rejected")
		return nil, domain.ErrInvalidCredentials
	}

	raw, claims, err := s.tokens.Issue(user.ID, user.Role, s.opts.SessionTTL)
	if err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("login: issue token: %w", err)
	}

	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()
	s.log.Info().Int64("user_id", user.ID).Str("role", user.Role.String()).Msg("login succeeded")
	return &ports.Session{Token: raw, Claims: claims}, nil
}

// Register creates a user-role account.
func (s *AuthService) Register(ctx context.Context, in ports.RegisterInput) (*domain.User, error) {
	email := domain.NormalizeEmail(in.Email)
	switch {
	case len(in.Password) < domain.MinPasswordLength:
		metrics.RegistrationsTotal.WithLabelValues("invalid").Inc()
		return nil, domain.ErrPasswordTooShort
	case in.Password != in.RepeatPassword:
		metrics.RegistrationsTotal.WithLabelValues("invalid").Inc()
		return nil, domain.ErrPasswordMismatch
	case !validEmail(email):
		metrics.RegistrationsTotal.WithLabelValues("invalid").Inc()
		return nil, domain.ErrInvalidEmail
	}

	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		metrics.RegistrationsTotal.WithLabelValues("exists").Inc()
		return nil, domain.ErrUserExists
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		metrics.RegistrationsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("register: find user: %w", err)
	}

	created, err := s.createUser(ctx, email, in.Password, domain.RoleUser)
	if err != nil {
		if errors.Is(err, domain.ErrUserExists) {
			metrics.RegistrationsTotal.WithLabelValues("exists").Inc()
		} else {
			metrics.RegistrationsTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	metrics.RegistrationsTotal.WithLabelValues("created").Inc()
	s.log.Info().Int64("user_id", created.ID).Msg("user registered")
	return created, nil
}

// SeedAdmin creates the first admin account when the store is empty. It
// reports whether an account was created.
func (s *AuthService) SeedAdmin(ctx context.Context, email, password string) (bool, error) {
	count, err := s.repo.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("seed admin: counting users: %w", err)
	}
	if count > 0 {
		s.log.Debug().Msg("users exist, skipping admin seed")
		return false, nil
	}

	email = domain.NormalizeEmail(email)
	if !validEmail(email) {
		return false, domain.ErrInvalidEmail
	}
	if len(password) < domain.MinPasswordLength {
		return false, domain.ErrPasswordTooShort
	}

	created, err := s.createUser(ctx, email, password, domain.RoleAdmin)
	if err != nil {
		return false, fmt.Errorf("seed admin: %w", err)
	}
	s.log.Warn().Int64("user_id", created.ID).Str("email", created.Email).Msg("bootstrap admin account created")
	return true, nil
}

func (s *AuthService) createUser(ctx context.Context, email, password string, role domain.Role) (*domain.User, error) {
	var (
		hash    string
		hashErr error
	)
	start := time.Now()
	if err := s.pool.Do(ctx, func() { hash, hashErr = s.hasher.Hash(password) }); err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	metrics.PasswordHashDuration.WithLabelValues("hash").Observe(time.Since(start).Seconds())
	if hashErr != nil {
		return nil, fmt.Errorf("hash password: %w", hashErr)
	}

	return s.repo.Create(ctx, &domain.User{
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	})
}
