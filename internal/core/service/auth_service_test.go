package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/starter/internal/core/domain"
	"github.com/99minutos/starter/internal/core/ports"
	"github.com/99minutos/starter/internal/infrastructure/password"
	"github.com/99minutos/starter/internal/infrastructure/token"
)

type stubUserRepo struct {
	mu     sync.Mutex
	users  map[string]*domain.User
	nextID int64
	err    error
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{users: make(map[string]*domain.User)}
}

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}

func (r *stubUserRepo) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.users[user.Email]; exists {
		return nil, domain.ErrUserExists
	}
	r.nextID++
	copy := cloneUser(user)
	copy.ID = r.nextID
	r.users[copy.Email] = cloneUser(copy)
	return copy, nil
}

func (r *stubUserRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	if u, ok := r.users[email]; ok {
		return cloneUser(u), nil
	}
	return nil, domain.ErrUserNotFound
}

func (r *stubUserRepo) Count(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.users)), nil
}

// countingHasher stores "h:"+password and records every call.
type countingHasher struct {
	hashCalls   atomic.Int32
	verifyCalls atomic.Int32
	hashDelay   time.Duration
	hashErr     error

	mu       sync.Mutex
	verified []string
}

func (h *countingHasher) Hash(pw string) (string, error) {
	h.hashCalls.Add(1)
	time.Sleep(h.hashDelay)
	if h.hashErr != nil {
		return "", h.hashErr
	}
	return "h:" + pw, nil
}

func (h *countingHasher) Verify(pw, hash string) bool {
	h.verifyCalls.Add(1)
	h.mu.Lock()
	h.verified = append(h.verified, hash)
	h.mu.Unlock()
	return hash == "h:"+pw
}

type stubCodec struct {
	issued []domain.SessionClaims
	err    error
}

func (c *stubCodec) Issue(subject int64, role domain.Role, ttl time.Duration) (string, domain.SessionClaims, error) {
	if c.err != nil {
		return "", domain.SessionClaims{}, c.err
	}
	claims := domain.SessionClaims{Subject: subject, Role: role, ExpiresAt: time.Now().Add(ttl).Unix()}
	c.issued = append(c.issued, claims)
	return "signed-token", claims, nil
}

func (c *stubCodec) Validate(string) (domain.SessionClaims, error) {
	return domain.SessionClaims{}, errors.New("not used")
}

// inlinePool runs jobs on the calling goroutine.
type inlinePool struct {
	jobs atomic.Int32
	err  error
}

func (p *inlinePool) Do(_ context.Context, job func()) error {
	if p.err != nil {
		return p.err
	}
	p.jobs.Add(1)
	job()
	return nil
}

func newTestService(repo *stubUserRepo, hasher ports.PasswordHasher, codec ports.TokenCodec, pool ports.WorkerPool) *AuthService {
	return NewAuthService(repo, hasher, codec, pool, AuthOptions{
		SessionTTL:      time.Hour,
		LoginCapability: domain.AdminOnly,
	}, zerolog.Nop())
}

func seedUser(t *testing.T, repo *stubUserRepo, email, pw string, role domain.Role) *domain.User {
	t.Helper()
	u, err := repo.Create(context.Background(), &domain.User{Email: email, PasswordHash: "h:" + pw, Role: role})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func TestAuthService_Login_Success(t *testing.T) {
	repo := newStubUserRepo()
	admin := seedUser(t, repo, "carol@example.com", "s3cret-pass", domain.RoleAdmin)
	hasher := &countingHasher{}
	codec := &stubCodec{}
	pool := &inlinePool{}
	svc := newTestService(repo, hasher, codec, pool)

	session, err := svc.Login(context.Background(), "  Carol@Example.com ", "s3cret-pass")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if session.Token == "" {
		t.Fatal("expected token, got empty")
	}
	if session.Claims.Subject != admin.ID || session.Claims.Role != domain.RoleAdmin {
		t.Fatalf("unexpected claims: %+v", session.Claims)
	}
	if got := hasher.verifyCalls.Load(); got != 1 {
		t.Fatalf("expected exactly one verify, got %d", got)
	}
	if got := hasher.hashCalls.Load(); got != 0 {
		t.Fatalf("dummy hash should not be needed for a known account, got %d hash calls", got)
	}
	if got := pool.jobs.Load(); got != 1 {
		t.Fatalf("verify should run on the pool, got %d jobs", got)
	}
}

func TestAuthService_Login_WrongPassword(t *testing.T) {
	repo := newStubUserRepo()
	seedUser(t, repo, "dave@example.com", "goodpassword", domain.RoleAdmin)
	hasher := &countingHasher{}
	codec := &stubCodec{}
	svc := newTestService(repo, hasher, codec, &inlinePool{})

	_, err := svc.Login(context.Background(), "dave@example.com", "badpassword")
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if got := hasher.verifyCalls.Load(); got != 1 {
		t.Fatalf("expected exactly one verify, got %d", got)
	}
	if len(codec.issued) != 0 {
		t.Fatal("no token should be issued on rejection")
	}
}

func TestAuthService_Login_UnknownEmailUsesDummyHash(t *testing.T) {
	repo := newStubUserRepo()
	hasher := &countingHasher{}
	svc := newTestService(repo, hasher, &stubCodec{}, &inlinePool{})

	_, err := svc.Login(context.Background(), "ghost@example.com", "whatever1")
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if got := hasher.verifyCalls.Load(); got != 1 {
		t.Fatalf("expected exactly one verify, got %d", got)
	}
	if hasher.verified[0] != "h:"+dummyPassword {
		t.Fatalf("expected comparison against dummy hash, got %q", hasher.verified[0])
	}
}

func TestAuthService_Login_FailuresAreIndistinguishable(t *testing.T) {
	repo := newStubUserRepo()
	seedUser(t, repo, "admin@example.com", "adminpass1", domain.RoleAdmin)
	seedUser(t, repo, "user@example.com", "userpass11", domain.RoleUser)
	svc := newTestService(repo, &countingHasher{}, &stubCodec{}, &inlinePool{})
	ctx := context.Background()

	_, unknown := svc.Login(ctx, "nobody@example.com", "adminpass1")
	_, wrongPw := svc.Login(ctx, "admin@example.com", "nope-nope")
	_, wrongRole := svc.Login(ctx, "user@example.com", "userpass11")

	for name, err := range map[string]error{"unknown email": unknown, "wrong password": wrongPw, "wrong role": wrongRole} {
		if err != domain.ErrInvalidCredentials {
			t.Errorf("%s: expected the shared ErrInvalidCredentials value, got %v", name, err)
		}
	}
}

func TestAuthService_Login_UserRoleDeniedForAdminCapability(t *testing.T) {
	repo := newStubUserRepo()
	seedUser(t, repo, "erin@example.com", "correct-horse", domain.RoleUser)
	codec := &stubCodec{}
	svc := newTestService(repo, &countingHasher{}, codec, &inlinePool{})

	_, err := svc.Login(context.Background(), "erin@example.com", "correct-horse")
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if len(codec.issued) != 0 {
		t.Fatal("no token should be issued for a role outside the login capability")
	}
}

func TestAuthService_Login_CapabilityIsConfigurable(t *testing.T) {
	repo := newStubUserRepo()
	seedUser(t, repo, "erin@example.com", "correct-horse", domain.RoleUser)
	svc := NewAuthService(repo, &countingHasher{}, &stubCodec{}, &inlinePool{}, AuthOptions{
		SessionTTL:      time.Hour,
		LoginCapability: domain.RequireRoles(domain.RoleAdmin, domain.RoleUser),
	}, zerolog.Nop())

	session, err := svc.Login(context.Background(), "erin@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if session.Claims.Role != domain.RoleUser {
		t.Fatalf("unexpected role %s", session.Claims.Role)
	}
}

func TestAuthService_Login_RepositoryError(t *testing.T) {
	repo := newStubUserRepo()
	repo.err = errors.New("connection refused")
	hasher := &countingHasher{}
	svc := newTestService(repo, hasher, &stubCodec{}, &inlinePool{})

	_, err := svc.Login(context.Background(), "a@example.com", "password1")
	if err == nil || errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected wrapped storage error, got %v", err)
	}
}

func TestAuthService_Login_PoolError(t *testing.T) {
	repo := newStubUserRepo()
	seedUser(t, repo, "a@example.com", "password1", domain.RoleAdmin)
	svc := newTestService(repo, &countingHasher{}, &stubCodec{}, &inlinePool{err: context.Canceled})

	_, err := svc.Login(context.Background(), "a@example.com", "password1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestAuthService_DummyHashComputedOnce(t *testing.T) {
	repo := newStubUserRepo()
	hasher := &countingHasher{hashDelay: 20 * time.Millisecond}
	svc := newTestService(repo, hasher, &stubCodec{}, &inlinePool{})

	const callers = 32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, _ = svc.Login(context.Background(), "ghost@example.com", "password1")
		}()
	}
	close(start)
	wg.Wait()

	if got := hasher.hashCalls.Load(); got != 1 {
		t.Fatalf("expected dummy hash computed once, got %d", got)
	}
	if got := hasher.verifyCalls.Load(); got != callers {
		t.Fatalf("expected %d verifies, got %d", callers, got)
	}
	first := hasher.verified[0]
	for i, h := range hasher.verified {
		if h != first {
			t.Fatalf("caller %d compared against %q, want %q", i, h, first)
		}
	}
}

func TestAuthService_WarmUp(t *testing.T) {
	hasher := &countingHasher{}
	svc := newTestService(newStubUserRepo(), hasher, &stubCodec{}, &inlinePool{})

	if err := svc.WarmUp(context.Background()); err != nil {
		t.Fatalf("warm up: %v", err)
	}
	_, _ = svc.Login(context.Background(), "ghost@example.com", "password1")
	if got := hasher.hashCalls.Load(); got != 1 {
		t.Fatalf("expected a single dummy hash across warm up and login, got %d", got)
	}
}

func TestAuthService_WarmUp_HashingFailure(t *testing.T) {
	hasher := &countingHasher{hashErr: domain.ErrHashing}
	svc := newTestService(newStubUserRepo(), hasher, &stubCodec{}, &inlinePool{})

	if err := svc.WarmUp(context.Background()); !errors.Is(err, domain.ErrHashing) {
		t.Fatalf("expected ErrHashing, got %v", err)
	}
	_, err := svc.Login(context.Background(), "ghost@example.com", "password1")
	if !errors.Is(err, domain.ErrHashing) {
		t.Fatalf("expected login to surface ErrHashing, got %v", err)
	}
}

func TestAuthService_Register_Success(t *testing.T) {
	repo := newStubUserRepo()
	svc := newTestService(repo, &countingHasher{}, &stubCodec{}, &inlinePool{})

	user, err := svc.Register(context.Background(), ports.RegisterInput{
		Email:          " Alice@Example.com",
		Password:       "pass1234",
		RepeatPassword: "pass1234",
	})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if user.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if user.PasswordHash != "h:pass1234" {
		t.Fatalf("expected password to be hashed, got %q", user.PasswordHash)
	}
	if user.Role != domain.RoleUser {
		t.Fatalf("unexpected role: %s", user.Role)
	}
}

func TestAuthService_Register_Validation(t *testing.T) {
	svc := newTestService(newStubUserRepo(), &countingHasher{}, &stubCodec{}, &inlinePool{})

	tests := []struct {
		name string
		in   ports.RegisterInput
		want error
	}{
		{"short password", ports.RegisterInput{Email: "a@example.com", Password: "short", RepeatPassword: "short"}, domain.ErrPasswordTooShort},
		{"mismatch", ports.RegisterInput{Email: "a@example.com", Password: "password1", RepeatPassword: "password2"}, domain.ErrPasswordMismatch},
		{"bad email", ports.RegisterInput{Email: "not-an-email", Password: "password1", RepeatPassword: "password1"}, domain.ErrInvalidEmail},
		{"empty email", ports.RegisterInput{Password: "password1", RepeatPassword: "password1"}, domain.ErrInvalidEmail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Register(context.Background(), tt.in); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestAuthService_Register_Duplicate(t *testing.T) {
	repo := newStubUserRepo()
	svc := newTestService(repo, &countingHasher{}, &stubCodec{}, &inlinePool{})
	in := ports.RegisterInput{Email: "bob@example.com", Password: "password1", RepeatPassword: "password1"}

	if _, err := svc.Register(context.Background(), in); err != nil {
		t.Fatalf("first register: %v", err)
	}
	in.Email = "BOB@example.com"
	if _, err := svc.Register(context.Background(), in); !errors.Is(err, domain.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestAuthService_Register_HashingFailure(t *testing.T) {
	svc := newTestService(newStubUserRepo(), &countingHasher{hashErr: domain.ErrHashing}, &stubCodec{}, &inlinePool{})

	_, err := svc.Register(context.Background(), ports.RegisterInput{
		Email: "a@example.com", Password: "password1", RepeatPassword: "password1",
	})
	if !errors.Is(err, domain.ErrHashing) {
		t.Fatalf("expected ErrHashing, got %v", err)
	}
}

func TestAuthService_SeedAdmin(t *testing.T) {
	repo := newStubUserRepo()
	svc := newTestService(repo, &countingHasher{}, &stubCodec{}, &inlinePool{})
	ctx := context.Background()

	created, err := svc.SeedAdmin(ctx, "Root@Example.com", "bootstrap-pass")
	if err != nil || !created {
		t.Fatalf("expected admin to be seeded, created=%v err=%v", created, err)
	}
	u, _ := repo.FindByEmail(ctx, "root@example.com")
	if u == nil || u.Role != domain.RoleAdmin {
		t.Fatalf("unexpected seeded user: %+v", u)
	}

	created, err = svc.SeedAdmin(ctx, "other@example.com", "bootstrap-pass")
	if err != nil || created {
		t.Fatalf("seed must be skipped once users exist, created=%v err=%v", created, err)
	}
}

func TestAuthService_SeedAdmin_RejectsWeakPassword(t *testing.T) {
	svc := newTestService(newStubUserRepo(), &countingHasher{}, &stubCodec{}, &inlinePool{})

	if _, err := svc.SeedAdmin(context.Background(), "root@example.com", "short"); !errors.Is(err, domain.ErrPasswordTooShort) {
		t.Fatalf("expected domain.ErrPasswordTooShort, got %v", err)
	}
}

// TestAuthService_Login_RealStack runs the flow against argon2id and signed
// tokens to check the pieces agree end to end.
func TestAuthService_Login_RealStack(t *testing.T) {
	hasher, err := password.NewHasher(password.Config{
		MemoryKiB: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
	})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	codec, err := token.NewCodec("integration-secret")
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	svc := NewAuthService(newStubUserRepo(), hasher, codec, &inlinePool{}, AuthOptions{
		SessionTTL:      43200 * time.Second,
		LoginCapability: domain.AdminOnly,
	}, zerolog.Nop())
	ctx := context.Background()

	if _, err := svc.SeedAdmin(ctx, "admin@example.com", "admin-password"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	session, err := svc.Login(ctx, "admin@example.com", "admin-password")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if strings.Count(session.Token, ".") != 2 {
		t.Fatalf("expected a compact JWT, got %q", session.Token)
	}
	claims, err := codec.Validate(session.Token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Role != domain.RoleAdmin {
		t.Fatalf("unexpected role %s", claims.Role)
	}

	if _, err := svc.Login(ctx, "admin@example.com", "wrong-password"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

// TestAuthService_Login_UnknownEmailTimingMatchesWrongPassword times both
// rejection paths on real argon2id. Each runs one verification with the same
// cost parameters, so their medians must agree.
func TestAuthService_Login_UnknownEmailTimingMatchesWrongPassword(t *testing.T) {
	if testing.Short() {
		t.Skip("timing comparison skipped in short mode")
	}

	hasher, err := password.NewHasher(password.Config{
		MemoryKiB: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
	})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	codec, err := token.NewCodec("timing-secret")
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	svc := NewAuthService(newStubUserRepo(), hasher, codec, &inlinePool{}, AuthOptions{
		LoginCapability: domain.AdminOnly,
	}, zerolog.Nop())
	ctx := context.Background()

	if err := svc.WarmUp(ctx); err != nil {
		t.Fatalf("warm up: %v", err)
	}
	if _, err := svc.SeedAdmin(ctx, "admin@example.com", "admin-password"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	timeLogin := func(email string) time.Duration {
		start := time.Now()
		_, err := svc.Login(ctx, email, "wrong-password")
		elapsed := time.Since(start)
		if !errors.Is(err, domain.ErrInvalidCredentials) {
			t.Fatalf("login %s: expected ErrInvalidCredentials, got %v", email, err)
		}
		return elapsed
	}

	// Discard the first round, then interleave so drift hits both paths alike.
	timeLogin("admin@example.com")
	timeLogin("ghost@example.com")

	const trials = 15
	known := make([]time.Duration, 0, trials)
	unknown := make([]time.Duration, 0, trials)
	for i := 0; i < trials; i++ {
		known = append(known, timeLogin("admin@example.com"))
		unknown = append(unknown, timeLogin("ghost@example.com"))
	}

	median := func(d []time.Duration) time.Duration {
		slices.Sort(d)
		return d[len(d)/2]
	}
	mk, mu := median(known), median(unknown)
	ratio := float64(mu) / float64(mk)
	t.Logf("median wrong password %s, unknown email %s, ratio %.2f", mk, mu, ratio)
	if ratio < 0.67 || ratio > 1.5 {
		t.Fatalf("rejection latencies diverge: wrong password %s, unknown email %s", mk, mu)
	}
}
