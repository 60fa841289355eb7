// Package token issues and validates the signed session tokens carried in the
// session cookie. Tokens are HS256 JWTs over {sub, role, exp, iat}.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/99minutos/starter/internal/core/domain"
)

var errEmptySecret = errors.New("signing secret is not configured")

// claims is the wire form of domain.SessionClaims. Expiry is checked by
// Codec.Validate itself, after the signature, so the jwt validator is disabled.
type claims struct {
	Sub  int64       `json:"sub"`
	Role domain.Role `json:"role"`
	Exp  int64       `json:"exp"`
	Iat  int64       `json:"iat,omitempty"`
}

func (c claims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Exp, 0)), nil
}

func (c claims) GetIssuedAt() (*jwt.NumericDate, error) {
	if c.Iat == 0 {
		return nil, nil
	}
	return jwt.NewNumericDate(time.Unix(c.Iat, 0)), nil
}

func (c claims) GetNotBefore() (*jwt.NumericDate, error) { return nil, nil }
func (c claims) GetIssuer() (string, error)              { return "", nil }
func (c claims) GetAudience() (jwt.ClaimStrings, error)  { return nil, nil }

func (c claims) GetSubject() (string, error) {
	return strconv.FormatInt(c.Sub, 10), nil
}

// Codec signs and validates session tokens with one process-wide secret.
// It is immutable after construction and safe for concurrent use.
type Codec struct {
	secret []byte
	now    func() time.Time
	parser *jwt.Parser
}

// Option customises a Codec.
type Option func(*Codec)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// NewCodec fails with a ConfigurationError when secret is empty, so a missing
// secret stops the process at startup rather than on the first request.
func NewCodec(secret string, opts ...Option) (*Codec, error) {
	if secret == "" {
		return nil, domain.NewAuthError(domain.ConfigurationError, errEmptySecret)
	}
	c := &Codec{
		secret: []byte(secret),
		now:    time.Now,
		// Strict decoding rejects signatures that differ only in their padding bits.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithStrictDecoding(),
			jwt.WithoutClaimsValidation(),
		),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue signs claims for subject and role that expire ttl from now.
func (c *Codec) Issue(subject int64, role domain.Role, ttl time.Duration) (string, domain.SessionClaims, error) {
	if ttl < time.Second {
		return "", domain.SessionClaims{}, fmt.Errorf("token: ttl must be at least one second, got %s", ttl)
	}

	now := c.now()
	cl := claims{
		Sub:  subject,
		Role: domain.ParseRole(string(role)),
		Exp:  now.Add(ttl).Unix(),
		Iat:  now.Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, cl).SignedString(c.secret)
	if err != nil {
		return "", domain.SessionClaims{}, fmt.Errorf("token: signing: %w", err)
	}
	return signed, domain.SessionClaims{Subject: cl.Sub, Role: cl.Role, ExpiresAt: cl.Exp}, nil
}

// Validate authenticates raw and returns its claims. The signature is checked
// before, and independently of, the expiry: a token forged with a far-future
// expiry still fails as SignatureInvalid.
//
// Header and claims that do not decode make the token TokenMalformed. Once they
// do, any failure of the signature segment, including bytes that are not
// base64url, is SignatureInvalid.
func (c *Codec) Validate(raw string) (domain.SessionClaims, error) {
	if _, _, err := c.parser.ParseUnverified(raw, &claims{}); err != nil {
		return domain.SessionClaims{}, domain.NewAuthError(domain.TokenMalformed, err)
	}

	var cl claims
	_, err := c.parser.ParseWithClaims(raw, &cl, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		return domain.SessionClaims{}, domain.NewAuthError(domain.SignatureInvalid, err)
	}

	if cl.Exp == 0 {
		return domain.SessionClaims{}, domain.NewAuthError(domain.TokenMalformed, errors.New("missing exp claim"))
	}
	// exp == now is still valid.
	if cl.Exp < c.now().Unix() {
		return domain.SessionClaims{}, domain.NewAuthError(domain.TokenExpired, nil)
	}

	return domain.SessionClaims{
		Subject:   cl.Sub,
		Role:      domain.ParseRole(string(cl.Role)),
		ExpiresAt: cl.Exp,
	}, nil
}
