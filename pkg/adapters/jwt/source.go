// Package jwt turns signed bearer tokens into identity session transitions.
package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/rentsync/pkg/adapters/memory"
	"github.com/aretw0/rentsync/pkg/domain"
	"github.com/golang-jwt/jwt/v5"
)

// Source is an identity session source driven by HS256 tokens.
// It embeds an IdentityBroadcaster, so it satisfies ports.IdentitySource.
type Source struct {
	*memory.IdentityBroadcaster

	secret []byte
	issuer string
	now    func() time.Time
}

type Option func(*Source)

// WithIssuer requires tokens to carry iss == issuer and stamps it on issued tokens.
func WithIssuer(issuer string) Option {
	return func(s *Source) {
		s.issuer = issuer
	}
}

// WithClock overrides time.Now for issuing and validating tokens.
func WithClock(now func() time.Time) Option {
	return func(s *Source) {
		s.now = now
	}
}

// New creates a Source verifying tokens with secret.
func New(secret []byte, opts ...Option) *Source {
	s := &Source{
		IdentityBroadcaster: memory.NewIdentityBroadcaster(),
		secret:              secret,
		now:                 time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Verify validates token and returns its subject.
func (s *Source) Verify(token string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", domain.ErrInvalidToken)
	}
	return claims.Subject, nil
}

// SignIn verifies token and publishes an authenticated identity.
// An invalid token leaves the session unchanged.
func (s *Source) SignIn(token string) (domain.Identity, error) {
	subject, err := s.Verify(token)
	if err != nil {
		return s.Current(), err
	}
	id := domain.Authenticated(subject)
	s.Set(id)
	return id, nil
}

// SignOut publishes an unauthenticated identity.
func (s *Source) SignOut() {
	s.Set(domain.Unauthenticated())
}

// Begin marks the session as pending, e.g. while a token refresh is in flight.
func (s *Source) Begin() {
	s.Set(domain.Pending())
}

// Issue signs a token for subject valid for ttl. Used by admin tooling and tests.
func (s *Source) Issue(subject string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("subject is required")
	}

	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
