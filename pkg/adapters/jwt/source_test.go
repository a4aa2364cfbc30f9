package jwt_test

import (
	"context"
	"testing"
	"time"

	rentjwt "github.com/aretw0/rentsync/pkg/adapters/jwt"
	"github.com/aretw0/rentsync/pkg/domain"
	"github.com/aretw0/rentsync/pkg/ports"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.IdentitySource = (*rentjwt.Source)(nil)

var secret = []byte("test-secret")

func TestSource_SignInAndOut(t *testing.T) {
	src := rentjwt.New(secret, rentjwt.WithIssuer("rentsync-test"))
	assert.Equal(t, domain.Pending(), src.Current())

	token, err := src.Issue("u1", time.Hour)
	require.NoError(t, err)

	id, err := src.SignIn(token)
	require.NoError(t, err)
	assert.Equal(t, domain.Authenticated("u1"), id)
	assert.Equal(t, id, src.Current())

	src.SignOut()
	assert.Equal(t, domain.Unauthenticated(), src.Current())

	src.Begin()
	assert.Equal(t, domain.Pending(), src.Current())
}

func TestSource_RejectsInvalidTokens(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	src := rentjwt.New(secret, rentjwt.WithIssuer("rentsync"), rentjwt.WithClock(func() time.Time { return now }))

	sign := func(method jwt.SigningMethod, key any, claims jwt.RegisteredClaims) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	valid := jwt.RegisteredClaims{
		Subject:   "u1",
		Issuer:    "rentsync",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}

	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute))

	wrongIssuer := valid
	wrongIssuer.Issuer = "someone-else"

	noSubject := valid
	noSubject.Subject = ""

	noExpiry := valid
	noExpiry.ExpiresAt = nil

	tests := map[string]string{
		"garbage":      "not-a-token",
		"wrong secret": sign(jwt.SigningMethodHS256, []byte("other"), valid),
		"wrong alg":    sign(jwt.SigningMethodHS512, secret, valid),
		"expired":      sign(jwt.SigningMethodHS256, secret, expired),
		"wrong issuer": sign(jwt.SigningMethodHS256, secret, wrongIssuer),
		"no subject":   sign(jwt.SigningMethodHS256, secret, noSubject),
		"no expiry":    sign(jwt.SigningMethodHS256, secret, noExpiry),
	}

	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			id, err := src.SignIn(token)
			assert.ErrorIs(t, err, domain.ErrInvalidToken)
			assert.Equal(t, domain.Pending(), id, "session unchanged")
		})
	}

	_, err := src.SignIn(sign(jwt.SigningMethodHS256, secret, valid))
	assert.NoError(t, err)
}

func TestSource_Watch(t *testing.T) {
	src := rentjwt.New(secret)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := src.Watch(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Pending(), <-ch)

	token, err := src.Issue("u7", time.Minute)
	require.NoError(t, err)
	_, err = src.SignIn(token)
	require.NoError(t, err)

	select {
	case id := <-ch:
		assert.Equal(t, domain.Authenticated("u7"), id)
	case <-time.After(time.Second):
		t.Fatal("no identity after SignIn")
	}
}

func TestSource_IssueRequiresSubject(t *testing.T) {
	_, err := rentjwt.New(secret).Issue("", time.Minute)
	assert.Error(t, err)
}
