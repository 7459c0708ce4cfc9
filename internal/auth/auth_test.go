package auth

import (
	"context"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ziadkadry99/docqa/internal/apperr"
	"github.com/ziadkadry99/docqa/internal/db"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	d, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	s := NewStore(d)
	s.cost = bcrypt.MinCost
	return s
}

func TestCreateAndAuthenticate(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	u, err := s.Create(ctx, "alice", "s3cret", "Alice Smith", RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, RoleAdmin, u.Role)

	got, err := s.Authenticate(ctx, "alice", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "Alice Smith", got.FullName)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = s.Authenticate(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = s.Authenticate(ctx, "bob", "s3cret")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestCreateRejectsDuplicatesAndBadInput(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "alice", "pw", "", RoleReader)
	require.NoError(t, err)

	_, err = s.Create(ctx, "alice", "other", "", RoleAdmin)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = s.Create(ctx, "carol", "pw", "", Role("superuser"))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = s.Create(ctx, "", "pw", "", RoleReader)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = s.Create(ctx, "dave", "", "", RoleReader)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestListGetDelete(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	for _, name := range []string{"zed", "amy"} {
		_, err := s.Create(ctx, name, "pw", "", RoleReader)
		require.NoError(t, err)
	}

	users, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "amy", users[0].Username)

	require.NoError(t, s.Delete(ctx, "amy"))
	_, err = s.Get(ctx, "amy")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "amy"), apperr.ErrNotFound)
}

func TestTokensRoundTrip(t *testing.T) {
	tokens, err := NewTokens([]byte("secret"), time.Hour)
	require.NoError(t, err)

	tok, exp, err := tokens.Issue(&User{Username: "alice", Role: RoleAdmin})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, time.Minute)

	claims, err := tokens.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username())
	assert.True(t, claims.IsAdmin())
}

func TestTokensRejectTamperedAndExpired(t *testing.T) {
	tokens, err := NewTokens([]byte("secret"), time.Hour)
	require.NoError(t, err)
	tok, _, err := tokens.Issue(&User{Username: "alice", Role: RoleReader})
	require.NoError(t, err)

	other, err := NewTokens([]byte("different"), time.Hour)
	require.NoError(t, err)
	_, err = other.Parse(tok)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	tokens.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = tokens.Parse(tok)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = tokens.Parse("not-a-token")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestTokensRejectOtherAlgorithms(t *testing.T) {
	tokens, err := NewTokens([]byte("secret"), time.Hour)
	require.NoError(t, err)

	claims := Claims{Role: RoleAdmin, RegisteredClaims: jwtlib.RegisteredClaims{Subject: "mallory"}}
	unsigned, err := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, claims).SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = tokens.Parse(unsigned)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestNewTokensRequiresSecret(t *testing.T) {
	_, err := NewTokens(nil, time.Hour)
	assert.ErrorIs(t, err, apperr.ErrNotConfigured)
}

func TestClaimsContext(t *testing.T) {
	assert.Nil(t, ClaimsFrom(context.Background()))
	c := &Claims{Role: RoleReader}
	assert.Same(t, c, ClaimsFrom(WithClaims(context.Background(), c)))
}
