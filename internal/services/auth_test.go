package services

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/compoundlab-backend/internal/domain/user"
	"github.com/yungbote/compoundlab-backend/internal/platform/apierr"
	"github.com/yungbote/compoundlab-backend/internal/platform/ctxutil"
)

func TestRegisterLoginAndResolveToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	u, err := h.auth.Register(ctx, " Chemist@Example.com ", "s3cret-pass", "Ada Chemist")
	require.NoError(t, err)
	assert.Equal(t, "chemist@example.com", u.Email)
	assert.Equal(t, user.RoleUser, u.Role)
	assert.NotEqual(t, "s3cret-pass", u.Password)

	tok, err := h.auth.Login(ctx, "chemist@example.com", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, "bearer", tok.TokenType)
	assert.Equal(t, int64(60), tok.ExpiresIn)

	authed, err := h.auth.SetContextFromToken(ctx, tok.AccessToken)
	require.NoError(t, err)
	rd := ctxutil.GetRequestData(authed)
	require.NotNil(t, rd)
	assert.Equal(t, u.ID, rd.UserID)
	assert.Equal(t, user.RoleUser, rd.Role)

	me, err := h.auth.Me(authed)
	require.NoError(t, err)
	assert.Equal(t, u.ID, me.ID)
}

func TestRegisterRejectsDuplicatesAndBadInput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.auth.Register(ctx, "dup@example.com", "password1", "")
	require.NoError(t, err)
	_, err = h.auth.Register(ctx, "DUP@example.com", "password2", "")
	assert.True(t, apierr.Is(err, apierr.CodeConflict), "got %v", err)

	_, err = h.auth.Register(ctx, "not-an-email", "password1", "")
	assert.True(t, apierr.Is(err, apierr.CodeValidation))
	_, err = h.auth.Register(ctx, "short@example.com", "short", "")
	assert.True(t, apierr.Is(err, apierr.CodeValidation))
}

func TestLoginFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u, err := h.auth.Register(ctx, "a@example.com", "password1", "")
	require.NoError(t, err)

	_, err = h.auth.Login(ctx, "a@example.com", "wrong-password")
	assert.True(t, apierr.Is(err, apierr.CodeAuth))
	_, err = h.auth.Login(ctx, "missing@example.com", "password1")
	assert.True(t, apierr.Is(err, apierr.CodeAuth))

	require.NoError(t, h.userRepo.SetActive(ctx, nil, u.ID, false))
	_, err = h.auth.Login(ctx, "a@example.com", "password1")
	assert.True(t, apierr.Is(err, apierr.CodeAuth))
}

func TestSetContextFromTokenRejects(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u, err := h.auth.Register(ctx, "b@example.com", "password1", "")
	require.NoError(t, err)

	sign := func(method jwt.SigningMethod, key any, exp time.Time) string {
		tok := jwt.NewWithClaims(method, JWTClaims{
			Role: user.RoleUser,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   u.ID.String(),
				ExpiresAt: jwt.NewNumericDate(exp),
			},
		})
		s, err := tok.SignedString(key)
		require.NoError(t, err)
		return s
	}

	cases := map[string]string{
		"empty":     "",
		"garbage":   "not.a.jwt",
		"expired":   sign(jwt.SigningMethodHS256, []byte("test-secret"), time.Now().Add(-time.Minute)),
		"wrong key": sign(jwt.SigningMethodHS256, []byte("other-secret"), time.Now().Add(time.Minute)),
		"wrong alg": sign(jwt.SigningMethodHS512, []byte("test-secret"), time.Now().Add(time.Minute)),
		"alg none":  sign(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, time.Now().Add(time.Minute)),
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.auth.SetContextFromToken(ctx, tok)
			assert.True(t, apierr.Is(err, apierr.CodeAuth), "got %v", err)
		})
	}

	valid := sign(jwt.SigningMethodHS256, []byte("test-secret"), time.Now().Add(time.Minute))
	require.NoError(t, h.userRepo.SetActive(ctx, nil, u.ID, false))
	_, err = h.auth.SetContextFromToken(ctx, valid)
	assert.True(t, apierr.Is(err, apierr.CodeAuth))
}

func TestCreateAdminPromotesExisting(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u, err := h.auth.Register(ctx, "ops@example.com", "password1", "")
	require.NoError(t, err)

	admin, err := h.auth.CreateAdmin(ctx, "ops@example.com", "ignored-pass", "")
	require.NoError(t, err)
	assert.Equal(t, u.ID, admin.ID)
	assert.Equal(t, user.RoleAdmin, admin.Role)

	fresh, err := h.auth.CreateAdmin(ctx, "root@example.com", "password1", "Root")
	require.NoError(t, err)
	assert.True(t, fresh.IsAdmin())
}
