package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/CleanOps/internal/apperr"
	"github.com/dharsanguruparan/CleanOps/internal/model"
)

func sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("backend-secret"))
	require.NoError(t, err)
	return tok
}

func TestInspectReadsIdentity(t *testing.T) {
	now := time.Unix(1700000000, 0)
	tok := sign(t, jwt.MapClaims{"id": 42, "role": "admin", "exp": now.Add(time.Hour).Unix()})

	id, err := Inspect(tok, now)
	require.NoError(t, err)
	require.Equal(t, model.ID(42), id.UserID)
	require.True(t, id.IsAdmin())
	require.Equal(t, now.Add(time.Hour).Unix(), id.ExpiresAt.Unix())

	str := sign(t, jwt.MapClaims{"sub": "7"})
	id, err = Inspect(str, now)
	require.NoError(t, err)
	require.Equal(t, model.ID(7), id.UserID)
	require.False(t, id.IsAdmin())
}

func TestInspectRejects(t *testing.T) {
	now := time.Unix(1700000000, 0)
	cases := map[string]string{
		"empty":     "",
		"garbage":   "not-a-token",
		"expired":   sign(t, jwt.MapClaims{"id": 1, "exp": now.Add(-time.Minute).Unix()}),
		"anonymous": sign(t, jwt.MapClaims{"role": "user"}),
	}
	for name, tok := range cases {
		_, err := Inspect(tok, now)
		require.ErrorIs(t, err, apperr.ErrAuth, name)
	}
}

func TestBearerToken(t *testing.T) {
	tok, err := BearerToken("Bearer abc.def")
	require.NoError(t, err)
	require.Equal(t, "abc.def", tok)

	_, err = BearerToken("")
	require.ErrorIs(t, err, apperr.ErrAuth)
	_, err = BearerToken("Basic xyz")
	require.ErrorIs(t, err, apperr.ErrAuth)
}
