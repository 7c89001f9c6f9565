package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssue(t *testing.T) {
	issuer := NewIssuer("test-secret", time.Hour)

	token, err := issuer.Issue("user1")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	parsed, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	require.NoError(t, err)
	assert.True(t, parsed.Valid)

	claims, ok := parsed.Claims.(jwt.MapClaims)
	require.True(t, ok)
	assert.Equal(t, "user1", claims["user_id"])
}

func TestParse(t *testing.T) {
	issuer := NewIssuer("test-secret", time.Hour)

	token, err := issuer.Issue("user1")
	require.NoError(t, err)

	userID, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "user1", userID)
}

func TestParse_Invalid(t *testing.T) {
	issuer := NewIssuer("test-secret", time.Hour)

	_, err := issuer.Parse("")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = issuer.Parse("invalid-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongKey, err := NewIssuer("wrong-key", time.Hour).Issue("user1")
	require.NoError(t, err)
	_, err = issuer.Parse(wrongKey)
	assert.ErrorIs(t, err, ErrInvalidToken)

	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = issuer.Parse(noUser)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"user_id": "user1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = issuer.Parse(none)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParse_Expired(t *testing.T) {
	issuer := NewIssuer("test-secret", time.Minute)
	issuer.now = func() time.Time { return time.Now().Add(-time.Hour) }

	token, err := issuer.Issue("user1")
	require.NoError(t, err)

	issuer.now = time.Now
	_, err = issuer.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestFromRequest(t *testing.T) {
	issuer := NewIssuer("test-secret", time.Hour)
	token, err := issuer.Issue("user1")
	require.NoError(t, err)

	t.Run("bearer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		userID, err := issuer.FromRequest(req)
		require.NoError(t, err)
		assert.Equal(t, "user1", userID)
	})

	t.Run("query parameter", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/?access_token="+token, nil)
		userID, err := issuer.FromRequest(req)
		require.NoError(t, err)
		assert.Equal(t, "user1", userID)
	})

	t.Run("wrong scheme", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Basic "+token)
		_, err := issuer.FromRequest(req)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("anonymous", func(t *testing.T) {
		_, err := issuer.FromRequest(httptest.NewRequest(http.MethodGet, "/", nil))
		assert.ErrorIs(t, err, ErrMissingToken)
	})
}
