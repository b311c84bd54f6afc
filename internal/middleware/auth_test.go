package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nutriplano/internal/util"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jwtSecret = "super-secret-jwt-token-with-at-least-32-characters"

func TestAuthMiddleware(t *testing.T) {
	var gotUser, gotEmail string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotEmail, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := AuthMiddleware(jwtSecret, zerolog.Nop())(next)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, util.Claims{
		Email: "ana@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(jwtSecret))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "u1", gotUser)
	assert.Equal(t, "ana@example.com", gotEmail)
}

func TestAuthMiddlewareRejects(t *testing.T) {
	called := false
	h := AuthMiddleware(jwtSecret, zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	for _, header := range []string{"", "Bearer", "Token abc", "Bearer abc.def.ghi"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, header)
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	}
	assert.False(t, called)
}

func TestUserFromContextEmpty(t *testing.T) {
	_, _, ok := UserFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.False(t, ok)
}
