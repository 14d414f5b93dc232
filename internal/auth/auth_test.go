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

func useSecret(t *testing.T, value string) {
	t.Helper()
	SetSecret(value)
	t.Cleanup(func() { SetSecret("") })
}

func TestGenerateAndValidateJWT(t *testing.T) {
	useSecret(t, "test-secret")

	token, err := GenerateJWT("alice", RoleOperator, time.Hour)
	require.NoError(t, err)

	claims, err := ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims["sub"])
	assert.Equal(t, RoleOperator, claims["role"])
}

func TestValidateJWTRejectsForeignAndExpiredTokens(t *testing.T) {
	useSecret(t, "test-secret")

	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "mallory",
		"iss": tokenIssuer,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("other-secret"))
	require.NoError(t, err)
	_, err = ValidateJWT(foreign)
	require.ErrorIs(t, err, ErrInvalidToken)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "alice",
		"iss": tokenIssuer,
		"exp": time.Now().Add(-time.Minute).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = ValidateJWT(expired)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = ValidateJWT("garbage")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestSecretFromEnv(t *testing.T) {
	SetSecret("")
	t.Setenv("JWT_SECRET", "")
	_, err := GenerateJWT("alice", RoleOperator, 0)
	require.ErrorIs(t, err, ErrNoSecret)

	t.Setenv("JWT_SECRET", "env-secret")
	token, err := GenerateJWT("alice", RoleOperator, 0)
	require.NoError(t, err)
	_, err = ValidateJWT(token)
	require.NoError(t, err)
}

func TestAuthenticateAttachesIdentity(t *testing.T) {
	useSecret(t, "test-secret")
	token, err := GenerateJWT("alice", RoleOperator, time.Hour)
	require.NoError(t, err)

	var seen Identity
	handler := Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = IdentityFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, Identity{Subject: "alice", Role: RoleOperator}, seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer nope")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.False(t, seen.Authenticated())
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(RoleOperator)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithIdentity(req.Context(), Identity{Subject: "bob", Role: "viewer"}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithIdentity(req.Context(), Identity{Subject: "alice", Role: RoleOperator}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestOperatorVerify(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	operator := Operator{Username: "admin", PasswordHash: []byte(hash)}

	assert.NoError(t, operator.Verify("admin", "hunter2"))
	assert.ErrorIs(t, operator.Verify("admin", "wrong"), ErrInvalidCredentials)
	assert.ErrorIs(t, operator.Verify("root", "hunter2"), ErrInvalidCredentials)
	assert.ErrorIs(t, Operator{Username: "admin"}.Verify("admin", ""), ErrInvalidCredentials)
}
