package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caretalk/caretalk/internal/models"
)

const testSecret = "test-secret"

func mintToken(t *testing.T, secret, sub, role string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":  sub,
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestVerifyValidToken(t *testing.T) {
	v := NewIdentityVerifier(testSecret)

	identity, err := v.Verify(mintToken(t, testSecret, "patient-1", models.RolePatient))
	require.NoError(t, err)
	assert.Equal(t, "patient-1", identity.ID)
	assert.Equal(t, models.RolePatient, identity.Role)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	v := NewIdentityVerifier(testSecret)

	_, err := v.Verify(mintToken(t, "other-secret", "patient-1", models.RolePatient))
	require.Error(t, err)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	v := NewIdentityVerifier(testSecret)

	claims := jwt.MapClaims{
		"sub":  "patient-1",
		"role": models.RolePatient,
		"exp":  time.Now().Add(-time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = v.Verify(signed)
	require.Error(t, err)
}

func TestVerifyRejectsUnknownRole(t *testing.T) {
	v := NewIdentityVerifier(testSecret)

	_, err := v.Verify(mintToken(t, testSecret, "someone", "admin"))
	require.Error(t, err)
}

func TestVerifyRejectsMissingSubject(t *testing.T) {
	v := NewIdentityVerifier(testSecret)

	_, err := v.Verify(mintToken(t, testSecret, "", models.RoleClinician))
	require.Error(t, err)
}

func TestRequireIdentityMiddleware(t *testing.T) {
	v := NewIdentityVerifier(testSecret)

	var seen models.Identity
	handler := v.RequireIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetIdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	// No header
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/rooms", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Malformed header
	rec = httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/rooms", nil)
	req.Header.Set("Authorization", "Basic abc")
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Valid token
	rec = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/rooms", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, testSecret, "clinician-1", models.RoleClinician))
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "clinician-1", seen.ID)
	assert.Equal(t, models.RoleClinician, seen.Role)
}
