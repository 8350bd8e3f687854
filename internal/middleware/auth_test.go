package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func mintToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func validClaims() Claims {
	return Claims{
		UserID: "user-1",
		OrgID:  "11111111-1111-1111-1111-111111111111",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestValidateToken(t *testing.T) {
	m := NewAuthMiddleware(testSecret)

	claims, err := m.ValidateToken(mintToken(t, testSecret, validClaims()))
	require.NoError(t, err)
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", claims.OrgID)
	assert.Equal(t, "user-1", claims.UserID)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	m := NewAuthMiddleware(testSecret)

	_, err := m.ValidateToken(mintToken(t, "other-secret", validClaims()))
	assert.Error(t, err)
}

func TestValidateTokenExpired(t *testing.T) {
	m := NewAuthMiddleware(testSecret)

	claims := validClaims()
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	_, err := m.ValidateToken(mintToken(t, testSecret, claims))
	assert.Error(t, err)
}

func TestValidateTokenMissingOrg(t *testing.T) {
	m := NewAuthMiddleware(testSecret)

	claims := validClaims()
	claims.OrgID = ""

	_, err := m.ValidateToken(mintToken(t, testSecret, claims))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRequireAuth(t *testing.T) {
	m := NewAuthMiddleware(testSecret)

	var gotOrg, gotUser string
	next := func(w http.ResponseWriter, r *http.Request) {
		gotOrg = GetOrgID(r.Context())
		gotUser = GetUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/measurements", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, testSecret, validClaims()))
	w := httptest.NewRecorder()

	m.RequireAuth(next)(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", gotOrg)
	assert.Equal(t, "user-1", gotUser)
}

func TestRequireAuthRejections(t *testing.T) {
	m := NewAuthMiddleware(testSecret)
	next := func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic dXNlcjpwYXNz"},
		{"garbage token", "Bearer not.a.token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/measurements", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			m.RequireAuth(next)(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}
