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

var secret = []byte("test-secret")

func protected(t *testing.T) http.Handler {
	t.Helper()
	return JWTAuth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := UserIDFromContext(r.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(id))
	}))
}

func TestJWTAuth_AcceptsIssuedToken(t *testing.T) {
	token, err := IssueToken(secret, "user-1", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/feed", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	protected(t).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", rec.Body.String())
}

func TestJWTAuth_Rejects(t *testing.T) {
	expired, err := IssueToken(secret, "user-1", -time.Minute)
	require.NoError(t, err)
	foreign, err := IssueToken([]byte("other"), "user-1", time.Hour)
	require.NoError(t, err)
	noUser, err := IssueToken(secret, "", time.Hour)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "user-1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc"},
		{"empty bearer", "Bearer "},
		{"garbage", "Bearer not-a-token"},
		{"expired", "Bearer " + expired},
		{"wrong secret", "Bearer " + foreign},
		{"no user id", "Bearer " + noUser},
		{"unsigned", "Bearer " + none},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/feed", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			protected(t).ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}
