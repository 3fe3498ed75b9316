package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"telecom-routing/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(config.AuthConfig{
		JWTSecret:       "secret",
		JWTIssuer:       "issuer",
		JWTAudience:     "aud",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})
	require.NoError(t, err)
	return m
}

func TestIssueAndVerifyAccessToken(t *testing.T) {
	m := newManager(t)
	now := time.Unix(1700000000, 0).UTC()

	pair, err := m.IssuePair(now, "op-1", "admin")
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, now.Add(15*time.Minute), pair.ExpiresAt)

	claims, err := m.Verify(pair.AccessToken, TokenTypeAccess, now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, "op-1", claims.OperatorID)
	require.Equal(t, "admin", claims.Role)
	require.Equal(t, "op-1", claims.Subject)
}

func TestVerifyRejectsWrongTokenType(t *testing.T) {
	m := newManager(t)
	now := time.Now()
	p, err := m.IssuePair(now, "op-1", "viewer")
	require.NoError(t, err)

	_, err = m.Verify(p.RefreshToken, TokenTypeAccess, now)
	require.ErrorIs(t, err, ErrTokenType)

	claims, err := m.Verify(p.RefreshToken, TokenTypeRefresh, now)
	require.NoError(t, err)
	require.Empty(t, claims.Role)
}

func TestVerifyRejectsExpiredAndForeignTokens(t *testing.T) {
	m := newManager(t)
	now := time.Unix(1700000000, 0).UTC()
	p, err := m.IssuePair(now, "op-1", "admin")
	require.NoError(t, err)

	_, err = m.Verify(p.AccessToken, TokenTypeAccess, now.Add(time.Hour))
	require.Error(t, err)

	other, err := NewManager(config.AuthConfig{JWTSecret: "secret", JWTIssuer: "someone-else"})
	require.NoError(t, err)
	_, err = other.Verify(p.AccessToken, TokenTypeAccess, now)
	require.Error(t, err)
}

func TestRequireAccessToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newManager(t)
	pair, err := m.IssuePair(time.Now(), "op-7", "operator")
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", RequireAccessToken(m), func(c *gin.Context) {
		id, _ := OperatorID(c.Request.Context())
		role, _ := Role(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"operator_id": id, "role": role})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"operator_id":"op-7","role":"operator"}`, w.Body.String())
}
