package security

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markethub/marketplace-sync/pkg/interfaces"
)

type discardLogger struct{}

func (discardLogger) Debug(msg string, args ...interface{}) {}
func (discardLogger) Info(msg string, args ...interface{})  {}
func (discardLogger) Warn(msg string, args ...interface{})  {}
func (discardLogger) Error(msg string, args ...interface{}) {}
func (discardLogger) Fatal(msg string, args ...interface{}) {}

func (discardLogger) DebugWithContext(ctx context.Context, msg string, args ...interface{}) {}
func (discardLogger) InfoWithContext(ctx context.Context, msg string, args ...interface{})  {}
func (discardLogger) WarnWithContext(ctx context.Context, msg string, args ...interface{})  {}
func (discardLogger) ErrorWithContext(ctx context.Context, msg string, args ...interface{}) {}

func (l discardLogger) WithFields(fields ...interfaces.LogField) interfaces.LoggerPort { return l }
func (l discardLogger) WithField(key string, value interface{}) interfaces.LoggerPort  { return l }
func (l discardLogger) WithMarketplace(marketplace string) interfaces.LoggerPort       { return l }
func (discardLogger) Sync() error                                                      { return nil }

func TestGenerateAndValidate(t *testing.T) {
	manager := NewJWTManager("test-secret", time.Hour, "marketplace-sync")

	token, err := manager.Generate("user-1", []string{"admin"})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := manager.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, []string{"admin"}, claims.Roles)
	assert.Equal(t, "marketplace-sync", claims.Issuer)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	manager := NewJWTManager("test-secret", time.Hour, "marketplace-sync")
	other := NewJWTManager("other-secret", time.Hour, "marketplace-sync")

	token, err := manager.Generate("user-1", nil)
	require.NoError(t, err)

	_, err = other.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	manager := NewJWTManager("test-secret", time.Hour, "marketplace-sync")
	manager.expiration = -time.Minute

	token, err := manager.Generate("user-1", nil)
	require.NoError(t, err)

	_, err = manager.Validate(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestValidateRejectsGarbage(t *testing.T) {
	manager := NewJWTManager("test-secret", time.Hour, "marketplace-sync")

	_, err := manager.Validate("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthMiddleware(t *testing.T) {
	manager := NewJWTManager("test-secret", time.Hour, "marketplace-sync")

	var gotUserID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, _ = r.Context().Value("user_id").(string)
		w.WriteHeader(http.StatusOK)
	})
	protected := AuthMiddleware(manager, discardLogger{})(next)

	// Без заголовка авторизации
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// С неверным форматом заголовка
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// С действительным токеном
	token, err := manager.Generate("user-1", []string{"admin"})
	require.NoError(t, err)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", gotUserID)
}

func TestRequireRole(t *testing.T) {
	manager := NewJWTManager("test-secret", time.Hour, "marketplace-sync")

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	protected := AuthMiddleware(manager, discardLogger{})(RequireRole("admin")(next))

	viewerToken, err := manager.Generate("user-1", []string{"viewer"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+viewerToken)
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	adminToken, err := manager.Generate("user-2", []string{"viewer", "admin"})
	require.NoError(t, err)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
