package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavitra93/care-intake-portal/shared/cache"
	"github.com/pavitra93/care-intake-portal/shared/models"
	"github.com/pavitra93/care-intake-portal/shared/remote"
	"github.com/pavitra93/care-intake-portal/shared/session"
	"github.com/pavitra93/care-intake-portal/shared/utils"
)

const testSecret = "test-jwt-secret"

type fakeLookup struct {
	user  *models.AuthUser
	err   error
	calls atomic.Int32
}

func (f *fakeLookup) GetUser(_ context.Context, _ string) (*models.AuthUser, error) {
	f.calls.Add(1)
	return f.user, f.err
}

func init() {
	gin.SetMode(gin.TestMode)
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func userClaims(sub, role, tenantID string) jwt.MapClaims {
	return jwt.MapClaims{
		"sub":   sub,
		"email": sub + "@acme.care",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"app_metadata": map[string]interface{}{
			"role":      role,
			"tenant_id": tenantID,
		},
		// user-editable metadata never grants a role
		"user_metadata": map[string]interface{}{"role": "admin"},
	}
}

func newSessions(t *testing.T) *session.Manager {
	t.Helper()
	c, err := cache.NewLocalCache(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return session.NewManager(c)
}

func newMiddleware(t *testing.T, secret string, lookup UserLookup) (*AuthMiddleware, *session.Manager) {
	t.Helper()
	sessions := newSessions(t)
	am, err := NewAuthMiddleware(secret, lookup, sessions)
	require.NoError(t, err)
	return am, sessions
}

func newRouter(am *AuthMiddleware, guards ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	chain := append([]gin.HandlerFunc{am.RequireAuth()}, guards...)
	chain = append(chain, func(c *gin.Context) {
		user, _ := UserFromContext(c)
		token := remote.AccessTokenFromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"user": user, "token": token})
	})
	r.GET("/me", chain...)
	r.GET("/tenants/:id", chain...)
	return r
}

func do(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp utils.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	return resp.Code
}

func TestRequireAuth_MissingToken(t *testing.T) {
	am, _ := newMiddleware(t, testSecret, nil)
	w := do(newRouter(am), "/me", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, utils.CodeUnauthorized, errorCode(t, w))
}

func TestRequireAuth_LocalVerification(t *testing.T) {
	am, sessions := newMiddleware(t, testSecret, nil)
	token := signToken(t, testSecret, userClaims("u-1", "tenant_owner", "t-1"))

	w := do(newRouter(am), "/me", token)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		User  models.UserInfo `json:"user"`
		Token string          `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "u-1", body.User.UserID)
	assert.Equal(t, models.RoleTenantOwner, body.User.Role)
	assert.Equal(t, "t-1", body.User.TenantID)
	assert.False(t, body.User.IsAdmin)
	assert.Equal(t, token, body.Token)

	sess, err := sessions.Get(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", sess.User.UserID)
}

func TestRequireAuth_RejectsBadTokens(t *testing.T) {
	am, _ := newMiddleware(t, testSecret, nil)
	r := newRouter(am)

	expired := userClaims("u-1", "user", "t-1")
	expired["exp"] = time.Now().Add(-time.Minute).Unix()

	noExp := userClaims("u-1", "user", "t-1")
	delete(noExp, "exp")

	noSub := userClaims("", "user", "t-1")

	cases := map[string]string{
		"garbage":      "not-a-jwt",
		"other secret": signToken(t, "other-secret", userClaims("u-1", "admin", "")),
		"expired":      signToken(t, testSecret, expired),
		"no expiry":    signToken(t, testSecret, noExp),
		"no subject":   signToken(t, testSecret, noSub),
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			w := do(r, "/me", token)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, utils.CodeInvalidSession, errorCode(t, w))
		})
	}
}

func TestRequireAuth_RevokedToken(t *testing.T) {
	am, sessions := newMiddleware(t, testSecret, nil)
	r := newRouter(am)
	token := signToken(t, testSecret, userClaims("u-1", "user", "t-1"))

	require.Equal(t, http.StatusOK, do(r, "/me", token).Code)

	require.NoError(t, sessions.Revoke(context.Background(), token))
	am.Forget(token)

	w := do(r, "/me", token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAuth_LookupFallback(t *testing.T) {
	lookup := &fakeLookup{user: &models.AuthUser{
		ID:           "u-2",
		Email:        "ops@portal.care",
		AppMetadata:  map[string]interface{}{"role": "admin"},
		UserMetadata: map[string]interface{}{"role": "user"},
	}}
	am, _ := newMiddleware(t, "", lookup)
	r := newRouter(am)
	token := signToken(t, "unknown-to-us", userClaims("u-2", "admin", ""))

	require.Equal(t, http.StatusOK, do(r, "/me", token).Code)
	require.Equal(t, http.StatusOK, do(r, "/me", token).Code)
	assert.Equal(t, int32(1), lookup.calls.Load(), "second request is served from the session")

	user, err := am.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, user.IsAdminUser())
}

func TestRequireAuth_LookupFailures(t *testing.T) {
	lookup := &fakeLookup{err: remote.ErrInvalidSession}
	am, _ := newMiddleware(t, "", lookup)
	w := do(newRouter(am), "/me", "opaque")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	lookup = &fakeLookup{err: utils.ErrCircuitOpen}
	am, _ = newMiddleware(t, "", lookup)
	w = do(newRouter(am), "/me", "opaque")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, utils.CodeUnavailable, errorCode(t, w))
}

func TestRequireRole(t *testing.T) {
	am, _ := newMiddleware(t, testSecret, nil)
	r := newRouter(am, am.RequireRole(models.RoleAdmin))

	admin := signToken(t, testSecret, userClaims("u-a", "admin", ""))
	owner := signToken(t, testSecret, userClaims("u-o", "tenant_owner", "t-1"))

	assert.Equal(t, http.StatusOK, do(r, "/me", admin).Code)
	w := do(r, "/me", owner)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, utils.CodeForbidden, errorCode(t, w))
}

func TestRequireTenantAccess(t *testing.T) {
	am, _ := newMiddleware(t, testSecret, nil)
	r := newRouter(am, am.RequireTenantAccess())

	member := signToken(t, testSecret, userClaims("u-1", "user", "t-1"))
	admin := signToken(t, testSecret, userClaims("u-a", "admin", ""))

	assert.Equal(t, http.StatusOK, do(r, "/tenants/t-1", member).Code)
	assert.Equal(t, http.StatusForbidden, do(r, "/tenants/t-2", member).Code)
	assert.Equal(t, http.StatusOK, do(r, "/tenants/t-2", admin).Code)
}

func TestRequireTenantOwnerOrAdmin(t *testing.T) {
	am, _ := newMiddleware(t, testSecret, nil)
	r := newRouter(am, am.RequireTenantOwnerOrAdmin())

	owner := signToken(t, testSecret, userClaims("u-o", "tenant_owner", "t-1"))
	member := signToken(t, testSecret, userClaims("u-1", "user", "t-1"))

	assert.Equal(t, http.StatusOK, do(r, "/tenants/t-1", owner).Code)
	assert.Equal(t, http.StatusForbidden, do(r, "/tenants/t-2", owner).Code)
	assert.Equal(t, http.StatusForbidden, do(r, "/tenants/t-1", member).Code)
}

func TestExtractToken(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, ExtractToken(c))

	c.Request.Header.Set("Authorization", "Bearer abc")
	assert.Equal(t, "abc", ExtractToken(c))

	c.Request.Header.Set("Authorization", "raw")
	assert.Equal(t, "raw", ExtractToken(c))
}
