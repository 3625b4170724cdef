package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavitra93/care-intake-portal/shared/cache"
	"github.com/pavitra93/care-intake-portal/shared/middleware"
	"github.com/pavitra93/care-intake-portal/shared/models"
	"github.com/pavitra93/care-intake-portal/shared/notifications"
	"github.com/pavitra93/care-intake-portal/shared/session"
)

const testSecret = "notifier-test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func setup(t *testing.T) (*gin.Engine, *notifications.Center) {
	t.Helper()
	kv, err := cache.NewLocalCache(4 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	authMW, err := middleware.NewAuthMiddleware(testSecret, nil, session.NewManager(kv))
	require.NoError(t, err)

	center := notifications.NewCenter(kv)
	router := gin.New()
	registerRoutes(router, center, authMW, kv)
	return router, center
}

func bearer(t *testing.T, userID string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":          userID,
		"email":        userID + "@acme.care",
		"exp":          time.Now().Add(time.Hour).Unix(),
		"app_metadata": map[string]interface{}{"role": "user"},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func call(router *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func feedOf(t *testing.T, w *httptest.ResponseRecorder) FeedResponse {
	t.Helper()
	var env struct {
		Data FeedResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env.Data
}

func TestFeed_RequiresAuth(t *testing.T) {
	router, _ := setup(t)
	assert.Equal(t, http.StatusUnauthorized, call(router, http.MethodGet, "/notifications", "").Code)
	assert.Equal(t, http.StatusOK, call(router, http.MethodGet, "/health", "").Code)
}

func TestFeed_Dropdown(t *testing.T) {
	router, center := setup(t)
	ctx := context.Background()
	token := bearer(t, "u-1")

	w := call(router, http.MethodGet, "/notifications", token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, feedOf(t, w).Notifications)

	first, err := center.Push(ctx, "u-1", models.Notification{Severity: models.SeverityInfo, Message: "Welcome"})
	require.NoError(t, err)
	event := notifications.NewTenantEvent(notifications.EventFeaturesUpdated, models.Tenant{ID: "t-1", Name: "Acme Care"}, "u-1")
	value, err := json.Marshal(event)
	require.NoError(t, err)
	require.NoError(t, notifications.HandleEvent(ctx, center, value))

	_, err = center.Push(ctx, "u-2", models.Notification{Message: "Someone else's"})
	require.NoError(t, err)

	w = call(router, http.MethodGet, "/notifications", token)
	feed := feedOf(t, w)
	require.Len(t, feed.Notifications, 2)
	assert.Equal(t, "Features updated for Acme Care", feed.Notifications[0].Message)
	assert.Equal(t, 2, feed.Unread)

	require.Equal(t, http.StatusOK, call(router, http.MethodPost, "/notifications/"+first.ID+"/read", token).Code)
	w = call(router, http.MethodGet, "/notifications/unread-count", token)
	assert.JSONEq(t, `{"unread":1}`, string(dataOf(t, w)))

	assert.Equal(t, http.StatusNotFound, call(router, http.MethodPost, "/notifications/missing/read", token).Code)
	// another user's notification is not reachable
	assert.Equal(t, http.StatusNotFound, call(router, http.MethodPost, "/notifications/"+first.ID+"/read", bearer(t, "u-2")).Code)

	require.Equal(t, http.StatusOK, call(router, http.MethodPost, "/notifications/read-all", token).Code)
	assert.Equal(t, 0, feedOf(t, call(router, http.MethodGet, "/notifications", token)).Unread)

	require.Equal(t, http.StatusOK, call(router, http.MethodDelete, "/notifications/"+first.ID, token).Code)
	assert.Equal(t, http.StatusNotFound, call(router, http.MethodDelete, "/notifications/"+first.ID, token).Code)
	assert.Len(t, feedOf(t, call(router, http.MethodGet, "/notifications", token)).Notifications, 1)

	require.Equal(t, http.StatusOK, call(router, http.MethodDelete, "/notifications", token).Code)
	assert.Empty(t, feedOf(t, call(router, http.MethodGet, "/notifications", token)).Notifications)

	other, err := center.List(ctx, "u-2")
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func dataOf(t *testing.T, w *httptest.ResponseRecorder) json.RawMessage {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env.Data
}
