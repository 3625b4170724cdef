package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/pavitra93/care-intake-portal/shared/cache"
	"github.com/pavitra93/care-intake-portal/shared/config"
	"github.com/pavitra93/care-intake-portal/shared/models"
	"github.com/pavitra93/care-intake-portal/shared/notifications"
	"github.com/pavitra93/care-intake-portal/shared/remote"
	"github.com/pavitra93/care-intake-portal/shared/remote/remotetest"
	"github.com/pavitra93/care-intake-portal/shared/tenantdata"
	"github.com/pavitra93/care-intake-portal/shared/utils"
)

const testJWTSecret = "portal-test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeAuth stands in for the remote auth service
type fakeAuth struct {
	mu sync.Mutex

	session   *models.AuthSession
	signInErr error

	challenge string
	verifier  string
	otpSentTo string
	signedOut []string
	invited   []string
}

func (f *fakeAuth) SignInWithPassword(_ context.Context, _, _ string) (*models.AuthSession, error) {
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	return f.session, nil
}

func (f *fakeAuth) SendOTP(_ context.Context, email, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.otpSentTo = email
	return nil
}

func (f *fakeAuth) VerifyOTP(_ context.Context, _, code string) (*models.AuthSession, error) {
	if code != "123456" {
		return nil, remote.ErrInvalidCredentials
	}
	return f.session, nil
}

func (f *fakeAuth) AuthorizeURL(provider, redirectTo, challenge string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.challenge = challenge
	return "https://auth.test/authorize?provider=" + provider
}

func (f *fakeAuth) ExchangeCode(_ context.Context, _, verifier string) (*models.AuthSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifier = verifier
	return f.session, nil
}

func (f *fakeAuth) Refresh(_ context.Context, _ string) (*models.AuthSession, error) {
	return f.session, nil
}

func (f *fakeAuth) GetUser(_ context.Context, _ string) (*models.AuthUser, error) {
	if f.session == nil || f.session.User == nil {
		return nil, remote.ErrInvalidSession
	}
	return f.session.User, nil
}

func (f *fakeAuth) SignOut(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signedOut = append(f.signedOut, token)
	return nil
}

func (f *fakeAuth) InviteUser(_ context.Context, email, _ string, _ map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invited = append(f.invited, email)
	return nil
}

// recordingPublisher keeps published tenant events
type recordingPublisher struct {
	mu     sync.Mutex
	events []notifications.TenantEvent
}

func (p *recordingPublisher) Publish(e notifications.TenantEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []notifications.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]notifications.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type harness struct {
	router *gin.Engine
	app    *app
	fake   *remotetest.Fake
	auth   *fakeAuth
	events *recordingPublisher
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		AppURL: "https://portal.test",
		Remote: config.RemoteConfig{
			URL:       config.PlaceholderRemoteURL,
			AnonKey:   config.PlaceholderAnonKey,
			JWTSecret: testJWTSecret,
			Driver:    config.DriverREST,
		},
		InviteSecret:    "invite-test-secret",
		InviteTTL:       24 * time.Hour,
		DevtoolsEnabled: true,
	}
}

func newHarness(t *testing.T, mutate ...func(*config.AppConfig)) *harness {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(cfg)
	}

	kv, err := cache.NewLocalCache(8 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	fake := remotetest.New()
	fake.Seed(remote.TableTenants,
		tenantdata.TenantToRow(models.Tenant{ID: "t-1", Name: "Acme Care", Status: models.TenantStatusActive, Features: models.DefaultFeatures(), Branding: models.DefaultBranding()}),
		tenantdata.TenantToRow(models.Tenant{ID: "t-2", Name: "Bright Homes", Status: models.TenantStatusSuspended, Features: models.DefaultFeatures(), Branding: models.DefaultBranding()}),
	)

	auth := &fakeAuth{}
	events := &recordingPublisher{}
	a, err := newApp(cfg, kv, fake, utils.NewCircuitBreaker(5, time.Minute), auth, events, nil)
	require.NoError(t, err)
	a.store.Load(context.Background())

	router := gin.New()
	registerRoutes(router, a)
	return &harness{router: router, app: a, fake: fake, auth: auth, events: events}
}

func (h *harness) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

// signAs signs an access token the way the auth service does
func signAs(t *testing.T, userID string, role models.UserRole, tenantID string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":   userID,
		"email": userID + "@acme.care",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"app_metadata": map[string]interface{}{
			"role":      string(role),
			"tenant_id": tenantID,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

type envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var env envelope[T]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

// mustRaw returns the data member of the envelope as raw JSON
func mustRaw(t *testing.T, w *httptest.ResponseRecorder) json.RawMessage {
	t.Helper()
	return decode[json.RawMessage](t, w).Data
}
