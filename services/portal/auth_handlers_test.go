package main

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/pavitra93/care-intake-portal/shared/models"
	"github.com/pavitra93/care-intake-portal/shared/remote"
	"github.com/pavitra93/care-intake-portal/shared/utils"
)

func ownerSession(accessToken string) *models.AuthSession {
	return &models.AuthSession{
		AccessToken:  accessToken,
		RefreshToken: "refresh-" + accessToken,
		TokenType:    "bearer",
		ExpiresIn:    3600,
		User: &models.AuthUser{
			ID:           "u-owner",
			Email:        "kim@acme.care",
			AppMetadata:  map[string]interface{}{"role": "tenant_owner", "tenant_id": "t-1"},
			UserMetadata: map[string]interface{}{"role": "admin"},
		},
	}
}

func TestLogin_Success(t *testing.T) {
	h := newHarness(t)
	h.auth.session = ownerSession("opaque-access-1")

	w := h.do(http.MethodPost, "/auth/login", "", LoginRequest{Email: "Kim@Acme.care", Password: "pw"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	env := decode[LoginResponse](t, w)
	assert.True(t, env.Success)
	assert.Equal(t, "opaque-access-1", env.Data.AccessToken)
	assert.Equal(t, models.RoleTenantOwner, env.Data.User.Role, "role comes from app_metadata")
	require.NotNil(t, env.Data.ActiveTenant)
	assert.Equal(t, "t-1", env.Data.ActiveTenant.ID)

	// the stored session authenticates later requests
	w = h.do(http.MethodGet, "/auth/session", "opaque-access-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	sess := decode[SessionResponse](t, w)
	assert.Equal(t, "u-owner", sess.Data.User.UserID)
	require.NotNil(t, sess.Data.ActiveTenant)
	assert.Equal(t, "Acme Care", sess.Data.ActiveTenant.Name)
}

func TestLogin_Failures(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPost, "/auth/login", "", map[string]string{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	h.auth.signInErr = remote.ErrInvalidCredentials
	w = h.do(http.MethodPost, "/auth/login", "", LoginRequest{Email: "kim@acme.care", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, utils.CodeUnauthorized, decode[any](t, w).Code)

	h.auth.signInErr = utils.ErrCircuitOpen
	w = h.do(http.MethodPost, "/auth/login", "", LoginRequest{Email: "kim@acme.care", Password: "pw"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	h.auth.signInErr = &remote.Error{Status: http.StatusInternalServerError, Message: "boom"}
	w = h.do(http.MethodPost, "/auth/login", "", LoginRequest{Email: "kim@acme.care", Password: "pw"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, utils.CodeRemoteFailure, decode[any](t, w).Code)
}

func TestLogin_EchoesInvitation(t *testing.T) {
	h := newHarness(t)
	h.auth.session = ownerSession("opaque-access-2")

	invite, err := h.app.codec.Encode(models.Invitation{TenantID: "t-1", Email: "kim@acme.care", Role: models.RoleUser})
	require.NoError(t, err)

	w := h.do(http.MethodPost, "/auth/login", "", LoginRequest{Email: "kim@acme.care", Password: "pw", Invite: invite})
	require.Equal(t, http.StatusOK, w.Code)
	env := decode[LoginResponse](t, w)
	require.NotNil(t, env.Data.Invitation)
	assert.Equal(t, "t-1", env.Data.Invitation.TenantID)
	// the invitation never changes the role
	assert.Equal(t, models.RoleTenantOwner, env.Data.User.Role)
}

func TestOTP(t *testing.T) {
	h := newHarness(t)
	h.auth.session = ownerSession("otp-access")

	w := h.do(http.MethodPost, "/auth/otp", "", OTPRequest{Email: "KIM@acme.care"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "kim@acme.care", h.auth.otpSentTo)

	w = h.do(http.MethodPost, "/auth/otp/verify", "", VerifyOTPRequest{Email: "kim@acme.care", Code: "000000"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.do(http.MethodPost, "/auth/otp/verify", "", VerifyOTPRequest{Email: "kim@acme.care", Code: " 123456 "})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestOAuthFlow(t *testing.T) {
	h := newHarness(t)
	h.auth.session = ownerSession("oauth-access")

	w := h.do(http.MethodGet, "/auth/oauth/github", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodGet, "/auth/oauth/google?redirect_to=/dashboard", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	start := decode[map[string]string](t, w)
	state := start.Data["state"]
	require.NotEmpty(t, state)
	assert.Contains(t, start.Data["url"], "provider=google")

	w = h.do(http.MethodPost, "/auth/oauth/callback", "", OAuthCallbackRequest{Code: "code-1", State: state})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// the verifier sent with the code matches the challenge sent to the provider
	assert.Equal(t, h.auth.challenge, oauth2.S256ChallengeFromVerifier(h.auth.verifier))

	// states are single use
	w = h.do(http.MethodPost, "/auth/oauth/callback", "", OAuthCallbackRequest{Code: "code-1", State: state})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogout_RevokesSession(t *testing.T) {
	h := newHarness(t)
	h.auth.session = ownerSession("logout-access")

	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/auth/login", "", LoginRequest{Email: "kim@acme.care", Password: "pw"}).Code)
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, "/auth/session", "logout-access", nil).Code)

	w := h.do(http.MethodPost, "/auth/logout", "logout-access", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"logout-access"}, h.auth.signedOut)

	w = h.do(http.MethodGet, "/auth/session", "logout-access", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSession_RequiresToken(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodGet, "/auth/session", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestInvitationPreview(t *testing.T) {
	h := newHarness(t)

	invite, err := h.app.codec.Encode(models.Invitation{TenantID: "t-1", Email: "new@acme.care"})
	require.NoError(t, err)

	w := h.do(http.MethodGet, "/auth/invitation?invite="+url.QueryEscape(invite), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	env := decode[InvitationPreview](t, w)
	assert.Equal(t, "new@acme.care", env.Data.Invitation.Email)
	assert.Equal(t, "Acme Care", env.Data.TenantName)

	for _, bad := range []string{"", "garbage", invite + "x"} {
		w = h.do(http.MethodGet, "/auth/invitation?invite="+url.QueryEscape(bad), "", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, utils.CodeInvalidInvite, decode[any](t, w).Code)
	}
}
