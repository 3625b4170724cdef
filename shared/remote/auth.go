package remote

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/pavitra93/care-intake-portal/shared/config"
	"github.com/pavitra93/care-intake-portal/shared/models"
	"github.com/pavitra93/care-intake-portal/shared/utils"
)

// AuthClient talks to the hosted auth service at {url}/auth/v1
type AuthClient struct {
	httpCaller
	serviceKey string
}

// NewAuthClient creates an auth client; it shares the breaker with the data client
// since both reach the same host
func NewAuthClient(cfg config.RemoteConfig, breaker *utils.CircuitBreaker) *AuthClient {
	return &AuthClient{
		httpCaller: newHTTPCaller(cfg.URL, cfg.AnonKey, cfg.Timeout, breaker),
		serviceKey: cfg.ServiceKey,
	}
}

// SignInWithPassword exchanges an email and password for a session
func (a *AuthClient) SignInWithPassword(ctx context.Context, email, password string) (*models.AuthSession, error) {
	body := map[string]string{"email": email, "password": password}
	return a.token(ctx, "password", body)
}

// SendOTP emails a one-time code. Unknown addresses are not signed up.
func (a *AuthClient) SendOTP(ctx context.Context, email, redirectTo string) error {
	path := "/auth/v1/otp"
	if redirectTo != "" {
		path += "?" + url.Values{"redirect_to": {redirectTo}}.Encode()
	}
	body := map[string]interface{}{"email": email, "create_user": false}
	return a.call(ctx, http.MethodPost, path, "", nil, body, nil)
}

// VerifyOTP exchanges an emailed one-time code for a session
func (a *AuthClient) VerifyOTP(ctx context.Context, email, code string) (*models.AuthSession, error) {
	body := map[string]string{"type": "email", "email": email, "token": code}

	var sess models.AuthSession
	if err := a.call(ctx, http.MethodPost, "/auth/v1/verify", "", nil, body, &sess); err != nil {
		return nil, credentialError(err)
	}
	return &sess, nil
}

// AuthorizeURL is where the browser goes to start an OAuth sign-in with provider
func (a *AuthClient) AuthorizeURL(provider, redirectTo, codeChallenge string) string {
	params := url.Values{}
	params.Set("provider", provider)
	params.Set("redirect_to", redirectTo)
	params.Set("code_challenge", codeChallenge)
	params.Set("code_challenge_method", "s256")
	return a.baseURL + "/auth/v1/authorize?" + params.Encode()
}

// ExchangeCode finishes an OAuth sign-in
func (a *AuthClient) ExchangeCode(ctx context.Context, code, verifier string) (*models.AuthSession, error) {
	body := map[string]string{"auth_code": code, "code_verifier": verifier}
	return a.token(ctx, "pkce", body)
}

// Refresh trades a refresh token for a new session
func (a *AuthClient) Refresh(ctx context.Context, refreshToken string) (*models.AuthSession, error) {
	body := map[string]string{"refresh_token": refreshToken}
	return a.token(ctx, "refresh_token", body)
}

// GetUser returns the user the access token belongs to
func (a *AuthClient) GetUser(ctx context.Context, accessToken string) (*models.AuthUser, error) {
	var user models.AuthUser
	if err := a.call(ctx, http.MethodGet, "/auth/v1/user", accessToken, nil, nil, &user); err != nil {
		var rerr *Error
		if errors.As(err, &rerr) && (rerr.Status == http.StatusUnauthorized || rerr.Status == http.StatusForbidden) {
			return nil, ErrInvalidSession
		}
		return nil, err
	}
	return &user, nil
}

// SignOut revokes the session the access token belongs to
func (a *AuthClient) SignOut(ctx context.Context, accessToken string) error {
	return a.call(ctx, http.MethodPost, "/auth/v1/logout", accessToken, nil, nil, nil)
}

// InviteUser sends the auth service's own invite email. Needs the service key.
func (a *AuthClient) InviteUser(ctx context.Context, email, redirectTo string, data map[string]interface{}) error {
	if a.serviceKey == "" {
		return ErrServiceKeyMissing
	}
	path := "/auth/v1/invite"
	if redirectTo != "" {
		path += "?" + url.Values{"redirect_to": {redirectTo}}.Encode()
	}
	body := map[string]interface{}{"email": email, "data": data}
	headers := map[string]string{"apikey": a.serviceKey}
	return a.call(ctx, http.MethodPost, path, a.serviceKey, headers, body, nil)
}

func (a *AuthClient) token(ctx context.Context, grantType string, body interface{}) (*models.AuthSession, error) {
	path := "/auth/v1/token?" + url.Values{"grant_type": {grantType}}.Encode()

	var sess models.AuthSession
	if err := a.call(ctx, http.MethodPost, path, "", nil, body, &sess); err != nil {
		return nil, credentialError(err)
	}
	return &sess, nil
}

func credentialError(err error) error {
	var rerr *Error
	if errors.As(err, &rerr) {
		switch rerr.Status {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusUnprocessableEntity:
			return ErrInvalidCredentials
		}
	}
	return err
}
