package main

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/pavitra93/care-intake-portal/shared/invitation"
	"github.com/pavitra93/care-intake-portal/shared/middleware"
	"github.com/pavitra93/care-intake-portal/shared/models"
	"github.com/pavitra93/care-intake-portal/shared/onboarding"
	"github.com/pavitra93/care-intake-portal/shared/session"
	"github.com/pavitra93/care-intake-portal/shared/utils"
)

// defaultSessionTTL is used when the auth service does not report expires_in
const defaultSessionTTL = time.Hour

// oauthProviders are the identity providers offered on the login screen
var oauthProviders = map[string]bool{
	"google": true,
	"azure":  true,
	"apple":  true,
}

// LoginRequest represents the password login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Invite   string `json:"invite,omitempty"`
}

// OTPRequest asks for a one-time code by email
type OTPRequest struct {
	Email  string `json:"email" binding:"required,email"`
	Invite string `json:"invite,omitempty"`
}

// VerifyOTPRequest signs in with an emailed one-time code
type VerifyOTPRequest struct {
	Email  string `json:"email" binding:"required,email"`
	Code   string `json:"code" binding:"required"`
	Invite string `json:"invite,omitempty"`
}

// OAuthCallbackRequest finishes a redirect sign-in
type OAuthCallbackRequest struct {
	Code  string `json:"code" binding:"required"`
	State string `json:"state" binding:"required"`
}

// RefreshRequest exchanges a refresh token for a new session
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// LoginResponse is returned by every successful sign-in
type LoginResponse struct {
	AccessToken  string             `json:"access_token"`
	RefreshToken string             `json:"refresh_token"`
	ExpiresIn    int64              `json:"expires_in"`
	TokenType    string             `json:"token_type"`
	User         models.UserInfo    `json:"user"`
	ActiveTenant *models.Tenant     `json:"active_tenant,omitempty"`
	Invitation   *models.Invitation `json:"invitation,omitempty"`
}

// SessionResponse describes the signed-in user
type SessionResponse struct {
	User         models.UserInfo `json:"user"`
	ActiveTenant *models.Tenant  `json:"active_tenant,omitempty"`
}

// InvitationPreview pre-fills the login form for an invited user
type InvitationPreview struct {
	Invitation models.Invitation `json:"invitation"`
	TenantName string            `json:"tenant_name,omitempty"`
}

// handleLogin handles email + password sign-in
func handleLogin(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Email and password are required")
			return
		}

		sess, err := a.auth.SignInWithPassword(c.Request.Context(), strings.ToLower(req.Email), req.Password)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"email": req.Email,
				"error": err,
			}).Info("Password sign-in rejected")
			respondError(c, err, "sign in")
			return
		}

		establishSession(c, a, sess, req.Invite)
	}
}

// handleSendOTP emails a one-time sign-in code
func handleSendOTP(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req OTPRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "A valid email is required")
			return
		}

		redirectTo := a.cfg.AppURL + "/login"
		if req.Invite != "" {
			redirectTo = invitation.Link(a.cfg.AppURL, req.Invite)
		}

		if err := a.auth.SendOTP(c.Request.Context(), strings.ToLower(req.Email), redirectTo); err != nil {
			respondError(c, err, "send sign-in code")
			return
		}
		utils.OKResponse(c, "Check your email for a sign-in code", nil)
	}
}

// handleVerifyOTP signs in with an emailed code
func handleVerifyOTP(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req VerifyOTPRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Email and code are required")
			return
		}

		sess, err := a.auth.VerifyOTP(c.Request.Context(), strings.ToLower(req.Email), strings.TrimSpace(req.Code))
		if err != nil {
			respondError(c, err, "verify sign-in code")
			return
		}
		establishSession(c, a, sess, req.Invite)
	}
}

// handleOAuthStart returns the provider URL for a redirect sign-in. The PKCE
// verifier stays server-side under the state value.
func handleOAuthStart(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		provider := c.Param("provider")
		if !oauthProviders[provider] {
			utils.BadRequestResponse(c, "Unsupported sign-in provider")
			return
		}

		verifier := oauth2.GenerateVerifier()
		state := uuid.New().String()
		err := a.sessions.SavePKCE(c.Request.Context(), state, session.PKCEState{
			Verifier:    verifier,
			Provider:    provider,
			RedirectTo:  c.Query("redirect_to"),
			InviteToken: c.Query(invitation.QueryParam),
		})
		if err != nil {
			respondError(c, err, "start sign-in")
			return
		}

		callback := a.cfg.AppURL + "/auth/callback?state=" + url.QueryEscape(state)
		utils.OKResponse(c, "Redirect to provider", gin.H{
			"url":   a.auth.AuthorizeURL(provider, callback, oauth2.S256ChallengeFromVerifier(verifier)),
			"state": state,
		})
	}
}

// handleOAuthCallback exchanges the provider code for a session
func handleOAuthCallback(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req OAuthCallbackRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Code and state are required")
			return
		}

		pkce, err := a.sessions.TakePKCE(c.Request.Context(), req.State)
		if err != nil {
			respondError(c, err, "finish sign-in")
			return
		}

		sess, err := a.auth.ExchangeCode(c.Request.Context(), req.Code, pkce.Verifier)
		if err != nil {
			respondError(c, err, "finish sign-in")
			return
		}
		establishSession(c, a, sess, pkce.InviteToken)
	}
}

// handleRefresh exchanges a refresh token
func handleRefresh(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RefreshRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Refresh token is required")
			return
		}

		sess, err := a.auth.Refresh(c.Request.Context(), req.RefreshToken)
		if err != nil {
			respondError(c, err, "refresh session")
			return
		}
		establishSession(c, a, sess, "")
	}
}

// handleSession returns the signed-in user and their active tenant
func handleSession(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := middleware.UserFromContext(c)

		if err := a.sessions.Touch(c.Request.Context(), c.GetString(middleware.KeyAccessToken)); err != nil {
			logrus.WithError(err).Debug("Failed to touch session")
		}

		utils.OKResponse(c, "Session retrieved successfully", SessionResponse{
			User:         user,
			ActiveTenant: activeTenant(a, user),
		})
	}
}

// handleLogout signs out at the auth service and forgets the session locally.
// The local session is dropped even when the remote sign-out fails.
func handleLogout(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := middleware.UserFromContext(c)
		token := c.GetString(middleware.KeyAccessToken)

		if err := a.auth.SignOut(c.Request.Context(), token); err != nil {
			logrus.WithFields(logrus.Fields{
				"user_id": user.UserID,
				"error":   err,
			}).Warn("Remote sign-out failed")
		}
		if err := a.sessions.Revoke(c.Request.Context(), token); err != nil {
			logrus.WithError(err).Warn("Failed to revoke session")
		}
		a.authMW.Forget(token)
		a.store.ClearActive(user.UserID)

		utils.OKResponse(c, "Logged out successfully", nil)
	}
}

// handleInvitationPreview decodes the invite query parameter for the login form
func handleInvitationPreview(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		inv := a.codec.FromQuery(c.Request.URL.Query())
		if inv == nil {
			utils.ErrorResponse(c, http.StatusBadRequest, utils.CodeInvalidInvite, "This invitation link is invalid or has expired")
			return
		}

		preview := InvitationPreview{Invitation: *inv}
		if t, ok := a.store.Snapshot().Find(inv.TenantID); ok {
			preview.TenantName = t.Name
		}
		utils.OKResponse(c, "Invitation is valid", preview)
	}
}

// establishSession stores the session, selects the user's tenant and writes
// the login response. Roles and tenant membership come from the session only;
// the invitation is echoed back so the view can greet the user.
func establishSession(c *gin.Context, a *app, sess *models.AuthSession, inviteToken string) {
	ctx := c.Request.Context()

	authUser := sess.User
	if authUser == nil {
		u, err := a.auth.GetUser(ctx, sess.AccessToken)
		if err != nil {
			respondError(c, err, "load user")
			return
		}
		authUser = u
	}
	user := authUser.Info()

	ttl := time.Duration(sess.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	if _, err := a.sessions.Create(ctx, sess.AccessToken, user, ttl); err != nil {
		logrus.WithError(err).Warn("Failed to store session")
	}

	resp := LoginResponse{
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		ExpiresIn:    sess.ExpiresIn,
		TokenType:    sess.TokenType,
		User:         user,
		ActiveTenant: restoreActiveTenant(a, user),
	}
	if inviteToken != "" {
		resp.Invitation = a.codec.Decode(inviteToken)
	}

	logrus.WithFields(logrus.Fields{
		"user_id":   user.UserID,
		"role":      user.Role,
		"tenant_id": user.TenantID,
	}).Info("User signed in")

	utils.OKResponse(c, "Login successful", resp)
}

// restoreActiveTenant keeps an existing selection or selects the user's own tenant
func restoreActiveTenant(a *app, user models.UserInfo) *models.Tenant {
	if t := activeTenant(a, user); t != nil {
		return t
	}
	if user.TenantID == "" {
		return nil
	}
	if err := a.store.SetActive(user.UserID, user.TenantID); err != nil {
		return nil
	}
	return activeTenant(a, user)
}

// activeTenant returns the tenant the user is working in, if they may still access it
func activeTenant(a *app, user models.UserInfo) *models.Tenant {
	t, ok := a.store.Active(user.UserID)
	if !ok || !user.CanAccessTenant(t.ID) {
		return nil
	}
	return &t
}

// inviteMembers asks the auth service to email each invitation link. Without a
// service key the links are only returned to the caller.
func inviteMembers(ctx context.Context, a *app, tenantID string, links []onboarding.InviteLink) {
	if a.cfg.Remote.ServiceKey == "" {
		return
	}
	for _, l := range links {
		err := a.auth.InviteUser(ctx, l.Email, l.Link, map[string]interface{}{
			"tenant_id": tenantID,
			"role":      string(l.Role),
		})
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"tenant_id": tenantID,
				"email":     l.Email,
				"error":     err,
			}).Warn("Failed to send invitation email")
		}
	}
}
