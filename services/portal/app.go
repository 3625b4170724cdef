package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/care-intake-portal/shared/cache"
	"github.com/pavitra93/care-intake-portal/shared/config"
	"github.com/pavitra93/care-intake-portal/shared/invitation"
	"github.com/pavitra93/care-intake-portal/shared/legal"
	"github.com/pavitra93/care-intake-portal/shared/middleware"
	"github.com/pavitra93/care-intake-portal/shared/models"
	"github.com/pavitra93/care-intake-portal/shared/notifications"
	"github.com/pavitra93/care-intake-portal/shared/onboarding"
	"github.com/pavitra93/care-intake-portal/shared/remote"
	"github.com/pavitra93/care-intake-portal/shared/session"
	"github.com/pavitra93/care-intake-portal/shared/storage"
	"github.com/pavitra93/care-intake-portal/shared/tenantdata"
	"github.com/pavitra93/care-intake-portal/shared/tenantstore"
	"github.com/pavitra93/care-intake-portal/shared/utils"
)

// authService is the part of the remote auth client the portal uses
type authService interface {
	SignInWithPassword(ctx context.Context, email, password string) (*models.AuthSession, error)
	SendOTP(ctx context.Context, email, redirectTo string) error
	VerifyOTP(ctx context.Context, email, code string) (*models.AuthSession, error)
	AuthorizeURL(provider, redirectTo, codeChallenge string) string
	ExchangeCode(ctx context.Context, code, verifier string) (*models.AuthSession, error)
	Refresh(ctx context.Context, refreshToken string) (*models.AuthSession, error)
	GetUser(ctx context.Context, accessToken string) (*models.AuthUser, error)
	SignOut(ctx context.Context, accessToken string) error
	InviteUser(ctx context.Context, email, redirectTo string, data map[string]interface{}) error
}

// app holds the collaborators shared by the portal handlers
type app struct {
	cfg      *config.AppConfig
	cache    cache.Cache
	remote   remote.Remote
	breaker  *utils.CircuitBreaker
	auth     authService
	authMW   *middleware.AuthMiddleware
	sessions *session.Manager
	data     *tenantdata.Service
	store    *tenantstore.Store
	codec    *invitation.Codec
	center   *notifications.Center
	events   notifications.Publisher
	wizard   *onboarding.Wizard
	logos    *storage.LogoStore
	legal    *legal.Library
	started  time.Time
}

// newApp wires the domain services on top of the given infrastructure
func newApp(cfg *config.AppConfig, c cache.Cache, r remote.Remote, breaker *utils.CircuitBreaker, auth authService, events notifications.Publisher, logos *storage.LogoStore) (*app, error) {
	sessions := session.NewManager(c)
	authMW, err := middleware.NewAuthMiddleware(cfg.Remote.JWTSecret, auth, sessions)
	if err != nil {
		return nil, err
	}

	data := tenantdata.NewService(r)
	store := tenantstore.New(data, tenantstore.WithServiceToken(cfg.Remote.ServiceKey))
	codec := invitation.NewCodec(cfg.InviteSecret, cfg.InviteTTL)
	center := notifications.NewCenter(c)

	library, err := legal.Load()
	if err != nil {
		return nil, err
	}

	if events == nil {
		events = notifications.NopPublisher{}
	}

	return &app{
		cfg:      cfg,
		cache:    c,
		remote:   r,
		breaker:  breaker,
		auth:     auth,
		authMW:   authMW,
		sessions: sessions,
		data:     data,
		store:    store,
		codec:    codec,
		center:   center,
		events:   events,
		wizard:   onboarding.NewWizard(c, store, codec, center, cfg.AppURL),
		logos:    logos,
		legal:    library,
		started:  time.Now(),
	}, nil
}

// publish sends a tenant event; delivery failures never fail the request
func (a *app) publish(typ notifications.EventType, tenant models.Tenant, actorID string) {
	if err := a.events.Publish(notifications.NewTenantEvent(typ, tenant, actorID)); err != nil {
		logrus.WithFields(logrus.Fields{
			"event":     typ,
			"tenant_id": tenant.ID,
			"error":     err,
		}).Warn("Failed to publish tenant event")
	}
}

// registerRoutes mounts every portal route on router
func registerRoutes(router *gin.Engine, a *app) {
	am := a.authMW

	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "Portal service is healthy", gin.H{
			"remote":      a.remote.Name(),
			"placeholder": a.cfg.Remote.Placeholder(),
		})
	})

	// Sign-in
	auth := router.Group("/auth")
	{
		auth.POST("/login", handleLogin(a))
		auth.POST("/otp", handleSendOTP(a))
		auth.POST("/otp/verify", handleVerifyOTP(a))
		auth.GET("/oauth/:provider", handleOAuthStart(a))
		auth.POST("/oauth/callback", handleOAuthCallback(a))
		auth.POST("/refresh", handleRefresh(a))
		auth.GET("/invitation", handleInvitationPreview(a))
		auth.GET("/session", am.RequireAuth(), handleSession(a))
		auth.POST("/logout", am.RequireAuth(), handleLogout(a))
	}

	// Legal documents are readable before sign-in
	router.GET("/legal", handleLegalIndex(a.legal))
	router.GET("/legal/:slug", handleLegalDocument(a.legal))

	authed := router.Group("/")
	authed.Use(am.RequireAuth())
	{
		authed.GET("/navigation", handleNavigation(a))
		authed.GET("/active-tenant", handleGetActiveTenant(a))
		authed.PUT("/active-tenant", handleSetActiveTenant(a))
	}

	tenants := router.Group("/tenants")
	tenants.Use(am.RequireAuth())
	{
		tenants.GET("", handleListTenants(a))
		tenants.POST("", am.RequireRole(models.RoleAdmin), handleCreateTenant(a))

		tenants.GET("/:id", am.RequireTenantAccess(), handleGetTenant(a))
		tenants.PATCH("/:id", am.RequireTenantOwnerOrAdmin(), handleUpdateTenantDetails(a))
		tenants.DELETE("/:id", am.RequireRole(models.RoleAdmin), handleDeleteTenant(a))
		tenants.PUT("/:id/features", am.RequireTenantOwnerOrAdmin(), handleUpdateFeatures(a))
		tenants.PUT("/:id/status", am.RequireRole(models.RoleAdmin), handleUpdateStatus(a))
		tenants.POST("/:id/logo", am.RequireTenantOwnerOrAdmin(), handleLogoUpload(a))
		tenants.POST("/:id/invitations", am.RequireTenantOwnerOrAdmin(), handleInviteMember(a))

		// Care recipients of a tenant
		tenants.GET("/:id/clients", am.RequireTenantAccess(), handleListClients(a))
		tenants.POST("/:id/clients", am.RequireTenantAccess(), handleCreateClient(a))
		tenants.GET("/:id/clients/:client_id", am.RequireTenantAccess(), handleGetClient(a))
		tenants.PUT("/:id/clients/:client_id", am.RequireTenantAccess(), handleUpdateClient(a))
		tenants.DELETE("/:id/clients/:client_id", am.RequireTenantOwnerOrAdmin(), handleDeleteClient(a))
	}

	// Onboarding creates tenants, so it is held to the same role as POST /tenants
	wizard := router.Group("/onboarding")
	wizard.Use(am.RequireAuth(), am.RequireRole(models.RoleAdmin))
	{
		wizard.GET("", handleGetDraft(a))
		wizard.PUT("", handleSaveStep(a))
		wizard.POST("/back", handleStepBack(a))
		wizard.DELETE("", handleDiscardDraft(a))
		wizard.POST("/complete", handleCompleteOnboarding(a))
	}

	devtools := router.Group("/devtools")
	devtools.Use(requireDevtools(a.cfg.DevtoolsEnabled), am.RequireAuth(), am.RequireRole(models.RoleAdmin))
	{
		devtools.GET("/status", handleDevtoolsStatus(a))
		devtools.POST("/reload", handleDevtoolsReload(a))
		devtools.POST("/invitations/encode", handleDevtoolsEncode(a))
		devtools.POST("/invitations/decode", handleDevtoolsDecode(a))
		devtools.POST("/notifications", handleDevtoolsNotify(a))
	}
}

// requireDevtools hides the developer tools entirely unless enabled
func requireDevtools(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled {
			utils.AbortWithError(c, http.StatusNotFound, utils.CodeNotFound, "Not found")
			return
		}
		c.Next()
	}
}
