package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pavitra93/care-intake-portal/shared/cache"
	"github.com/pavitra93/care-intake-portal/shared/config"
	"github.com/pavitra93/care-intake-portal/shared/middleware"
	"github.com/pavitra93/care-intake-portal/shared/models"
	"github.com/pavitra93/care-intake-portal/shared/remote"
	"github.com/pavitra93/care-intake-portal/shared/session"
	"github.com/pavitra93/care-intake-portal/shared/utils"
)

const limiterIdle = 10 * time.Minute

func main() {
	cfg := config.Load()
	logger := config.InitLogging("gateway")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Sessions are shared with the services through the cache
	kv, err := cache.Open(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("Failed to open cache:", err)
	}
	defer kv.Close()

	authClient := remote.NewAuthClient(cfg.Remote, utils.NewCircuitBreaker(5, 30*time.Second))
	authMiddleware, err := middleware.NewAuthMiddleware(cfg.Remote.JWTSecret, authClient, session.NewManager(kv))
	if err != nil {
		log.Fatal("Failed to initialize auth middleware:", err)
	}

	serviceClients := &ServiceClients{
		Portal:   NewServiceClient("portal_service", getEnv("PORTAL_SERVICE_URL", "http://localhost:8002")),
		Notifier: NewServiceClient("notifier_service", getEnv("NOTIFIER_SERVICE_URL", "http://localhost:8004")),
	}

	authLimiter := utils.NewRateLimiter(utils.AuthLimit)
	apiLimiter := utils.NewRateLimiter(utils.APILimit)
	go sweepLimiters(ctx, authLimiter, apiLimiter)

	router := gin.Default()
	registerRoutes(router, serviceClients, authMiddleware, authLimiter, apiLimiter, cfg.AppURL)

	port := config.ServicePort("API_GATEWAY_PORT", "8080")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("API Gateway starting on port %s", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start API Gateway:", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down API Gateway")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("API Gateway shutdown failed")
	}
}

func registerRoutes(router *gin.Engine, sc *ServiceClients, am *middleware.AuthMiddleware, authLimiter, apiLimiter *utils.RateLimiter, allowedOrigin string) {
	router.Use(cors(allowedOrigin))

	router.GET("/health", func(c *gin.Context) {
		status, healthy := sc.GetServiceStatus(c.Request.Context())
		if !healthy {
			utils.SuccessResponse(c, http.StatusServiceUnavailable, "API Gateway is degraded", status)
			return
		}
		utils.OKResponse(c, "API Gateway is healthy", status)
	})

	portal := sc.Portal.ProxyRequest

	// Sign-in routes get the strict limiter
	auth := router.Group("/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/login", portal)
		auth.POST("/otp", portal)
		auth.POST("/otp/verify", portal)
		auth.GET("/oauth/:provider", portal)
		auth.POST("/oauth/callback", portal)
		auth.POST("/refresh", portal)
		auth.GET("/invitation", portal)
		auth.GET("/session", am.RequireAuth(), portal)
		auth.POST("/logout", am.RequireAuth(), portal)
	}

	public := router.Group("/legal")
	public.Use(apiLimiter.Middleware())
	{
		public.GET("", portal)
		public.GET("/:slug", portal)
	}

	api := router.Group("/")
	api.Use(apiLimiter.Middleware(), am.RequireAuth())
	{
		api.GET("/navigation", portal)
		api.GET("/active-tenant", portal)
		api.PUT("/active-tenant", portal)
	}

	tenants := router.Group("/tenants")
	tenants.Use(apiLimiter.Middleware(), am.RequireAuth())
	{
		// Platform management
		tenants.GET("", portal)
		tenants.POST("", am.RequireRole(models.RoleAdmin), portal)
		tenants.DELETE("/:id", am.RequireRole(models.RoleAdmin), portal)
		tenants.PUT("/:id/status", am.RequireRole(models.RoleAdmin), portal)

		// Tenant owners manage their own tenant
		tenants.GET("/:id", am.RequireTenantAccess(), portal)
		tenants.PATCH("/:id", am.RequireTenantOwnerOrAdmin(), portal)
		tenants.PUT("/:id/features", am.RequireTenantOwnerOrAdmin(), portal)
		tenants.POST("/:id/logo", am.RequireTenantOwnerOrAdmin(), portal)
		tenants.POST("/:id/invitations", am.RequireTenantOwnerOrAdmin(), portal)

		tenants.GET("/:id/clients", am.RequireTenantAccess(), portal)
		tenants.POST("/:id/clients", am.RequireTenantAccess(), portal)
		tenants.GET("/:id/clients/:client_id", am.RequireTenantAccess(), portal)
		tenants.PUT("/:id/clients/:client_id", am.RequireTenantAccess(), portal)
		tenants.DELETE("/:id/clients/:client_id", am.RequireTenantOwnerOrAdmin(), portal)
	}

	wizard := router.Group("/onboarding")
	wizard.Use(apiLimiter.Middleware(), am.RequireAuth(), am.RequireRole(models.RoleAdmin))
	{
		wizard.GET("", portal)
		wizard.PUT("", portal)
		wizard.DELETE("", portal)
		wizard.POST("/back", portal)
		wizard.POST("/complete", portal)
	}

	// The portal answers 404 when developer tools are disabled
	devtools := router.Group("/devtools")
	devtools.Use(apiLimiter.Middleware(), am.RequireAuth(), am.RequireRole(models.RoleAdmin))
	{
		devtools.GET("/status", portal)
		devtools.POST("/reload", portal)
		devtools.POST("/invitations/encode", portal)
		devtools.POST("/invitations/decode", portal)
		devtools.POST("/notifications", portal)
	}

	notifier := sc.Notifier.ProxyRequest
	feed := router.Group("/notifications")
	feed.Use(apiLimiter.Middleware(), am.RequireAuth())
	{
		feed.GET("", notifier)
		feed.GET("/unread-count", notifier)
		feed.POST("/read-all", notifier)
		feed.POST("/:id/read", notifier)
		feed.DELETE("/:id", notifier)
		feed.DELETE("", notifier)
	}
}

// cors allows the portal front end to call the gateway with credentials
func cors(allowedOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", allowedOrigin)
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Vary", "Origin")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func sweepLimiters(ctx context.Context, limiters ...*utils.RateLimiter) {
	ticker := time.NewTicker(limiterIdle)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, l := range limiters {
				l.Sweep(limiterIdle)
			}
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
