package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/care-intake-portal/shared/cache"
	"github.com/pavitra93/care-intake-portal/shared/config"
	"github.com/pavitra93/care-intake-portal/shared/notifications"
	"github.com/pavitra93/care-intake-portal/shared/remote"
	"github.com/pavitra93/care-intake-portal/shared/storage"
	"github.com/pavitra93/care-intake-portal/shared/utils"
)

func main() {
	cfg := config.Load()
	logger := config.InitLogging("portal")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Sessions, PKCE state, drafts and notification feeds
	kv, err := cache.Open(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("Failed to open cache:", err)
	}
	defer kv.Close()

	// One breaker for the data and auth endpoints: they share a host
	breaker := utils.NewCircuitBreaker(5, 30*time.Second)

	data, err := remote.Open(cfg.Remote, breaker)
	if err != nil {
		log.Fatal("Failed to initialize remote data client:", err)
	}
	authClient := remote.NewAuthClient(cfg.Remote, breaker)

	var logos *storage.LogoStore
	if cfg.S3Bucket != "" {
		if logos, err = storage.NewLogoStore(cfg.AWSRegion, cfg.S3Bucket); err != nil {
			log.Fatal("Failed to initialize logo storage:", err)
		}
	} else {
		logger.Warn("S3_BUCKET not set, logo uploads disabled")
	}

	events := notifications.NewPublisher(cfg.KafkaBroker)
	defer events.Close()

	a, err := newApp(cfg, kv, data, breaker, authClient, events, logos)
	if err != nil {
		log.Fatal("Failed to initialize portal:", err)
	}

	if cfg.Remote.ServiceKey == "" && cfg.Remote.Driver == config.DriverREST {
		logger.Warn("REMOTE_SERVICE_KEY not set, tenant list is read with the anon key")
	}
	snap := a.store.Load(ctx)
	logger.WithFields(logrus.Fields{
		"tenants":     len(snap.Tenants),
		"driver":      data.Name(),
		"placeholder": cfg.Remote.Placeholder(),
		"cache":       kv.Backend(),
	}).Info("Tenant list loaded")

	router := gin.Default()
	registerRoutes(router, a)

	port := config.ServicePort("PORTAL_SERVICE_PORT", "8002")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Portal service starting on port %s", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start portal service:", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down portal service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Portal service shutdown failed")
	}
}
