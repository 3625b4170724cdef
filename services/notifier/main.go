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

	"github.com/pavitra93/care-intake-portal/shared/cache"
	"github.com/pavitra93/care-intake-portal/shared/config"
	"github.com/pavitra93/care-intake-portal/shared/middleware"
	"github.com/pavitra93/care-intake-portal/shared/notifications"
	"github.com/pavitra93/care-intake-portal/shared/remote"
	"github.com/pavitra93/care-intake-portal/shared/session"
	"github.com/pavitra93/care-intake-portal/shared/utils"
)

func main() {
	cfg := config.Load()
	logger := config.InitLogging("notifier")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Feeds and sessions live in the cache the portal writes to
	kv, err := cache.Open(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("Failed to open cache:", err)
	}
	defer kv.Close()
	if !cfg.Redis.Enabled() {
		logger.Warn("REDIS_HOST not set, notifications are not shared with the portal")
	}

	center := notifications.NewCenter(kv)

	authClient := remote.NewAuthClient(cfg.Remote, utils.NewCircuitBreaker(5, 30*time.Second))
	authMW, err := middleware.NewAuthMiddleware(cfg.Remote.JWTSecret, authClient, session.NewManager(kv))
	if err != nil {
		log.Fatal("Failed to initialize auth middleware:", err)
	}

	// Tenant events from the portal become notifications for the actor
	if cfg.KafkaBroker != "" {
		consumer := notifications.NewConsumer(cfg.KafkaBroker, center)
		defer consumer.Close()
		go consumer.Run(ctx)
	} else {
		logger.Warn("KAFKA_BROKER not set, tenant events are not consumed")
	}

	router := gin.Default()
	registerRoutes(router, center, authMW, kv)

	port := config.ServicePort("NOTIFIER_SERVICE_PORT", "8004")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Notifier service starting on port %s", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start notifier service:", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down notifier service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Notifier service shutdown failed")
	}
}
