package main

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/care-intake-portal/shared/cache"
	"github.com/pavitra93/care-intake-portal/shared/middleware"
	"github.com/pavitra93/care-intake-portal/shared/models"
	"github.com/pavitra93/care-intake-portal/shared/notifications"
	"github.com/pavitra93/care-intake-portal/shared/utils"
)

// FeedResponse is what the notification dropdown renders
type FeedResponse struct {
	Notifications []models.Notification `json:"notifications"`
	Unread        int                   `json:"unread"`
}

func registerRoutes(router *gin.Engine, center *notifications.Center, authMW *middleware.AuthMiddleware, kv cache.Cache) {
	router.GET("/health", func(c *gin.Context) {
		utils.OKResponse(c, "Notifier service is healthy", gin.H{"cache": kv.Backend()})
	})

	feed := router.Group("/notifications")
	feed.Use(authMW.RequireAuth())
	{
		feed.GET("", handleListNotifications(center))
		feed.GET("/unread-count", handleUnreadCount(center))
		feed.POST("/read-all", handleMarkAllRead(center))
		feed.POST("/:id/read", handleMarkRead(center))
		feed.DELETE("/:id", handleDismiss(center))
		feed.DELETE("", handleClear(center))
	}
}

// handleListNotifications returns the caller's feed, newest first
func handleListNotifications(center *notifications.Center) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := middleware.UserFromContext(c)
		list, err := center.List(c.Request.Context(), user.UserID)
		if err != nil {
			respondError(c, err, "load notifications")
			return
		}

		unread := 0
		for _, n := range list {
			if !n.Read {
				unread++
			}
		}
		utils.OKResponse(c, "Notifications retrieved", FeedResponse{Notifications: list, Unread: unread})
	}
}

func handleUnreadCount(center *notifications.Center) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := middleware.UserFromContext(c)
		n, err := center.UnreadCount(c.Request.Context(), user.UserID)
		if err != nil {
			respondError(c, err, "count notifications")
			return
		}
		utils.OKResponse(c, "Unread count retrieved", gin.H{"unread": n})
	}
}

func handleMarkRead(center *notifications.Center) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := middleware.UserFromContext(c)
		if err := center.MarkRead(c.Request.Context(), user.UserID, c.Param("id")); err != nil {
			respondError(c, err, "mark notification read")
			return
		}
		utils.OKResponse(c, "Notification marked as read", nil)
	}
}

func handleMarkAllRead(center *notifications.Center) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := middleware.UserFromContext(c)
		if err := center.MarkAllRead(c.Request.Context(), user.UserID); err != nil {
			respondError(c, err, "mark notifications read")
			return
		}
		utils.OKResponse(c, "All notifications marked as read", nil)
	}
}

func handleDismiss(center *notifications.Center) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := middleware.UserFromContext(c)
		if err := center.Dismiss(c.Request.Context(), user.UserID, c.Param("id")); err != nil {
			respondError(c, err, "dismiss notification")
			return
		}
		utils.OKResponse(c, "Notification dismissed", nil)
	}
}

func handleClear(center *notifications.Center) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := middleware.UserFromContext(c)
		if err := center.Clear(c.Request.Context(), user.UserID); err != nil {
			respondError(c, err, "clear notifications")
			return
		}
		utils.OKResponse(c, "Notifications cleared", nil)
	}
}

func respondError(c *gin.Context, err error, action string) {
	if errors.Is(err, notifications.ErrNotificationNotFound) {
		utils.NotFoundResponse(c, "Notification not found")
		return
	}
	logrus.WithFields(logrus.Fields{
		"action": action,
		"error":  err,
	}).Error("Notification feed operation failed")
	utils.InternalServerErrorResponse(c, "Failed to "+action)
}
