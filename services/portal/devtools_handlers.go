package main

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/care-intake-portal/shared/invitation"
	"github.com/pavitra93/care-intake-portal/shared/middleware"
	"github.com/pavitra93/care-intake-portal/shared/models"
	"github.com/pavitra93/care-intake-portal/shared/utils"
)

// DevtoolsStatus is what the developer-tools panel shows about the running portal
type DevtoolsStatus struct {
	RemoteURL    string              `json:"remote_url"`
	Placeholder  bool                `json:"placeholder"`
	Driver       string              `json:"driver"`
	Breaker      *utils.BreakerStats `json:"breaker,omitempty"`
	CacheBackend string              `json:"cache_backend"`
	TenantCount  int                 `json:"tenant_count"`
	StoreVersion uint64              `json:"store_version"`
	LoadedAt     time.Time           `json:"loaded_at"`
	Uptime       string              `json:"uptime"`
}

// EncodeInvitationRequest builds a token by hand
type EncodeInvitationRequest struct {
	TenantID string          `json:"tenant_id" binding:"required"`
	Email    string          `json:"email" binding:"required"`
	Role     models.UserRole `json:"role,omitempty"`
}

// DecodeInvitationRequest inspects a token
type DecodeInvitationRequest struct {
	Token string `json:"token" binding:"required"`
}

// TestNotificationRequest pushes a notification to the caller
type TestNotificationRequest struct {
	Severity models.Severity `json:"severity"`
	Title    string          `json:"title"`
	Message  string          `json:"message"`
	Link     string          `json:"link"`
}

func handleDevtoolsStatus(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap := a.store.Snapshot()
		status := DevtoolsStatus{
			RemoteURL:    a.cfg.Remote.URL,
			Placeholder:  a.cfg.Remote.Placeholder(),
			Driver:       a.remote.Name(),
			CacheBackend: a.cache.Backend(),
			TenantCount:  len(snap.Tenants),
			StoreVersion: snap.Version,
			LoadedAt:     snap.LoadedAt,
			Uptime:       time.Since(a.started).Round(time.Second).String(),
		}
		if a.breaker != nil {
			stats := a.breaker.Stats()
			status.Breaker = &stats
		}
		utils.OKResponse(c, "Status retrieved", status)
	}
}

// handleDevtoolsReload refetches the tenant list from the remote
func handleDevtoolsReload(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap := a.store.Load(c.Request.Context())
		logrus.WithField("tenants", len(snap.Tenants)).Info("Tenant list reloaded from devtools")
		utils.OKResponse(c, "Tenants reloaded", gin.H{
			"tenant_count": len(snap.Tenants),
			"version":      snap.Version,
		})
	}
}

func handleDevtoolsEncode(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req EncodeInvitationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Tenant id and email are required")
			return
		}
		token, err := a.codec.Encode(models.Invitation{TenantID: req.TenantID, Email: req.Email, Role: req.Role})
		if err != nil {
			respondError(c, err, "encode invitation")
			return
		}
		utils.OKResponse(c, "Invitation encoded", gin.H{
			"token": token,
			"link":  invitation.Link(a.cfg.AppURL, token),
		})
	}
}

// handleDevtoolsDecode reports whether a token decodes; invalid tokens are not an error here
func handleDevtoolsDecode(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req DecodeInvitationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Token is required")
			return
		}
		inv := a.codec.Decode(req.Token)
		utils.OKResponse(c, "Invitation decoded", gin.H{
			"valid":      inv != nil,
			"invitation": inv,
		})
	}
}

func handleDevtoolsNotify(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TestNotificationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}
		if req.Severity == "" {
			req.Severity = models.SeverityInfo
		}
		if !req.Severity.Valid() {
			utils.BadRequestResponse(c, "Severity must be info, success, warning or error")
			return
		}

		user, _ := middleware.UserFromContext(c)
		n, err := a.center.Push(c.Request.Context(), user.UserID, models.Notification{
			Severity: req.Severity,
			Title:    req.Title,
			Message:  req.Message,
			Link:     req.Link,
		})
		if err != nil {
			respondError(c, err, "push notification")
			return
		}
		utils.CreatedResponse(c, "Notification sent", n)
	}
}
