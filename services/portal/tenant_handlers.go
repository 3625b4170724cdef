package main

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/care-intake-portal/shared/invitation"
	"github.com/pavitra93/care-intake-portal/shared/middleware"
	"github.com/pavitra93/care-intake-portal/shared/models"
	"github.com/pavitra93/care-intake-portal/shared/notifications"
	"github.com/pavitra93/care-intake-portal/shared/onboarding"
	"github.com/pavitra93/care-intake-portal/shared/utils"
)

// UpdateStatusRequest represents the tenant status change request
type UpdateStatusRequest struct {
	Status models.TenantStatus `json:"status" binding:"required"`
}

// SetActiveTenantRequest selects the tenant the user works in
type SetActiveTenantRequest struct {
	TenantID string `json:"tenant_id" binding:"required"`
}

// LogoUploadRequest asks for a presigned logo upload
type LogoUploadRequest struct {
	Filename string `json:"filename" binding:"required"`
}

// InviteMemberRequest invites someone into a tenant
type InviteMemberRequest struct {
	Email string          `json:"email" binding:"required"`
	Role  models.UserRole `json:"role,omitempty"`
}

// handleListTenants lists every tenant for admins and the user's own tenant otherwise
func handleListTenants(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := middleware.UserFromContext(c)
		snap := a.store.Snapshot()

		tenants := make([]models.Tenant, 0, len(snap.Tenants))
		for _, t := range snap.Tenants {
			if user.CanAccessTenant(t.ID) {
				tenants = append(tenants, t)
			}
		}
		utils.OKResponse(c, "Tenants retrieved successfully", tenants)
	}
}

// handleCreateTenant handles tenant creation (admin only)
func handleCreateTenant(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.NewTenant
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			utils.BadRequestResponse(c, "Tenant name is required")
			return
		}

		tenant, err := a.store.Create(c.Request.Context(), req)
		if err != nil {
			respondError(c, err, "create tenant")
			return
		}

		user, _ := middleware.UserFromContext(c)
		a.publish(notifications.EventTenantCreated, tenant, user.UserID)
		utils.CreatedResponse(c, "Tenant created successfully", tenant)
	}
}

// handleGetTenant handles getting a specific tenant
func handleGetTenant(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, err := a.store.Tenant(c.Param("id"))
		if err != nil {
			respondError(c, err, "fetch tenant")
			return
		}
		utils.OKResponse(c, "Tenant retrieved successfully", tenant)
	}
}

// handleUpdateTenantDetails updates name, branding and document settings
func handleUpdateTenantDetails(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.TenantDetails
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}
		if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
			utils.BadRequestResponse(c, "Tenant name cannot be empty")
			return
		}
		if req.Branding != nil && !validBranding(*req.Branding) {
			utils.BadRequestResponse(c, "Colours must be hex values like #0F766E")
			return
		}
		if req.Documents != nil && req.Documents.ABN != "" && !onboarding.ValidABN(req.Documents.ABN) {
			utils.BadRequestResponse(c, "ABN is not valid")
			return
		}

		tenant, err := a.store.UpdateDetails(c.Request.Context(), c.Param("id"), req)
		if err != nil {
			respondError(c, err, "update tenant")
			return
		}

		user, _ := middleware.UserFromContext(c)
		a.publish(notifications.EventDetailsUpdated, tenant, user.UserID)
		utils.OKResponse(c, "Tenant updated successfully", tenant)
	}
}

// handleUpdateFeatures replaces the tenant's feature toggles
func handleUpdateFeatures(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.Features
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request format")
			return
		}

		tenant, err := a.store.UpdateFeatures(c.Request.Context(), c.Param("id"), req)
		if err != nil {
			respondError(c, err, "update features")
			return
		}

		user, _ := middleware.UserFromContext(c)
		a.publish(notifications.EventFeaturesUpdated, tenant, user.UserID)
		utils.OKResponse(c, "Features updated successfully", tenant)
	}
}

// handleUpdateStatus changes a tenant's lifecycle status (admin only)
func handleUpdateStatus(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Status is required")
			return
		}

		tenant, err := a.store.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
		if err != nil {
			respondError(c, err, "update status")
			return
		}

		user, _ := middleware.UserFromContext(c)
		a.publish(notifications.EventStatusChanged, tenant, user.UserID)
		utils.OKResponse(c, "Status updated successfully", tenant)
	}
}

// handleDeleteTenant handles deleting a tenant (admin only)
func handleDeleteTenant(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.Param("id")

		tenant, err := a.store.Tenant(tenantID)
		if err != nil {
			respondError(c, err, "delete tenant")
			return
		}
		if err := a.store.Delete(c.Request.Context(), tenantID); err != nil {
			respondError(c, err, "delete tenant")
			return
		}

		user, _ := middleware.UserFromContext(c)
		a.publish(notifications.EventTenantDeleted, tenant, user.UserID)
		utils.OKResponse(c, "Tenant deleted successfully", nil)
	}
}

// handleLogoUpload returns a presigned URL the browser uploads the logo to.
// The key is saved on the tenant through the details update afterwards.
func handleLogoUpload(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.logos == nil {
			utils.ServiceUnavailableResponse(c, "Logo uploads are not configured")
			return
		}

		var req LogoUploadRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Filename is required")
			return
		}
		tenantID := c.Param("id")
		if _, err := a.store.Tenant(tenantID); err != nil {
			respondError(c, err, "upload logo")
			return
		}

		upload, err := a.logos.PresignUpload(tenantID, req.Filename)
		if err != nil {
			respondError(c, err, "upload logo")
			return
		}
		utils.OKResponse(c, "Upload URL created", upload)
	}
}

// handleInviteMember mints an invitation link (and emails it when the service
// key is configured). Tenant owners cannot invite admins.
func handleInviteMember(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req InviteMemberRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Email is required")
			return
		}
		email := strings.ToLower(strings.TrimSpace(req.Email))
		if !onboarding.ValidEmail(email) {
			utils.BadRequestResponse(c, "Email is not valid")
			return
		}
		role := req.Role
		if role == "" {
			role = models.RoleUser
		}
		if role != models.RoleUser && role != models.RoleTenantOwner {
			utils.BadRequestResponse(c, "Role must be user or tenant_owner")
			return
		}

		tenant, err := a.store.Tenant(c.Param("id"))
		if err != nil {
			respondError(c, err, "invite member")
			return
		}

		token, err := a.codec.Encode(models.Invitation{TenantID: tenant.ID, Email: email, Role: role})
		if err != nil {
			respondError(c, err, "invite member")
			return
		}
		link := onboarding.InviteLink{Email: email, Role: role, Link: invitation.Link(a.cfg.AppURL, token)}
		inviteMembers(c.Request.Context(), a, tenant.ID, []onboarding.InviteLink{link})

		user, _ := middleware.UserFromContext(c)
		logrus.WithFields(logrus.Fields{
			"tenant_id":  tenant.ID,
			"invited_by": user.UserID,
			"role":       role,
		}).Info("Invitation created")

		utils.CreatedResponse(c, "Invitation created", link)
	}
}

// handleGetActiveTenant returns the tenant the user is working in
func handleGetActiveTenant(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := middleware.UserFromContext(c)
		t := activeTenant(a, user)
		if t == nil {
			utils.NotFoundResponse(c, "No tenant selected")
			return
		}
		utils.OKResponse(c, "Active tenant retrieved", t)
	}
}

// handleSetActiveTenant selects a tenant the user has access to
func handleSetActiveTenant(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SetActiveTenantRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Tenant id is required")
			return
		}

		user, _ := middleware.UserFromContext(c)
		if !user.CanAccessTenant(req.TenantID) {
			utils.ForbiddenResponse(c, "Access denied to this tenant")
			return
		}
		if err := a.store.SetActive(user.UserID, req.TenantID); err != nil {
			respondError(c, err, "select tenant")
			return
		}
		utils.OKResponse(c, "Active tenant updated", activeTenant(a, user))
	}
}

func validBranding(b models.Branding) bool {
	return onboarding.ValidColour(b.PrimaryColor) && onboarding.ValidColour(b.SecondaryColor)
}
