package main

import (
	"github.com/gin-gonic/gin"

	"github.com/pavitra93/care-intake-portal/shared/models"
	"github.com/pavitra93/care-intake-portal/shared/utils"
)

// ClientView adds the derived budget fields to a client
type ClientView struct {
	models.Client
	BudgetRemaining float64 `json:"budget_remaining"`
	OverBudget      bool    `json:"over_budget"`
}

func clientView(cl models.Client) ClientView {
	return ClientView{Client: cl, BudgetRemaining: cl.BudgetRemaining(), OverBudget: cl.OverBudget()}
}

// handleListClients lists a tenant's care recipients. A failed read shows as
// an empty list.
func handleListClients(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		clients := a.data.FetchClients(c.Request.Context(), c.Param("id"))

		views := make([]ClientView, 0, len(clients))
		for _, cl := range clients {
			views = append(views, clientView(cl))
		}
		utils.OKResponse(c, "Clients retrieved successfully", views)
	}
}

// handleGetClient handles getting a specific client
func handleGetClient(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		cl, err := a.data.FetchClient(c.Request.Context(), c.Param("id"), c.Param("client_id"))
		if err != nil {
			respondError(c, err, "fetch client")
			return
		}
		utils.OKResponse(c, "Client retrieved successfully", clientView(*cl))
	}
}

// handleCreateClient adds a care recipient to the tenant
func handleCreateClient(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ClientInput
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid client details")
			return
		}
		if !validClientInput(c, req) || !writableTenant(c, a) {
			return
		}

		cl, err := a.data.CreateClient(c.Request.Context(), c.Param("id"), req)
		if err != nil {
			respondError(c, err, "create client")
			return
		}
		utils.CreatedResponse(c, "Client created successfully", clientView(*cl))
	}
}

// handleUpdateClient replaces a client's details
func handleUpdateClient(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ClientInput
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid client details")
			return
		}
		if !validClientInput(c, req) || !writableTenant(c, a) {
			return
		}

		cl, err := a.data.UpdateClient(c.Request.Context(), c.Param("id"), c.Param("client_id"), req)
		if err != nil {
			respondError(c, err, "update client")
			return
		}
		utils.OKResponse(c, "Client updated successfully", clientView(*cl))
	}
}

// handleDeleteClient removes a client (tenant owners and admins)
func handleDeleteClient(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !writableTenant(c, a) {
			return
		}
		if err := a.data.DeleteClient(c.Request.Context(), c.Param("id"), c.Param("client_id")); err != nil {
			respondError(c, err, "delete client")
			return
		}
		utils.OKResponse(c, "Client deleted successfully", nil)
	}
}

func validClientInput(c *gin.Context, in models.ClientInput) bool {
	switch in.Status {
	case "", models.ClientStatusActive, models.ClientStatusInactive, models.ClientStatusPending:
	default:
		utils.BadRequestResponse(c, "Status must be active, inactive or pending")
		return false
	}
	if in.FundingLevel > 0 && !in.HomeCarePackage {
		utils.BadRequestResponse(c, "Funding level only applies to Home Care Package clients")
		return false
	}
	return true
}

// writableTenant rejects changes to clients of unknown or suspended tenants
func writableTenant(c *gin.Context, a *app) bool {
	tenant, err := a.store.Tenant(c.Param("id"))
	if err != nil {
		respondError(c, err, "load tenant")
		return false
	}
	if tenant.Status == models.TenantStatusSuspended {
		utils.ForbiddenResponse(c, "This organisation is suspended")
		return false
	}
	return true
}
