package main

import (
	"github.com/gin-gonic/gin"

	"github.com/pavitra93/care-intake-portal/shared/middleware"
	"github.com/pavitra93/care-intake-portal/shared/onboarding"
	"github.com/pavitra93/care-intake-portal/shared/utils"
)

// DraftResponse is the wizard state with the list of steps for the progress bar
type DraftResponse struct {
	*onboarding.Draft
	Steps []onboarding.Step `json:"steps"`
	Ready bool              `json:"ready"`
}

func draftResponse(d *onboarding.Draft) DraftResponse {
	return DraftResponse{Draft: d, Steps: onboarding.Steps, Ready: d.Ready()}
}

func handleGetDraft(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := middleware.UserFromContext(c)
		d, err := a.wizard.Get(c.Request.Context(), user.UserID)
		if err != nil {
			respondError(c, err, "load onboarding")
			return
		}
		utils.OKResponse(c, "Onboarding draft retrieved", draftResponse(d))
	}
}

// handleSaveStep validates and stores one wizard step
func handleSaveStep(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req onboarding.StepInput
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Step is required")
			return
		}

		user, _ := middleware.UserFromContext(c)
		d, err := a.wizard.Save(c.Request.Context(), user.UserID, req)
		if err != nil {
			respondError(c, err, "save onboarding step")
			return
		}
		utils.OKResponse(c, "Step saved", draftResponse(d))
	}
}

func handleStepBack(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := middleware.UserFromContext(c)
		d, err := a.wizard.Back(c.Request.Context(), user.UserID)
		if err != nil {
			respondError(c, err, "go back")
			return
		}
		utils.OKResponse(c, "Moved to previous step", draftResponse(d))
	}
}

func handleDiscardDraft(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := middleware.UserFromContext(c)
		if err := a.wizard.Discard(c.Request.Context(), user.UserID); err != nil {
			respondError(c, err, "discard onboarding")
			return
		}
		utils.OKResponse(c, "Onboarding draft discarded", nil)
	}
}

// handleCompleteOnboarding creates the tenant from the draft and sends the
// team invitations
func handleCompleteOnboarding(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := middleware.UserFromContext(c)
		result, err := a.wizard.Complete(c.Request.Context(), user)
		if err != nil {
			respondError(c, err, "complete onboarding")
			return
		}

		inviteMembers(c.Request.Context(), a, result.Tenant.ID, result.Invitations)
		utils.CreatedResponse(c, "Onboarding completed", result)
	}
}
