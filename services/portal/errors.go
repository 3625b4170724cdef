package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/care-intake-portal/shared/notifications"
	"github.com/pavitra93/care-intake-portal/shared/onboarding"
	"github.com/pavitra93/care-intake-portal/shared/remote"
	"github.com/pavitra93/care-intake-portal/shared/session"
	"github.com/pavitra93/care-intake-portal/shared/storage"
	"github.com/pavitra93/care-intake-portal/shared/tenantdata"
	"github.com/pavitra93/care-intake-portal/shared/tenantstore"
	"github.com/pavitra93/care-intake-portal/shared/utils"
)

var onboardingErrors = []error{
	onboarding.ErrUnknownStep,
	onboarding.ErrStepOutOfOrder,
	onboarding.ErrMissingPayload,
	onboarding.ErrIncomplete,
	onboarding.ErrNoPreviousStep,
	onboarding.ErrReviewNotSaved,
}

// respondError maps a domain or remote error onto the response envelope.
// action is logged for failures that end up as 5xx.
func respondError(c *gin.Context, err error, action string) {
	var verr *onboarding.ValidationError
	var rerr *remote.Error

	switch {
	case errors.Is(err, utils.ErrCircuitOpen), errors.Is(err, utils.ErrTooManyRequests):
		utils.ServiceUnavailableResponse(c, "The data service is unavailable, try again shortly")
	case errors.Is(err, tenantstore.ErrTenantNotFound):
		utils.NotFoundResponse(c, "Tenant not found")
	case errors.Is(err, tenantdata.ErrClientNotFound):
		utils.NotFoundResponse(c, "Client not found")
	case errors.Is(err, notifications.ErrNotificationNotFound):
		utils.NotFoundResponse(c, "Notification not found")
	case errors.Is(err, tenantstore.ErrDuplicateTenant):
		utils.ConflictResponse(c, "A tenant with this id already exists")
	case errors.Is(err, tenantstore.ErrInvalidStatus):
		utils.BadRequestResponse(c, "Invalid tenant status")
	case errors.Is(err, storage.ErrUnsupportedType):
		utils.BadRequestResponse(c, "Logos must be PNG, JPEG, SVG or WebP images")
	case errors.Is(err, notifications.ErrEmptyMessage):
		utils.BadRequestResponse(c, "Notification message is required")
	case errors.Is(err, remote.ErrInvalidCredentials):
		utils.UnauthorizedResponse(c, "Invalid email or password")
	case errors.Is(err, remote.ErrInvalidSession), errors.Is(err, session.ErrSessionExpired):
		utils.ErrorResponse(c, http.StatusUnauthorized, utils.CodeInvalidSession, "Invalid or expired session")
	case errors.Is(err, session.ErrStateNotFound):
		utils.BadRequestResponse(c, "Sign-in link expired, start again")
	case errors.Is(err, remote.ErrServiceKeyMissing):
		utils.ServiceUnavailableResponse(c, "Invitations are not configured")
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, utils.APIResponse{
			Success: false,
			Error:   verr.Error(),
			Code:    utils.CodeBadRequest,
			Data:    verr,
		})
	case isOnboardingError(err):
		utils.BadRequestResponse(c, err.Error())
	case errors.As(err, &rerr):
		logrus.WithFields(logrus.Fields{
			"action": action,
			"status": rerr.Status,
			"code":   rerr.Code,
		}).Warn(rerr.Message)
		if rerr.Status == http.StatusConflict {
			utils.ConflictResponse(c, "The record already exists")
			return
		}
		utils.BadGatewayResponse(c, "The data service rejected the request")
	default:
		logrus.WithError(err).Error(action)
		utils.InternalServerErrorResponse(c, "Failed to "+action)
	}
}

func isOnboardingError(err error) bool {
	for _, target := range onboardingErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
