package main

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/pavitra93/care-intake-portal/shared/legal"
	"github.com/pavitra93/care-intake-portal/shared/middleware"
	"github.com/pavitra93/care-intake-portal/shared/navigation"
	"github.com/pavitra93/care-intake-portal/shared/utils"
)

// handleNavigation builds the sidebar for the user's active tenant
func handleNavigation(a *app) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := middleware.UserFromContext(c)

		tenant := restoreActiveTenant(a, user)
		sidebar := navigation.Build(user, tenant, navigation.Options{DevtoolsEnabled: a.cfg.DevtoolsEnabled})
		if tenant != nil {
			sidebar.LogoURL = a.logos.ResolveLogo(tenant.Branding.LogoRef)
		}
		utils.OKResponse(c, "Navigation retrieved", sidebar)
	}
}

func handleLegalIndex(lib *legal.Library) gin.HandlerFunc {
	return func(c *gin.Context) {
		utils.OKResponse(c, "Legal documents retrieved", lib.Index())
	}
}

func handleLegalDocument(lib *legal.Library) gin.HandlerFunc {
	return func(c *gin.Context) {
		doc, err := lib.Get(c.Param("slug"))
		if err != nil {
			if errors.Is(err, legal.ErrDocumentNotFound) {
				utils.NotFoundResponse(c, "Document not found")
				return
			}
			utils.InternalServerErrorResponse(c, "Failed to load document")
			return
		}
		utils.OKResponse(c, "Legal document retrieved", doc)
	}
}
