package navigation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pavitra93/care-intake-portal/shared/models"
)

func acme() *models.Tenant {
	return &models.Tenant{
		ID:       "t-1",
		Name:     "Acme Care",
		Status:   models.TenantStatusActive,
		Branding: models.DefaultBranding(),
		Features: models.DefaultFeatures(),
	}
}

func TestBuild_StaffSeesFeatureGatedWorkspace(t *testing.T) {
	user := models.UserInfo{UserID: "u-1", Role: models.RoleUser, TenantID: "t-1"}

	sb := Build(user, acme(), Options{})
	assert.Equal(t, []string{"dashboard", "invoices", "compliance", "clients", "budgets"}, sb.Keys())
	assert.Equal(t, "Acme Care", sb.TenantName)
	assert.Equal(t, models.DefaultPrimaryColor, sb.Branding.PrimaryColor)
}

func TestBuild_OwnerSeesManageSection(t *testing.T) {
	user := models.UserInfo{UserID: "u-1", Role: models.RoleTenantOwner, TenantID: "t-1"}
	tenant := acme()
	tenant.Features.AccountingSync = true
	tenant.Features.InvoiceIntake = false

	sb := Build(user, tenant, Options{DevtoolsEnabled: true})
	assert.Equal(t, []string{"dashboard", "compliance", "clients", "budgets", "accounting", "team", "settings"}, sb.Keys())
}

func TestBuild_OwnerOfAnotherTenantCannotManage(t *testing.T) {
	user := models.UserInfo{UserID: "u-1", Role: models.RoleTenantOwner, TenantID: "t-9"}
	assert.NotContains(t, Build(user, acme(), Options{}).Keys(), "settings")
}

func TestBuild_Admin(t *testing.T) {
	admin := models.UserInfo{UserID: "u-0", Role: models.RoleAdmin, IsAdmin: true}

	sb := Build(admin, nil, Options{DevtoolsEnabled: true})
	assert.Equal(t, []string{"tenants", "devtools"}, sb.Keys())

	sb = Build(admin, nil, Options{})
	assert.Equal(t, []string{"tenants"}, sb.Keys())

	sb = Build(admin, acme(), Options{})
	assert.Contains(t, sb.Keys(), "settings")
	assert.Contains(t, sb.Keys(), "tenants")
}

func TestBuild_SuspendedTenant(t *testing.T) {
	user := models.UserInfo{UserID: "u-1", Role: models.RoleTenantOwner, TenantID: "t-1"}
	tenant := acme()
	tenant.Status = models.TenantStatusSuspended

	sb := Build(user, tenant, Options{})
	assert.Equal(t, []string{"dashboard", "settings"}, sb.Keys())
	assert.NotEmpty(t, sb.Notice)
}
