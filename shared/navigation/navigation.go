// Package navigation decides which sidebar entries a user sees.
package navigation

import (
	"github.com/pavitra93/care-intake-portal/shared/models"
)

// Item is one sidebar entry
type Item struct {
	Key     string `json:"key"`
	Label   string `json:"label"`
	Path    string `json:"path"`
	Section string `json:"section"`
}

const (
	SectionWorkspace = "workspace"
	SectionManage    = "manage"
	SectionAdmin     = "admin"
)

// Sidebar is everything the sidebar renders
type Sidebar struct {
	Items      []Item           `json:"items"`
	TenantID   string           `json:"tenant_id,omitempty"`
	TenantName string           `json:"tenant_name,omitempty"`
	Status     string           `json:"status,omitempty"`
	Branding   *models.Branding `json:"branding,omitempty"`
	LogoURL    string           `json:"logo_url,omitempty"`
	Notice     string           `json:"notice,omitempty"`
}

// Options carries settings that are not part of the user or tenant
type Options struct {
	DevtoolsEnabled bool
}

type entry struct {
	item    Item
	feature func(models.Features) bool
	manage  bool // tenant owners and admins
	admin   bool
	// kept visible for suspended tenants
	always bool
}

var entries = []entry{
	{item: Item{Key: "dashboard", Label: "Dashboard", Path: "/dashboard", Section: SectionWorkspace}, always: true},
	{item: Item{Key: "invoices", Label: "Invoices", Path: "/invoices", Section: SectionWorkspace},
		feature: func(f models.Features) bool { return f.InvoiceIntake }},
	{item: Item{Key: "compliance", Label: "Compliance", Path: "/compliance", Section: SectionWorkspace},
		feature: func(f models.Features) bool { return f.ComplianceAudit }},
	{item: Item{Key: "clients", Label: "Clients", Path: "/clients", Section: SectionWorkspace}},
	{item: Item{Key: "budgets", Label: "Budgets", Path: "/budgets", Section: SectionWorkspace},
		feature: func(f models.Features) bool { return f.BudgetTracking }},
	{item: Item{Key: "documents", Label: "Documents", Path: "/documents", Section: SectionWorkspace},
		feature: func(f models.Features) bool { return f.ClientDocuments }},
	{item: Item{Key: "accounting", Label: "Accounting sync", Path: "/integrations/accounting", Section: SectionManage},
		feature: func(f models.Features) bool { return f.AccountingSync }, manage: true},
	{item: Item{Key: "team", Label: "Team", Path: "/team", Section: SectionManage}, manage: true},
	{item: Item{Key: "settings", Label: "Settings", Path: "/settings", Section: SectionManage}, manage: true, always: true},
	{item: Item{Key: "tenants", Label: "Tenants", Path: "/admin/tenants", Section: SectionAdmin}, admin: true, always: true},
}

var devtools = Item{Key: "devtools", Label: "Developer tools", Path: "/devtools", Section: SectionAdmin}

// Build lists the entries for user working in tenant (nil when no tenant is selected)
func Build(user models.UserInfo, tenant *models.Tenant, opts Options) Sidebar {
	sb := Sidebar{Items: []Item{}}

	suspended := false
	var features models.Features
	if tenant != nil {
		features = tenant.Features
		suspended = tenant.Status == models.TenantStatusSuspended
		branding := tenant.Branding
		sb.TenantID = tenant.ID
		sb.TenantName = tenant.Name
		sb.Status = string(tenant.Status)
		sb.Branding = &branding
		if suspended {
			sb.Notice = "This organisation is suspended. Contact support to restore access."
		}
	}

	for _, e := range entries {
		if e.admin && !user.IsAdminUser() {
			continue
		}
		if !e.admin {
			// tenant entries need a tenant
			if tenant == nil {
				continue
			}
			if e.manage && !user.CanManageTenant(tenant.ID) {
				continue
			}
			if e.feature != nil && !e.feature(features) {
				continue
			}
		}
		if suspended && !e.always {
			continue
		}
		sb.Items = append(sb.Items, e.item)
	}

	if opts.DevtoolsEnabled && user.IsAdminUser() {
		sb.Items = append(sb.Items, devtools)
	}
	return sb
}

// Keys returns the item keys, in order
func (s Sidebar) Keys() []string {
	keys := make([]string, 0, len(s.Items))
	for _, it := range s.Items {
		keys = append(keys, it.Key)
	}
	return keys
}
