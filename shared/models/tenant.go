package models

import (
	"encoding/json"
	"errors"
	"time"
)

// TenantStatus represents the lifecycle status of a tenant
type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusBeta      TenantStatus = "beta"
	TenantStatusTrial     TenantStatus = "trial"
	TenantStatusSuspended TenantStatus = "suspended"
)

// Valid reports whether s is a known tenant status
func (s TenantStatus) Valid() bool {
	switch s {
	case TenantStatusActive, TenantStatusBeta, TenantStatusTrial, TenantStatusSuspended:
		return true
	}
	return false
}

// Default branding colours used when a tenant has not configured its own
const (
	DefaultPrimaryColor   = "#0F766E"
	DefaultSecondaryColor = "#F59E0B"
	DefaultInvoicePrefix  = "INV"
	DefaultDocumentFormat = "pdf"
)

// Branding holds the tenant's look and feel
type Branding struct {
	PrimaryColor   string `json:"primary_color"`
	SecondaryColor string `json:"secondary_color"`
	LogoRef        string `json:"logo_ref,omitempty"`
}

// Features holds the tenant's feature toggles
type Features struct {
	InvoiceIntake   bool `json:"invoice_intake"`
	ComplianceAudit bool `json:"compliance_audit"`
	BudgetTracking  bool `json:"budget_tracking"`
	ClientDocuments bool `json:"client_documents"`
	AccountingSync  bool `json:"accounting_sync"`
}

// DocumentSettings controls generated invoices and audit reports
type DocumentSettings struct {
	ABN               string `json:"abn,omitempty"`
	LegalName         string `json:"legal_name,omitempty"`
	InvoicePrefix     string `json:"invoice_prefix"`
	FooterText        string `json:"footer_text,omitempty"`
	IncludeAuditTrail bool   `json:"include_audit_trail"`
	Format            string `json:"format"`
}

// Tenant represents one customer organisation using the portal
type Tenant struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Status    TenantStatus     `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	Branding  Branding         `json:"branding"`
	Features  Features         `json:"features"`
	Documents DocumentSettings `json:"document_settings"`
}

// DefaultBranding returns the branding applied when none is configured
func DefaultBranding() Branding {
	return Branding{
		PrimaryColor:   DefaultPrimaryColor,
		SecondaryColor: DefaultSecondaryColor,
	}
}

// DefaultFeatures returns the feature set a new tenant starts with
func DefaultFeatures() Features {
	return Features{
		InvoiceIntake:   true,
		ComplianceAudit: true,
		BudgetTracking:  true,
	}
}

// FeatureKeys are the feature toggles by their JSON names
var FeatureKeys = []string{"invoice_intake", "compliance_audit", "budget_tracking", "client_documents", "accounting_sync"}

var ErrUnknownFeature = errors.New("unknown feature")

func (f *Features) flag(key string) *bool {
	switch key {
	case "invoice_intake":
		return &f.InvoiceIntake
	case "compliance_audit":
		return &f.ComplianceAudit
	case "budget_tracking":
		return &f.BudgetTracking
	case "client_documents":
		return &f.ClientDocuments
	case "accounting_sync":
		return &f.AccountingSync
	}
	return nil
}

// Set switches the feature named key
func (f *Features) Set(key string, on bool) error {
	p := f.flag(key)
	if p == nil {
		return ErrUnknownFeature
	}
	*p = on
	return nil
}

// Enabled returns the keys of the features that are on
func (f Features) Enabled() []string {
	out := []string{}
	for _, key := range FeatureKeys {
		if *f.flag(key) {
			out = append(out, key)
		}
	}
	return out
}

// DefaultDocumentSettings returns the document settings a new tenant starts with
func DefaultDocumentSettings() DocumentSettings {
	return DocumentSettings{
		InvoicePrefix:     DefaultInvoicePrefix,
		IncludeAuditTrail: true,
		Format:            DefaultDocumentFormat,
	}
}

// TenantDetails is the editable identity of a tenant (everything except features and status)
type TenantDetails struct {
	Name      *string           `json:"name,omitempty"`
	Branding  *Branding         `json:"branding,omitempty"`
	Documents *DocumentSettings `json:"document_settings,omitempty"`
}

// Apply copies the non-nil fields of d onto t
func (d TenantDetails) Apply(t *Tenant) {
	if d.Name != nil {
		t.Name = *d.Name
	}
	if d.Branding != nil {
		t.Branding = *d.Branding
	}
	if d.Documents != nil {
		t.Documents = *d.Documents
	}
}

// NewTenant holds the fields required to create a tenant
type NewTenant struct {
	Name      string            `json:"name" binding:"required"`
	Status    TenantStatus      `json:"status,omitempty"`
	Branding  *Branding         `json:"branding,omitempty"`
	Features  *Features         `json:"features,omitempty"`
	Documents *DocumentSettings `json:"document_settings,omitempty"`
}

// TenantConfig is the JSON configuration column of a tenant row
type TenantConfig struct {
	Branding  *Branding         `json:"branding,omitempty"`
	Features  *Features         `json:"features,omitempty"`
	Documents *DocumentSettings `json:"documents,omitempty"`
}

// TenantRow is the remote row representation of a tenant
type TenantRow struct {
	ID        string          `json:"id" gorm:"column:id;type:uuid;primaryKey"`
	Name      string          `json:"name" gorm:"column:name;not null"`
	Status    string          `json:"status" gorm:"column:status;type:varchar(20);default:'active'"`
	CreatedAt time.Time       `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	Config    json.RawMessage `json:"config" gorm:"column:config;type:jsonb;default:'{}'"`
}

// TableName returns the table name for the TenantRow model
func (TenantRow) TableName() string {
	return "tenants"
}
