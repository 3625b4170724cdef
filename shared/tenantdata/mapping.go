package tenantdata

import (
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/pavitra93/care-intake-portal/shared/models"
)

// TenantFromRow flattens a tenant row. Missing or malformed configuration
// falls back to the defaults field by field.
func TenantFromRow(row models.TenantRow) models.Tenant {
	t := models.Tenant{
		ID:        row.ID,
		Name:      row.Name,
		Status:    models.TenantStatus(row.Status),
		CreatedAt: row.CreatedAt,
		Branding:  models.DefaultBranding(),
		Features:  models.DefaultFeatures(),
		Documents: models.DefaultDocumentSettings(),
	}
	if !t.Status.Valid() {
		t.Status = models.TenantStatusActive
	}

	// keys absent from the stored object keep their default
	branding, features, documents := models.DefaultBranding(), models.DefaultFeatures(), models.DefaultDocumentSettings()
	cfg := models.TenantConfig{Branding: &branding, Features: &features, Documents: &documents}
	if len(row.Config) > 0 && string(row.Config) != "null" {
		if err := json.Unmarshal(row.Config, &cfg); err != nil {
			logrus.WithFields(logrus.Fields{
				"tenant_id": row.ID,
				"error":     err,
			}).Warn("Malformed tenant config, using defaults")
			return t
		}
	}

	if cfg.Branding != nil {
		t.Branding = *cfg.Branding
		if t.Branding.PrimaryColor == "" {
			t.Branding.PrimaryColor = models.DefaultPrimaryColor
		}
		if t.Branding.SecondaryColor == "" {
			t.Branding.SecondaryColor = models.DefaultSecondaryColor
		}
	}
	if cfg.Features != nil {
		t.Features = *cfg.Features
	}
	if cfg.Documents != nil {
		t.Documents = *cfg.Documents
		if t.Documents.InvoicePrefix == "" {
			t.Documents.InvoicePrefix = models.DefaultInvoicePrefix
		}
		if t.Documents.Format == "" {
			t.Documents.Format = models.DefaultDocumentFormat
		}
	}
	return t
}

// TenantToRow nests branding, features and document settings back into the config column
func TenantToRow(t models.Tenant) models.TenantRow {
	return models.TenantRow{
		ID:        t.ID,
		Name:      t.Name,
		Status:    string(t.Status),
		CreatedAt: t.CreatedAt,
		Config:    tenantConfig(t),
	}
}

func tenantConfig(t models.Tenant) json.RawMessage {
	branding, features, documents := t.Branding, t.Features, t.Documents
	data, err := json.Marshal(models.TenantConfig{
		Branding:  &branding,
		Features:  &features,
		Documents: &documents,
	})
	if err != nil {
		// plain structs of strings and bools
		panic(err)
	}
	return data
}

// ClientFromRow maps a client row, treating absent columns as zero values
func ClientFromRow(row models.ClientRow) models.Client {
	c := models.Client{
		ID:              row.ID,
		TenantID:        row.TenantID,
		Name:            row.Name,
		Email:           deref(row.Email),
		Phone:           deref(row.Phone),
		Address:         deref(row.Address),
		IntegrationRef:  deref(row.IntegrationRef),
		Status:          models.ClientStatus(row.Status),
		RenewalDate:     row.RenewalDate,
		HomeCarePackage: row.HomeCarePackage,
		SupportAtHome:   row.SupportAtHome,
		CHSP:            row.CHSP,
		CreatedAt:       row.CreatedAt,
		Documents:       []models.ClientDocument{},
	}
	if c.Status == "" {
		c.Status = models.ClientStatusActive
	}
	if row.BudgetCap != nil {
		c.BudgetCap = *row.BudgetCap
	}
	if row.BudgetUsed != nil {
		c.BudgetUsed = *row.BudgetUsed
	}
	if row.FundingLevel != nil {
		c.FundingLevel = *row.FundingLevel
	}
	if len(row.Documents) > 0 && string(row.Documents) != "null" {
		if err := json.Unmarshal(row.Documents, &c.Documents); err != nil {
			logrus.WithFields(logrus.Fields{
				"client_id": row.ID,
				"error":     err,
			}).Warn("Malformed client documents, ignoring")
			c.Documents = []models.ClientDocument{}
		}
	}
	return c
}

// ClientToRow is the inverse of ClientFromRow; empty optional strings become NULL
func ClientToRow(c models.Client) models.ClientRow {
	docs := c.Documents
	if docs == nil {
		docs = []models.ClientDocument{}
	}
	data, err := json.Marshal(docs)
	if err != nil {
		panic(err)
	}

	row := models.ClientRow{
		ID:              c.ID,
		TenantID:        c.TenantID,
		Name:            c.Name,
		Email:           optional(c.Email),
		Phone:           optional(c.Phone),
		Address:         optional(c.Address),
		IntegrationRef:  optional(c.IntegrationRef),
		Status:          string(c.Status),
		BudgetCap:       &c.BudgetCap,
		BudgetUsed:      &c.BudgetUsed,
		RenewalDate:     c.RenewalDate,
		Documents:       data,
		HomeCarePackage: c.HomeCarePackage,
		SupportAtHome:   c.SupportAtHome,
		CHSP:            c.CHSP,
		CreatedAt:       c.CreatedAt,
	}
	if c.FundingLevel > 0 {
		level := c.FundingLevel
		row.FundingLevel = &level
	}
	return row
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
