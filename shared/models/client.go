package models

import (
	"encoding/json"
	"time"
)

// ClientStatus represents the status of a care recipient
type ClientStatus string

const (
	ClientStatusActive   ClientStatus = "active"
	ClientStatusInactive ClientStatus = "inactive"
	ClientStatusPending  ClientStatus = "pending"
)

// ClientDocument is a document attached to a care recipient (care plan, agreement, statement)
type ClientDocument struct {
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Client represents a care recipient managed by a tenant
type Client struct {
	ID              string           `json:"id"`
	TenantID        string           `json:"tenant_id"`
	Name            string           `json:"name"`
	Email           string           `json:"email,omitempty"`
	Phone           string           `json:"phone,omitempty"`
	Address         string           `json:"address,omitempty"`
	IntegrationRef  string           `json:"integration_ref,omitempty"`
	Status          ClientStatus     `json:"status"`
	BudgetCap       float64          `json:"budget_cap"`
	BudgetUsed      float64          `json:"budget_used"`
	RenewalDate     *time.Time       `json:"renewal_date,omitempty"`
	Documents       []ClientDocument `json:"documents"`
	HomeCarePackage bool             `json:"home_care_package"`
	FundingLevel    int              `json:"funding_level,omitempty"`
	SupportAtHome   bool             `json:"support_at_home"`
	CHSP            bool             `json:"chsp"`
	CreatedAt       time.Time        `json:"created_at"`
}

// BudgetRemaining returns the unspent part of the client's budget (never negative)
func (c Client) BudgetRemaining() float64 {
	if c.BudgetUsed >= c.BudgetCap {
		return 0
	}
	return c.BudgetCap - c.BudgetUsed
}

// OverBudget reports whether spending has exceeded the cap
func (c Client) OverBudget() bool {
	return c.BudgetCap > 0 && c.BudgetUsed > c.BudgetCap
}

// ClientInput holds the writable fields of a client
type ClientInput struct {
	Name            string           `json:"name" binding:"required"`
	Email           string           `json:"email" binding:"omitempty,email"`
	Phone           string           `json:"phone"`
	Address         string           `json:"address"`
	IntegrationRef  string           `json:"integration_ref"`
	Status          ClientStatus     `json:"status"`
	BudgetCap       float64          `json:"budget_cap" binding:"gte=0"`
	BudgetUsed      float64          `json:"budget_used" binding:"gte=0"`
	RenewalDate     *time.Time       `json:"renewal_date"`
	Documents       []ClientDocument `json:"documents"`
	HomeCarePackage bool             `json:"home_care_package"`
	FundingLevel    int              `json:"funding_level" binding:"gte=0,lte=4"`
	SupportAtHome   bool             `json:"support_at_home"`
	CHSP            bool             `json:"chsp"`
}

// Apply copies the input onto c
func (in ClientInput) Apply(c *Client) {
	c.Name = in.Name
	c.Email = in.Email
	c.Phone = in.Phone
	c.Address = in.Address
	c.IntegrationRef = in.IntegrationRef
	c.Status = in.Status
	if c.Status == "" {
		c.Status = ClientStatusActive
	}
	c.BudgetCap = in.BudgetCap
	c.BudgetUsed = in.BudgetUsed
	c.RenewalDate = in.RenewalDate
	c.Documents = in.Documents
	c.HomeCarePackage = in.HomeCarePackage
	c.FundingLevel = in.FundingLevel
	c.SupportAtHome = in.SupportAtHome
	c.CHSP = in.CHSP
}

// ClientRow is the remote row representation of a client
type ClientRow struct {
	ID              string          `json:"id" gorm:"column:id;type:uuid;primaryKey"`
	TenantID        string          `json:"tenant_id" gorm:"column:tenant_id;type:uuid;not null;index"`
	Name            string          `json:"name" gorm:"column:name;not null"`
	Email           *string         `json:"email" gorm:"column:email"`
	Phone           *string         `json:"phone" gorm:"column:phone"`
	Address         *string         `json:"address" gorm:"column:address"`
	IntegrationRef  *string         `json:"integration_ref" gorm:"column:integration_ref"`
	Status          string          `json:"status" gorm:"column:status;type:varchar(20);default:'active'"`
	BudgetCap       *float64        `json:"budget_cap" gorm:"column:budget_cap"`
	BudgetUsed      *float64        `json:"budget_used" gorm:"column:budget_used"`
	RenewalDate     *time.Time      `json:"renewal_date" gorm:"column:renewal_date"`
	Documents       json.RawMessage `json:"documents" gorm:"column:documents;type:jsonb;default:'[]'"`
	HomeCarePackage bool            `json:"home_care_package" gorm:"column:home_care_package"`
	FundingLevel    *int            `json:"funding_level" gorm:"column:funding_level"`
	SupportAtHome   bool            `json:"support_at_home" gorm:"column:support_at_home"`
	CHSP            bool            `json:"chsp" gorm:"column:chsp"`
	CreatedAt       time.Time       `json:"created_at" gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the table name for the ClientRow model
func (ClientRow) TableName() string {
	return "clients"
}
