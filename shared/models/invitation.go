package models

import "time"

// Invitation pre-fills an invited user's login context. It is not a credential.
type Invitation struct {
	TenantID string    `json:"tenant_id"`
	Email    string    `json:"email"`
	Role     UserRole  `json:"role"`
	IssuedAt time.Time `json:"issued_at"`
	Nonce    string    `json:"nonce"`
}
