package models

import (
	"time"
)

type UserRole string

const (
	RoleAdmin       UserRole = "admin"
	RoleTenantOwner UserRole = "tenant_owner"
	RoleUser        UserRole = "user"
)

// Valid reports whether r is a known role
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleTenantOwner, RoleUser:
		return true
	}
	return false
}

// UserInfo represents user information taken from the session's trusted claims
type UserInfo struct {
	UserID   string   `json:"user_id"`
	Email    string   `json:"email"`
	Role     UserRole `json:"role"`
	TenantID string   `json:"tenant_id,omitempty"`
	IsAdmin  bool     `json:"is_admin"`
}

func (ui *UserInfo) IsAdminUser() bool {
	return ui.IsAdmin || ui.Role == RoleAdmin
}

func (ui *UserInfo) IsTenantOwner() bool {
	return ui.Role == RoleTenantOwner
}

func (ui *UserInfo) CanManageTenant(tenantID string) bool {
	if ui.IsAdminUser() {
		return true
	}
	return ui.IsTenantOwner() && ui.TenantID != "" && ui.TenantID == tenantID
}

func (ui *UserInfo) CanAccessTenant(tenantID string) bool {
	if ui.IsAdminUser() {
		return true
	}
	return ui.TenantID != "" && ui.TenantID == tenantID
}

// AuthSession is a session issued by the remote auth service
type AuthSession struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	User         *AuthUser `json:"user"`
}

// AuthUser is the user object returned by the remote auth service
type AuthUser struct {
	ID           string                 `json:"id"`
	Email        string                 `json:"email"`
	AppMetadata  map[string]interface{} `json:"app_metadata"`
	UserMetadata map[string]interface{} `json:"user_metadata"`
	LastSignInAt *time.Time             `json:"last_sign_in_at,omitempty"`
}

// Info builds UserInfo from the server-issued app metadata only
func (u *AuthUser) Info() UserInfo {
	info := UserInfo{
		UserID: u.ID,
		Email:  u.Email,
		Role:   RoleUser,
	}
	if role, ok := u.AppMetadata["role"].(string); ok && UserRole(role).Valid() {
		info.Role = UserRole(role)
	}
	if tenantID, ok := u.AppMetadata["tenant_id"].(string); ok {
		info.TenantID = tenantID
	}
	info.IsAdmin = info.Role == RoleAdmin
	return info
}

// TokenSession represents a session stored in the cache
type TokenSession struct {
	User       UserInfo  `json:"user"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	SessionID  string    `json:"session_id"`
}

func (ts *TokenSession) IsExpired() bool {
	return time.Now().After(ts.ExpiresAt)
}

func (ts *TokenSession) UpdateLastUsed() {
	ts.LastUsedAt = time.Now()
}
