package models

import "time"

type Role struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Level       int    `json:"level"`
	IsSystem    bool   `json:"is_system"`
	Description string `json:"description,omitempty"`
}

type UserRole struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	RoleID    string     `json:"role_id"`
	RoleName  string     `json:"role_name"`
	RoleLevel int        `json:"role_level"`
	GrantedBy string     `json:"granted_by,omitempty"`
	GrantedAt time.Time  `json:"granted_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	IsActive  bool       `json:"is_active"`
}

// RoleGrant is one row of the get_user_roles function.
type RoleGrant struct {
	RoleName  string     `json:"role_name"`
	RoleLevel int        `json:"role_level"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Live reports whether the grant still counts at the given instant.
func (g RoleGrant) Live(now time.Time) bool {
	return g.ExpiresAt == nil || g.ExpiresAt.After(now)
}

type Permission struct {
	ID          string `json:"id"`
	Resource    string `json:"resource"`
	Action      string `json:"action"`
	Description string `json:"description,omitempty"`
}

type Profile struct {
	UserID       string    `json:"user_id"`
	FullName     string    `json:"full_name"`
	Email        string    `json:"email,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	Whatsapp     string    `json:"whatsapp,omitempty"`
	Address      string    `json:"address,omitempty"`
	City         string    `json:"city,omitempty"`
	ShowName     bool      `json:"show_name"`
	ShowPhone    bool      `json:"show_phone"`
	ShowEmail    bool      `json:"show_email"`
	ShowWhatsapp bool      `json:"show_whatsapp"`
	ShowAddress  bool      `json:"show_address"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

const (
	RoleSuperAdmin   = "super_admin"
	RoleCompanyAdmin = "company_admin"
	RoleBranchAdmin  = "branch_admin"
	RoleCustomer     = "customer"
)

const (
	LevelSuperAdmin   = 100
	LevelCompanyAdmin = 50
	LevelBranchAdmin  = 30
	LevelCustomer     = 1
)

type AuditLog struct {
	ID          string         `json:"id"`
	ActorUserID string         `json:"actor_user_id,omitempty"`
	ActionType  string         `json:"action_type"`
	TargetType  string         `json:"target_type"`
	TargetID    string         `json:"target_id"`
	Details     map[string]any `json:"details,omitempty"`
	IP          string         `json:"ip,omitempty"`
	UserAgent   string         `json:"user_agent,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
