package auth

import "time"

// User is an identity record. Pure-SSO accounts carry an empty PasswordHash
// and must never pass the local password path.
type User struct {
	ID             string     `json:"user_id"`
	Username       string     `json:"username"`
	Email          string     `json:"email"`
	PasswordHash   string     `json:"-"`
	FullName       string     `json:"full_name,omitempty"`
	Title          string     `json:"title,omitempty"`
	ProfilePicture string     `json:"profile_picture,omitempty"`
	IsSSOUser      bool       `json:"is_sso_user"`
	SSOProvider    string     `json:"sso_provider,omitempty"`
	SSOUserID      string     `json:"-"`
	IsActive       bool       `json:"is_active"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	LastLogin      *time.Time `json:"last_login,omitempty"`
}

// RoleAssignment grants a named role to a user. (UserID, RoleName) is unique.
type RoleAssignment struct {
	UserID     string    `json:"user_id"`
	RoleName   string    `json:"role_name"`
	AssignedBy string    `json:"assigned_by,omitempty"`
	AssignedAt time.Time `json:"assigned_at"`
}

// AuditEntry is an immutable record of a security-relevant action. UserID is
// empty for pre-auth failures.
type AuditEntry struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id,omitempty"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id,omitempty"`
	Details    string    `json:"details,omitempty"`
	IPAddress  string    `json:"ip_address,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Setting is one row of the app_config key-value store.
type Setting struct {
	Key         string    `json:"config_key"`
	Value       string    `json:"config_value"`
	Type        string    `json:"config_type"`
	Description string    `json:"description,omitempty"`
	IsEditable  bool      `json:"is_editable"`
	UpdatedAt   time.Time `json:"updated_at"`
	UpdatedBy   string    `json:"updated_by,omitempty"`
}
