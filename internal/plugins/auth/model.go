// Package auth handles authentication, password lifecycle and authorization
// for the asset management service. It owns the users table (credentials,
// lock state, password history), verifies logins with a per-account lockout,
// and answers role and permission questions for every other plugin.
//
// This is a CORE plugin -- always enabled, cannot be disabled.
package auth

import (
	"time"
)

// --- Roles ---

// Roles form a closed set. Admin is the superuser role and bypasses the
// role-to-permission mapping.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleViewer  = "viewer"
)

// Roles lists every valid role in display order.
var Roles = []string{RoleAdmin, RoleManager, RoleViewer}

// ValidRole reports whether role is one of Roles.
func ValidRole(role string) bool {
	for _, r := range Roles {
		if r == role {
			return true
		}
	}
	return false
}

// --- Permissions ---

// Permission names. The catalog lives in the permissions table; these
// constants are the names code checks against.
const (
	PermViewAssets        = "view_assets"
	PermCreateAssets      = "create_assets"
	PermEditAssets        = "edit_assets"
	PermEditAssetLocation = "edit_asset_location"
	PermEditAssetStatus   = "edit_asset_status"
	PermDeleteAssets      = "delete_assets"
	PermManageUsers       = "manage_users"
	PermResetUserPassword = "reset_user_password"
	PermViewReports       = "view_reports"
)

// User is the identity and credential holder. Database scanning uses this
// struct directly.
type User struct {
	ID                  int64      `json:"id"`
	FullName            string     `json:"full_name"`
	Email               string     `json:"email"`
	PasswordHash        string     `json:"-"` // Never expose in JSON responses.
	Role                string     `json:"role"`
	IsActive            bool       `json:"is_active"`
	FailedLoginAttempts int        `json:"failed_login_attempts"`
	LockedUntil         *time.Time `json:"locked_until,omitempty"`
	LastPasswordChange  *time.Time `json:"last_password_change,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// --- Request DTOs (bound from HTTP requests) ---

// LoginRequest holds the data submitted by the login form.
type LoginRequest struct {
	Email    string `form:"email"`
	Password string `form:"password"`
}

// ChangePasswordRequest holds the data submitted by the change password form.
type ChangePasswordRequest struct {
	CurrentPassword string `form:"current_password"`
	NewPassword     string `form:"new_password"`
	ConfirmPassword string `form:"confirm_password"`
}

// --- Service Input DTOs (passed from handler to service) ---

// LoginInput is the input for authenticating a user.
type LoginInput struct {
	Email     string
	Password  string
	IPAddress string
}

// ChangePasswordInput is the input for a self-service password change.
type ChangePasswordInput struct {
	CurrentPassword string
	NewPassword     string
	ConfirmPassword string
	IPAddress       string
}

// NewUserInput is the input for creating an account.
type NewUserInput struct {
	FullName string
	Email    string
	Role     string
	IsActive bool
	Password string
}

// UpdateUserInput is the input for editing an account's profile. Passwords
// are changed through the dedicated reset flow, never here.
type UpdateUserInput struct {
	FullName string
	Email    string
	Role     string
	IsActive bool
}
