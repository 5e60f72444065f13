// Package admin provides user administration: listing, creating, editing
// and deleting accounts, clearing lockouts, and resetting another user's
// password. Every route requires the admin role.
package admin

import "github.com/glassyams/ams/internal/plugins/auth"

// maxFullNameLength matches the users.full_name column.
const maxFullNameLength = 100

// UserForm holds the data submitted by the create and edit user forms.
type UserForm struct {
	FullName string `form:"full_name"`
	Email    string `form:"email"`
	Role     string `form:"role"`
	IsActive bool   `form:"is_active"`
	Password string `form:"password"`
}

// ResetPasswordForm holds the data submitted by the admin reset form.
type ResetPasswordForm struct {
	NewPassword     string `form:"new_password"`
	ConfirmPassword string `form:"confirm_password"`
}

// ResetInput is the service input for an admin-initiated reset.
type ResetInput struct {
	Actor           *auth.User
	TargetID        int64
	NewPassword     string
	ConfirmPassword string
	IPAddress       string
}
