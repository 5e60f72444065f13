// Package audit records password change requests. Every admin-initiated
// reset (and, when enabled, every self-service change) leaves one row in
// password_change_requests. Rows are append-only: nothing in the
// application updates or deletes them.
package audit

import "time"

// --- Request Types ---

const (
	// TypeSelfService is a user changing their own password.
	TypeSelfService = "self_service"

	// TypeAdminReset is an administrator setting another user's password.
	TypeAdminReset = "admin_reset"
)

// --- Statuses ---

const (
	// StatusCompleted means the new credential was committed.
	StatusCompleted = "completed"
)

// NoteAdminReset is the note stored with admin-initiated resets.
const NoteAdminReset = "Password reset by administrator"

// NoteSelfService is the note stored with audited self-service changes.
const NoteSelfService = "Password changed by user"

// maxNoteLength matches the notes column width.
const maxNoteLength = 255

// PasswordChangeRequest is one recorded password change.
type PasswordChangeRequest struct {
	ID int64 `json:"id"`

	// UserID is the account whose password changed.
	UserID int64 `json:"user_id"`

	// ChangedBy is the acting user. Equal to UserID for self-service changes.
	ChangedBy int64 `json:"changed_by"`

	RequestType string    `json:"request_type"`
	Status      string    `json:"status"`
	IPAddress   string    `json:"ip_address"`
	Notes       string    `json:"notes"`
	CreatedAt   time.Time `json:"created_at"`
}
