package admin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"

	"github.com/glassyams/ams/internal/apperror"
	"github.com/glassyams/ams/internal/plugins/audit"
	"github.com/glassyams/ams/internal/plugins/auth"
	"github.com/glassyams/ams/internal/sanitize"
)

// Messages shown for refused user changes.
const (
	msgDeactivateLastAdmin = "Cannot deactivate the only active admin."
	msgDeleteLastAdmin     = "Cannot delete the only active admin."
	msgDeleteSelf          = "You cannot delete your own account."
	msgResetSelf           = "Use the Change Password page to reset your own password."
	msgUserNotFound        = "User not found."
)

// UserService handles account administration. It depends on the auth
// plugin's repository and service; credentials are only ever written
// through the auth service.
type UserService interface {
	ListUsers(ctx context.Context) ([]auth.User, error)
	GetUser(ctx context.Context, id int64) (*auth.User, error)
	CreateUser(ctx context.Context, form UserForm) (*auth.User, error)
	UpdateUser(ctx context.Context, id int64, form UserForm) (*auth.User, error)
	DeleteUser(ctx context.Context, actor *auth.User, id int64) error
	UnlockUser(ctx context.Context, id int64) error
	ResetPassword(ctx context.Context, input ResetInput) (*auth.User, error)
}

// userService implements UserService.
type userService struct {
	users auth.UserRepository
	auth  auth.AuthService
	audit audit.Service
}

// NewUserService creates a new user administration service.
func NewUserService(users auth.UserRepository, authSvc auth.AuthService, auditSvc audit.Service) UserService {
	return &userService{users: users, auth: authSvc, audit: auditSvc}
}

// ListUsers returns every account ordered by name.
func (s *userService) ListUsers(ctx context.Context) ([]auth.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	return users, nil
}

// GetUser returns one account. Missing users are a 404.
func (s *userService) GetUser(ctx context.Context, id int64) (*auth.User, error) {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && appErr.Code == http.StatusNotFound {
			return nil, apperror.NewNotFound(msgUserNotFound)
		}
		return nil, apperror.NewInternal(err)
	}
	return u, nil
}

// CreateUser validates the profile and the initial password together so the
// form shows every problem at once.
func (s *userService) CreateUser(ctx context.Context, form UserForm) (*auth.User, error) {
	name, email, v := validateProfile(form)
	if form.Password == "" {
		v.Add("Password is required.")
	} else {
		for _, msg := range s.auth.PasswordViolations(form.Password) {
			v.Add(msg)
		}
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	return s.auth.CreateUser(ctx, auth.NewUserInput{
		FullName: name,
		Email:    email,
		Role:     form.Role,
		IsActive: form.IsActive,
		Password: form.Password,
	})
}

// UpdateUser saves profile changes. Demoting or deactivating the only
// active admin is refused.
func (s *userService) UpdateUser(ctx context.Context, id int64, form UserForm) (*auth.User, error) {
	name, email, v := validateProfile(form)
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	u := &auth.User{ID: id, FullName: name, Email: email, Role: form.Role, IsActive: form.IsActive}
	if err := s.users.Update(ctx, u); err != nil {
		return nil, mapUserError(err, msgDeactivateLastAdmin)
	}

	slog.Info("user updated",
		slog.Int64("user_id", id),
		slog.String("role", u.Role),
		slog.Bool("is_active", u.IsActive),
	)
	return u, nil
}

// DeleteUser removes an account. Admins cannot delete themselves, and the
// only active admin cannot be deleted.
func (s *userService) DeleteUser(ctx context.Context, actor *auth.User, id int64) error {
	if actor.ID == id {
		return apperror.NewValidationErrors(msgDeleteSelf)
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return mapUserError(err, msgDeleteLastAdmin)
	}

	slog.Info("user deleted",
		slog.Int64("user_id", id),
		slog.Int64("deleted_by", actor.ID),
	)
	return nil
}

// UnlockUser clears a lockout before it lapses.
func (s *userService) UnlockUser(ctx context.Context, id int64) error {
	if _, err := s.GetUser(ctx, id); err != nil {
		return err
	}
	return s.auth.UnlockUser(ctx, id)
}

// ResetPassword sets another user's password. The credential update, the
// history entry and the audit row commit together or not at all. The
// acting admin's own session is left alone.
func (s *userService) ResetPassword(ctx context.Context, input ResetInput) (*auth.User, error) {
	target, err := s.GetUser(ctx, input.TargetID)
	if err != nil {
		return nil, err
	}
	if target.ID == input.Actor.ID {
		return nil, apperror.NewValidationErrors(msgResetSelf)
	}

	if err := s.auth.CheckNewPassword(ctx, target.ID, input.NewPassword, input.ConfirmPassword); err != nil {
		return nil, err
	}

	record := func(ctx context.Context, tx *sql.Tx) error {
		return s.audit.Record(ctx, tx, &audit.PasswordChangeRequest{
			UserID:      target.ID,
			ChangedBy:   input.Actor.ID,
			RequestType: audit.TypeAdminReset,
			Status:      audit.StatusCompleted,
			IPAddress:   input.IPAddress,
			Notes:       audit.NoteAdminReset,
		})
	}
	if err := s.auth.SetPassword(ctx, target.ID, input.NewPassword, record); err != nil {
		return nil, err
	}

	slog.Info("password reset by admin",
		slog.Int64("user_id", target.ID),
		slog.Int64("changed_by", input.Actor.ID),
	)
	return target, nil
}

// validateProfile checks and normalizes the shared user form fields.
func validateProfile(form UserForm) (name, email string, v *apperror.ValidationError) {
	v = apperror.NewValidationErrors()

	name = sanitize.Truncate(sanitize.Text(form.FullName), maxFullNameLength)
	if name == "" {
		v.Add("Full name is required.")
	}

	email = auth.NormalizeEmail(form.Email)
	if email == "" {
		v.Add("Email is required.")
	} else if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		v.Add("Please enter a valid email address.")
	}

	if !auth.ValidRole(form.Role) {
		v.Add("Please select a valid role.")
	}
	return name, email, v
}

// mapUserError turns repository failures into form-level messages.
func mapUserError(err error, lastAdminMsg string) error {
	if errors.Is(err, auth.ErrLastAdmin) {
		return apperror.NewValidationErrors(lastAdminMsg)
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		if appErr.Code == http.StatusConflict {
			return apperror.NewValidationErrors(appErr.Message)
		}
		return appErr
	}
	return apperror.NewInternal(fmt.Errorf("saving user: %w", err))
}
