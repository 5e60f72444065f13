package admin

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/glassyams/ams/internal/apperror"
	"github.com/glassyams/ams/internal/middleware"
	"github.com/glassyams/ams/internal/plugins/auth"
	"github.com/glassyams/ams/internal/session"
)

// usersPath is where every user action lands afterwards.
const usersPath = "/admin/users"

// Handler handles user administration HTTP requests. Depends on the user
// service only -- no direct repo access.
type Handler struct {
	service UserService
	now     func() time.Time
}

// NewHandler creates a new admin handler.
func NewHandler(service UserService) *Handler {
	return &Handler{service: service, now: time.Now}
}

// --- Users ---

// Users renders the user list with the create form (GET /admin/users).
func (h *Handler) Users(c echo.Context) error {
	return h.renderUsers(c, http.StatusOK, UserForm{Role: auth.RoleViewer, IsActive: true}, nil)
}

// CreateUser processes the create form (POST /admin/users).
func (h *Handler) CreateUser(c echo.Context) error {
	var form UserForm
	if err := c.Bind(&form); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	user, err := h.service.CreateUser(c.Request().Context(), form)
	if err != nil {
		if msgs := apperror.ValidationMessages(err); msgs != nil {
			form.Password = ""
			return h.renderUsers(c, http.StatusOK, form, msgs)
		}
		return err
	}

	session.AddFlash(c, session.FlashSuccess, fmt.Sprintf("User %s created successfully.", user.FullName))
	return c.Redirect(http.StatusSeeOther, usersPath)
}

// EditUser renders the edit form (GET /admin/users/:id/edit).
func (h *Handler) EditUser(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	user, err := h.service.GetUser(c.Request().Context(), id)
	if err != nil {
		return h.missingUser(c, err)
	}

	form := UserForm{FullName: user.FullName, Email: user.Email, Role: user.Role, IsActive: user.IsActive}
	return middleware.Render(c, http.StatusOK, EditUserPage(id, form, nil))
}

// UpdateUser processes the edit form (POST /admin/users/:id).
func (h *Handler) UpdateUser(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	var form UserForm
	if err := c.Bind(&form); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	if _, err := h.service.UpdateUser(c.Request().Context(), id, form); err != nil {
		if msgs := apperror.ValidationMessages(err); msgs != nil {
			return middleware.Render(c, http.StatusOK, EditUserPage(id, form, msgs))
		}
		return h.missingUser(c, err)
	}

	session.AddFlash(c, session.FlashSuccess, "User updated successfully.")
	return c.Redirect(http.StatusSeeOther, usersPath)
}

// DeleteUser removes an account (POST /admin/users/:id/delete).
func (h *Handler) DeleteUser(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	if err := h.service.DeleteUser(c.Request().Context(), auth.GetUser(c), id); err != nil {
		return h.flashFailure(c, err)
	}

	session.AddFlash(c, session.FlashSuccess, "User deleted successfully.")
	return c.Redirect(http.StatusSeeOther, usersPath)
}

// UnlockUser clears a lockout (POST /admin/users/:id/unlock).
func (h *Handler) UnlockUser(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	if err := h.service.UnlockUser(c.Request().Context(), id); err != nil {
		return h.flashFailure(c, err)
	}

	session.AddFlash(c, session.FlashSuccess, "User unlocked successfully.")
	return c.Redirect(http.StatusSeeOther, usersPath)
}

// --- Password Reset ---

// ResetPasswordForm renders the admin reset form (GET /admin/users/:id/password).
func (h *Handler) ResetPasswordForm(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	user, err := h.service.GetUser(c.Request().Context(), id)
	if err != nil {
		return h.missingUser(c, err)
	}
	if actor := auth.GetUser(c); actor != nil && actor.ID == user.ID {
		session.AddFlash(c, session.FlashWarning, msgResetSelf)
		return c.Redirect(http.StatusSeeOther, usersPath)
	}
	return middleware.Render(c, http.StatusOK, ResetPasswordPage(user, nil))
}

// ResetPassword processes the admin reset form (POST /admin/users/:id/password).
func (h *Handler) ResetPassword(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	var form ResetPasswordForm
	if err := c.Bind(&form); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	target, err := h.service.ResetPassword(c.Request().Context(), ResetInput{
		Actor:           auth.GetUser(c),
		TargetID:        id,
		NewPassword:     form.NewPassword,
		ConfirmPassword: form.ConfirmPassword,
		IPAddress:       c.RealIP(),
	})
	if err != nil {
		if msgs := apperror.ValidationMessages(err); msgs != nil {
			if len(msgs) == 1 && msgs[0] == msgResetSelf {
				session.AddFlash(c, session.FlashWarning, msgResetSelf)
				return c.Redirect(http.StatusSeeOther, usersPath)
			}
			user, gerr := h.service.GetUser(c.Request().Context(), id)
			if gerr != nil {
				return h.missingUser(c, gerr)
			}
			return middleware.Render(c, http.StatusOK, ResetPasswordPage(user, msgs))
		}
		return h.missingUser(c, err)
	}

	session.AddFlash(c, session.FlashSuccess, fmt.Sprintf("Password for %s has been reset successfully.", target.FullName))
	return c.Redirect(http.StatusSeeOther, usersPath)
}

// --- Helpers ---

// renderUsers renders the list page with the create form state.
func (h *Handler) renderUsers(c echo.Context, status int, form UserForm, errs []string) error {
	users, err := h.service.ListUsers(c.Request().Context())
	if err != nil {
		return err
	}
	return middleware.Render(c, status, UsersPage(users, h.now(), form, errs))
}

// missingUser sends a 404 from the service back to the list with a flash.
// Other errors propagate.
func (h *Handler) missingUser(c echo.Context, err error) error {
	if apperror.SafeCode(err) == http.StatusNotFound {
		session.AddFlash(c, session.FlashDanger, msgUserNotFound)
		return c.Redirect(http.StatusSeeOther, usersPath)
	}
	return err
}

// flashFailure reports a refused action on the list page.
func (h *Handler) flashFailure(c echo.Context, err error) error {
	if msgs := apperror.ValidationMessages(err); msgs != nil {
		for _, msg := range msgs {
			session.AddFlash(c, session.FlashDanger, msg)
		}
		return c.Redirect(http.StatusSeeOther, usersPath)
	}
	return h.missingUser(c, err)
}

// parseID reads the :id path parameter.
func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.NewBadRequest("invalid user id")
	}
	return id, nil
}
