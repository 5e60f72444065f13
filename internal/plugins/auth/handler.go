package auth

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/glassyams/ams/internal/apperror"
	"github.com/glassyams/ams/internal/middleware"
	"github.com/glassyams/ams/internal/session"
)

// Handler handles HTTP requests for sign-in, sign-out and the self-service
// password change. Handlers are thin: they bind the request, call the
// service, and render the response. No business logic lives here.
type Handler struct {
	service  AuthService
	sessions *session.Manager
	policy   PasswordPolicy
	appName  string
}

// NewHandler creates a new auth handler.
func NewHandler(service AuthService, sessions *session.Manager, policy PasswordPolicy, appName string) *Handler {
	return &Handler{service: service, sessions: sessions, policy: policy, appName: appName}
}

// LoginForm renders the login page (GET /login).
func (h *Handler) LoginForm(c echo.Context) error {
	// Already signed in: nothing to do here.
	if user, _ := CurrentUser(c); user != nil {
		return c.Redirect(http.StatusSeeOther, dashboardPath)
	}

	// Show success banner after a self-service change forced a sign-out.
	var notice string
	if c.QueryParam("changed") == "1" {
		notice = "Password changed successfully. Please log in again with your new password."
	}

	middleware.GetCSRFToken(c)
	return middleware.Render(c, http.StatusOK, LoginPage("", nil, notice))
}

// Login processes the login form submission (POST /login).
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	user, err := h.service.Login(c.Request().Context(), LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		IPAddress: c.RealIP(),
	})
	if err != nil {
		if msgs := apperror.ValidationMessages(err); msgs != nil {
			return middleware.Render(c, http.StatusOK, LoginPage(req.Email, msgs, ""))
		}
		var failure *AuthFailure
		if errors.As(err, &failure) {
			return middleware.Render(c, http.StatusOK, LoginPage(req.Email, []string{InvalidCredentialsMessage}, ""))
		}
		return err
	}

	// New identifier for the authenticated session; the old one is gone.
	if err := h.sessions.Establish(c, user.ID); err != nil {
		return apperror.NewInternal(fmt.Errorf("establishing session: %w", err))
	}
	SetUser(c, user)

	session.AddFlash(c, session.FlashSuccess, fmt.Sprintf("Welcome back to %s!", h.appName))
	return c.Redirect(http.StatusSeeOther, dashboardPath)
}

// Logout destroys the session (POST /logout).
func (h *Handler) Logout(c echo.Context) error {
	if err := h.sessions.Destroy(c); err != nil {
		return apperror.NewInternal(fmt.Errorf("destroying session: %w", err))
	}
	forgetUser(c)

	session.AddFlash(c, session.FlashSuccess, "You have been logged out.")
	return c.Redirect(http.StatusSeeOther, loginPath)
}

// ChangePasswordForm renders the self-service form (GET /account/password).
func (h *Handler) ChangePasswordForm(c echo.Context) error {
	return middleware.Render(c, http.StatusOK, ChangePasswordPage(h.policy, nil))
}

// ChangePassword processes the self-service form (POST /account/password).
// Success ends the session so the user signs in again with the new password.
func (h *Handler) ChangePassword(c echo.Context) error {
	user := GetUser(c)
	if user == nil {
		return apperror.NewMissingContext()
	}

	var req ChangePasswordRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	err := h.service.ChangeOwnPassword(c.Request().Context(), user, ChangePasswordInput{
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
		ConfirmPassword: req.ConfirmPassword,
		IPAddress:       c.RealIP(),
	})
	if err != nil {
		if msgs := apperror.ValidationMessages(err); msgs != nil {
			return middleware.Render(c, http.StatusOK, ChangePasswordPage(h.policy, msgs))
		}
		return err
	}

	if err := h.sessions.Destroy(c); err != nil {
		return apperror.NewInternal(fmt.Errorf("destroying session: %w", err))
	}
	forgetUser(c)
	return c.Redirect(http.StatusSeeOther, loginPath+"?changed=1")
}
