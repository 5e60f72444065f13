package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/glassyams/ams/internal/apperror"
	"github.com/glassyams/ams/internal/session"
)

// Redirect targets and flash texts used by the gates.
const (
	loginPath         = "/login"
	dashboardPath     = "/dashboard"
	changePasswordURL = "/account/password"

	msgSignIn           = "Please sign in to continue."
	msgRoleDenied       = "You do not have permission to access that page."
	msgPermissionDenied = "You do not have permission to perform that action."
	msgPasswordExpired  = "Your password has expired. Please choose a new one."
)

// RequireLogin returns middleware that lets only signed-in users through.
// Anonymous browsers are sent to /login with a warning; /api paths get a
// JSON 401 instead.
func RequireLogin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, err := CurrentUser(c)
			if err != nil {
				return apperror.NewInternal(err)
			}
			if user == nil {
				return handleUnauthenticated(c)
			}
			return next(c)
		}
	}
}

// RequireRole returns middleware that admits users holding one of roles.
// Other signed-in users are redirected to the dashboard with a
// permission-denied flash.
func RequireRole(authz *Authorizer, roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, err := CurrentUser(c)
			if err != nil {
				return apperror.NewInternal(err)
			}
			if user == nil {
				return handleUnauthenticated(c)
			}
			if !authz.HasRole(user, roles...) {
				return deny(c, msgRoleDenied)
			}
			return next(c)
		}
	}
}

// RequirePermission returns middleware that admits users holding perm.
func RequirePermission(authz *Authorizer, perm string) echo.MiddlewareFunc {
	return RequireAnyPermission(authz, perm)
}

// RequireAnyPermission returns middleware that admits users holding at least
// one of perms. Handlers behind it decide which fields the specific
// permission unlocks.
func RequireAnyPermission(authz *Authorizer, perms ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, err := CurrentUser(c)
			if err != nil {
				return apperror.NewInternal(err)
			}
			if user == nil {
				return handleUnauthenticated(c)
			}
			ok, err := authz.HasAnyPermission(c.Request().Context(), user, perms...)
			if err != nil {
				return apperror.NewInternal(err)
			}
			if !ok {
				return deny(c, msgPermissionDenied)
			}
			return next(c)
		}
	}
}

// RequirePasswordFresh returns middleware that sends users with an expired
// password to the change form. The form itself and logout stay reachable.
func RequirePasswordFresh(svc AuthService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			if path == changePasswordURL || path == "/logout" {
				return next(c)
			}
			user, err := CurrentUser(c)
			if err != nil {
				return apperror.NewInternal(err)
			}
			if user != nil && svc.PasswordExpired(user) {
				session.AddFlash(c, session.FlashWarning, msgPasswordExpired)
				return c.Redirect(http.StatusSeeOther, changePasswordURL)
			}
			return next(c)
		}
	}
}

// handleUnauthenticated returns the appropriate response for unauthenticated
// requests: redirect for browsers, 401 JSON for API clients.
func handleUnauthenticated(c echo.Context) error {
	if isAPIRequest(c) {
		return apperror.NewUnauthorized("authentication required")
	}
	session.AddFlash(c, session.FlashWarning, msgSignIn)
	return c.Redirect(http.StatusSeeOther, loginPath)
}

// deny flashes msg and redirects to the dashboard. Authorization failures
// never render an error page for browsers.
func deny(c echo.Context, msg string) error {
	if isAPIRequest(c) {
		return apperror.NewForbidden(msg)
	}
	session.AddFlash(c, session.FlashDanger, msg)
	return c.Redirect(http.StatusSeeOther, dashboardPath)
}

// isAPIRequest returns true if the request targets the /api/ path.
func isAPIRequest(c echo.Context) bool {
	path := c.Request().URL.Path
	return len(path) >= 4 && path[:4] == "/api"
}
