package admin

import (
	"github.com/labstack/echo/v4"

	"github.com/glassyams/ams/internal/plugins/auth"
)

// RegisterRoutes sets up the user administration routes. The user screens
// require the manage_users permission, which only the admin role holds in
// the default seed; password resets additionally require
// reset_user_password.
func RegisterRoutes(e *echo.Echo, h *Handler, authz *auth.Authorizer, gates ...echo.MiddlewareFunc) *echo.Group {
	mws := append([]echo.MiddlewareFunc{auth.RequireLogin()}, gates...)
	mws = append(mws, auth.RequirePermission(authz, auth.PermManageUsers))
	users := e.Group("/admin/users", mws...)

	users.GET("", h.Users)
	users.POST("", h.CreateUser)
	users.GET("/:id/edit", h.EditUser)
	users.POST("/:id", h.UpdateUser)
	users.POST("/:id/delete", h.DeleteUser)
	users.POST("/:id/unlock", h.UnlockUser)

	reset := auth.RequirePermission(authz, auth.PermResetUserPassword)
	users.GET("/:id/password", h.ResetPasswordForm, reset)
	users.POST("/:id/password", h.ResetPassword, reset)

	return users
}
