package auth

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/glassyams/ams/internal/middleware"
)

// RegisterRoutes sets up the auth routes. Sign-in is public; the password
// change needs a session. The gate middleware is exported separately for
// other plugins to use on their route groups.
//
// Sign-in POSTs are rate-limited per IP in front of the per-account lockout
// so one address cannot lock out many accounts quickly.
func RegisterRoutes(e *echo.Echo, h *Handler, loginRateLimit int) {
	e.GET("/login", h.LoginForm)
	e.POST("/login", h.Login, middleware.RateLimit(loginRateLimit, time.Minute))
	e.POST("/logout", h.Logout)

	account := e.Group("/account", RequireLogin())
	account.GET("/password", h.ChangePasswordForm)
	account.POST("/password", h.ChangePassword)
}
