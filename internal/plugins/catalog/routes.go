package catalog

import (
	"github.com/labstack/echo/v4"

	"github.com/glassyams/ams/internal/plugins/auth"
)

// RegisterRoutes sets up the category and location screens. Both are
// reserved for the admin role.
func RegisterRoutes(e *echo.Echo, h *Handler, authz *auth.Authorizer, gates ...echo.MiddlewareFunc) {
	mws := append([]echo.MiddlewareFunc{auth.RequireLogin()}, gates...)
	mws = append(mws, auth.RequireRole(authz, auth.RoleAdmin))

	cats := e.Group("/admin/categories", mws...)
	cats.GET("", h.Categories)
	cats.POST("", h.CreateCategory)
	cats.GET("/:id/edit", h.EditCategory)
	cats.POST("/:id", h.UpdateCategory)
	cats.POST("/:id/delete", h.DeleteCategory)

	locs := e.Group("/admin/locations", mws...)
	locs.GET("", h.Locations)
	locs.POST("", h.CreateLocation)
	locs.GET("/:id/edit", h.EditLocation)
	locs.POST("/:id", h.UpdateLocation)
	locs.POST("/:id/delete", h.DeleteLocation)
}
