package assets

import (
	"github.com/labstack/echo/v4"

	"github.com/glassyams/ams/internal/plugins/auth"
)

// RegisterRoutes sets up the asset routes. Each action has its own
// permission. The edit screen admits anyone holding edit_assets or one of
// the partial permissions; the handler decides which fields they may write.
func RegisterRoutes(e *echo.Echo, h *Handler, authz *auth.Authorizer, gates ...echo.MiddlewareFunc) *echo.Group {
	mws := append([]echo.MiddlewareFunc{auth.RequireLogin()}, gates...)
	g := e.Group("/assets", mws...)

	view := auth.RequirePermission(authz, auth.PermViewAssets)
	create := auth.RequirePermission(authz, auth.PermCreateAssets)

	g.GET("", h.List, view)
	g.GET("/new", h.NewForm, create)
	g.POST("", h.Create, create)
	g.GET("/:id", h.Show, view)
	g.POST("/:id/delete", h.Delete, auth.RequirePermission(authz, auth.PermDeleteAssets))

	edit := auth.RequireAnyPermission(authz,
		auth.PermEditAssets, auth.PermEditAssetLocation, auth.PermEditAssetStatus)
	g.GET("/:id/edit", h.EditForm, edit)
	g.POST("/:id/edit", h.Update, edit)

	return g
}
