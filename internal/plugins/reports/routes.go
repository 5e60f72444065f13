package reports

import (
	"github.com/labstack/echo/v4"

	"github.com/glassyams/ams/internal/plugins/auth"
)

// RegisterRoutes sets up the report pages and exports behind view_reports.
func RegisterRoutes(e *echo.Echo, h *Handler, authz *auth.Authorizer, gates ...echo.MiddlewareFunc) *echo.Group {
	mws := append([]echo.MiddlewareFunc{auth.RequireLogin()}, gates...)
	mws = append(mws, auth.RequirePermission(authz, auth.PermViewReports))
	g := e.Group("/reports", mws...)

	g.GET("", h.Index)
	g.GET("/assets-by-location.csv", h.LocationCSV)
	g.GET("/low-stock.csv", h.LowStockCSV)

	return g
}
