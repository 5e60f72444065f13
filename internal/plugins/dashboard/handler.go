// Package dashboard renders the landing page shown after sign-in.
package dashboard

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/glassyams/ams/internal/apperror"
	"github.com/glassyams/ams/internal/middleware"
	"github.com/glassyams/ams/internal/plugins/assets"
	"github.com/glassyams/ams/internal/plugins/auth"
	"github.com/glassyams/ams/internal/plugins/reports"
)

// recentLimit is how many recently changed assets the dashboard lists.
const recentLimit = 8

// AssetSource provides the inventory figures. assets.AssetService
// satisfies it.
type AssetSource interface {
	Counts(ctx context.Context) (total int, byStatus map[string]assets.StatusTotal, err error)
	RecentAssets(ctx context.Context, limit int) ([]assets.Asset, error)
}

// LowStockSource lists the categories under their threshold.
// reports.Service satisfies it.
type LowStockSource interface {
	LowStock(ctx context.Context) ([]reports.LowStockCategory, error)
}

// StatusRow is one line of the per-status table.
type StatusRow struct {
	Status string
	assets.StatusTotal
}

// Overview is everything the dashboard shows.
type Overview struct {
	User     *auth.User
	Assets   int
	Totals   Totals
	LowStock int
	Statuses []StatusRow
	Recent   []assets.Asset
}

// Handler serves the dashboard.
type Handler struct {
	assets   AssetSource
	totals   Repository
	lowStock LowStockSource
	statuses []string
}

// NewHandler creates a dashboard handler. statuses fixes the display order
// of the per-status totals.
func NewHandler(assetSrc AssetSource, totals Repository, lowStock LowStockSource, statuses []string) *Handler {
	return &Handler{assets: assetSrc, totals: totals, lowStock: lowStock, statuses: statuses}
}

// Show renders the dashboard (GET /dashboard).
func (h *Handler) Show(c echo.Context) error {
	ctx := c.Request().Context()
	o := Overview{User: auth.GetUser(c)}

	total, byStatus, err := h.assets.Counts(ctx)
	if err != nil {
		return err
	}
	o.Assets = total
	for _, s := range h.statuses {
		o.Statuses = append(o.Statuses, StatusRow{Status: s, StatusTotal: byStatus[s]})
	}

	if o.Totals, err = h.totals.Totals(ctx); err != nil {
		return apperror.NewInternal(err)
	}
	low, err := h.lowStock.LowStock(ctx)
	if err != nil {
		return err
	}
	o.LowStock = len(low)

	if o.Recent, err = h.assets.RecentAssets(ctx, recentLimit); err != nil {
		return err
	}
	return middleware.Render(c, http.StatusOK, Page(o))
}

// RegisterRoutes adds the dashboard behind the login gate and any extra
// gates such as the password freshness check.
func RegisterRoutes(e *echo.Echo, h *Handler, gates ...echo.MiddlewareFunc) {
	mws := append([]echo.MiddlewareFunc{auth.RequireLogin()}, gates...)
	e.GET("/dashboard", h.Show, mws...)
	e.GET("/", func(c echo.Context) error {
		return c.Redirect(http.StatusSeeOther, "/dashboard")
	})
}
