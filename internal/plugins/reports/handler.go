package reports

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/glassyams/ams/internal/apperror"
	"github.com/glassyams/ams/internal/middleware"
	"github.com/glassyams/ams/internal/session"
)

const reportsPath = "/reports"

// Handler handles report HTTP requests.
type Handler struct {
	service Service
}

// NewHandler creates a new report handler.
func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Index renders both reports (GET /reports). The location report appears
// once a location_id is chosen.
func (h *Handler) Index(c echo.Context) error {
	ctx := c.Request().Context()
	locs, err := h.service.Locations(ctx)
	if err != nil {
		return err
	}

	var report *LocationReport
	if raw := c.QueryParam("location_id"); raw != "" && raw != "0" {
		id, ok := parseLocation(raw)
		if !ok {
			return back(c, "Invalid location ID.")
		}
		if report, err = h.service.AssetsByLocation(ctx, id); err != nil {
			return missing(c, err)
		}
	}

	lowStock, err := h.service.LowStock(ctx)
	if err != nil {
		return err
	}
	return middleware.Render(c, http.StatusOK, ReportsPage(locs, report, lowStock))
}

// LocationCSV exports the assets-by-location report
// (GET /reports/assets-by-location.csv).
func (h *Handler) LocationCSV(c echo.Context) error {
	id, ok := parseLocation(c.QueryParam("location_id"))
	if !ok {
		return back(c, "Please select a location.")
	}
	report, err := h.service.AssetsByLocation(c.Request().Context(), id)
	if err != nil {
		return missing(c, err)
	}
	attach(c, locationCSVName)
	return WriteLocationCSV(c.Response(), report)
}

// LowStockCSV exports the low stock report (GET /reports/low-stock.csv).
func (h *Handler) LowStockCSV(c echo.Context) error {
	list, err := h.service.LowStock(c.Request().Context())
	if err != nil {
		return err
	}
	attach(c, lowStockCSVName)
	return WriteLowStockCSV(c.Response(), list)
}

// attach starts a CSV download named filename.
func attach(c echo.Context, filename string) {
	c.Response().Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	c.Response().WriteHeader(http.StatusOK)
}

func missing(c echo.Context, err error) error {
	if apperror.SafeCode(err) == http.StatusNotFound {
		return back(c, "Location not found.")
	}
	return err
}

// back flashes msg and returns to the reports page.
func back(c echo.Context, msg string) error {
	session.AddFlash(c, session.FlashDanger, msg)
	return c.Redirect(http.StatusSeeOther, reportsPath)
}

func parseLocation(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	return id, err == nil && id > 0
}
