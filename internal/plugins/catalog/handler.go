package catalog

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/glassyams/ams/internal/apperror"
	"github.com/glassyams/ams/internal/middleware"
	"github.com/glassyams/ams/internal/plugins/auth"
	"github.com/glassyams/ams/internal/session"
)

const (
	categoriesPath = "/admin/categories"
	locationsPath  = "/admin/locations"
)

// Handler handles category and location HTTP requests.
type Handler struct {
	service Service
}

// NewHandler creates a new catalog handler.
func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// --- Categories ---

// Categories lists categories next to the add form (GET /admin/categories).
func (h *Handler) Categories(c echo.Context) error {
	return h.renderCategories(c, CategoryForm{LowStockThreshold: DefaultLowStockThreshold}, nil)
}

// CreateCategory processes the add form (POST /admin/categories).
func (h *Handler) CreateCategory(c echo.Context) error {
	var form CategoryForm
	if err := c.Bind(&form); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	user := auth.GetUser(c)
	if user == nil {
		return apperror.NewMissingContext()
	}

	if _, err := h.service.CreateCategory(c.Request().Context(), user, form); err != nil {
		if msgs := apperror.ValidationMessages(err); msgs != nil {
			return h.renderCategories(c, form, msgs)
		}
		return err
	}
	session.AddFlash(c, session.FlashSuccess, "Category created successfully.")
	return c.Redirect(http.StatusSeeOther, categoriesPath)
}

// EditCategory renders the edit form (GET /admin/categories/:id/edit).
func (h *Handler) EditCategory(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return back(c, categoriesPath, "Invalid category ID.")
	}
	cat, err := h.service.Category(c.Request().Context(), id)
	if err != nil {
		return missing(c, err, categoriesPath, "Category not found.")
	}
	form := CategoryForm{Name: cat.Name, LowStockThreshold: cat.LowStockThreshold}
	return middleware.Render(c, http.StatusOK, EditCategoryPage(id, form, nil))
}

// UpdateCategory processes the edit form (POST /admin/categories/:id).
func (h *Handler) UpdateCategory(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return back(c, categoriesPath, "Invalid category ID.")
	}
	var form CategoryForm
	if err := c.Bind(&form); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	user := auth.GetUser(c)
	if user == nil {
		return apperror.NewMissingContext()
	}

	if _, err := h.service.UpdateCategory(c.Request().Context(), user, id, form); err != nil {
		if msgs := apperror.ValidationMessages(err); msgs != nil {
			return middleware.Render(c, http.StatusOK, EditCategoryPage(id, form, msgs))
		}
		return missing(c, err, categoriesPath, "Category not found.")
	}
	session.AddFlash(c, session.FlashSuccess, "Category updated successfully.")
	return c.Redirect(http.StatusSeeOther, categoriesPath)
}

// DeleteCategory removes an empty category (POST /admin/categories/:id/delete).
func (h *Handler) DeleteCategory(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return back(c, categoriesPath, "Invalid category ID.")
	}
	user := auth.GetUser(c)
	if user == nil {
		return apperror.NewMissingContext()
	}

	if err := h.service.DeleteCategory(c.Request().Context(), user, id); err != nil {
		return missing(c, err, categoriesPath, "Category not found.")
	}
	session.AddFlash(c, session.FlashSuccess, "Category deleted successfully.")
	return c.Redirect(http.StatusSeeOther, categoriesPath)
}

func (h *Handler) renderCategories(c echo.Context, form CategoryForm, errs []string) error {
	list, err := h.service.Categories(c.Request().Context())
	if err != nil {
		return err
	}
	return middleware.Render(c, http.StatusOK, CategoriesPage(list, form, errs))
}

// --- Locations ---

// Locations lists locations next to the add form (GET /admin/locations).
func (h *Handler) Locations(c echo.Context) error {
	return h.renderLocations(c, LocationForm{}, nil)
}

// CreateLocation processes the add form (POST /admin/locations).
func (h *Handler) CreateLocation(c echo.Context) error {
	var form LocationForm
	if err := c.Bind(&form); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	user := auth.GetUser(c)
	if user == nil {
		return apperror.NewMissingContext()
	}

	if _, err := h.service.CreateLocation(c.Request().Context(), user, form); err != nil {
		if msgs := apperror.ValidationMessages(err); msgs != nil {
			return h.renderLocations(c, form, msgs)
		}
		return err
	}
	session.AddFlash(c, session.FlashSuccess, "Location created successfully.")
	return c.Redirect(http.StatusSeeOther, locationsPath)
}

// EditLocation renders the rename form (GET /admin/locations/:id/edit).
func (h *Handler) EditLocation(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return back(c, locationsPath, "Invalid location ID.")
	}
	loc, err := h.service.Location(c.Request().Context(), id)
	if err != nil {
		return missing(c, err, locationsPath, "Location not found.")
	}
	return middleware.Render(c, http.StatusOK, EditLocationPage(id, LocationForm{Name: loc.Name}, nil))
}

// UpdateLocation processes the rename form (POST /admin/locations/:id).
func (h *Handler) UpdateLocation(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return back(c, locationsPath, "Invalid location ID.")
	}
	var form LocationForm
	if err := c.Bind(&form); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	user := auth.GetUser(c)
	if user == nil {
		return apperror.NewMissingContext()
	}

	if _, err := h.service.UpdateLocation(c.Request().Context(), user, id, form); err != nil {
		if msgs := apperror.ValidationMessages(err); msgs != nil {
			return middleware.Render(c, http.StatusOK, EditLocationPage(id, form, msgs))
		}
		return missing(c, err, locationsPath, "Location not found.")
	}
	session.AddFlash(c, session.FlashSuccess, "Location updated successfully.")
	return c.Redirect(http.StatusSeeOther, locationsPath)
}

// DeleteLocation removes an unused location (POST /admin/locations/:id/delete).
func (h *Handler) DeleteLocation(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return back(c, locationsPath, "Invalid location ID.")
	}
	user := auth.GetUser(c)
	if user == nil {
		return apperror.NewMissingContext()
	}

	if err := h.service.DeleteLocation(c.Request().Context(), user, id); err != nil {
		return missing(c, err, locationsPath, "Location not found.")
	}
	session.AddFlash(c, session.FlashSuccess, "Location deleted successfully.")
	return c.Redirect(http.StatusSeeOther, locationsPath)
}

func (h *Handler) renderLocations(c echo.Context, form LocationForm, errs []string) error {
	list, err := h.service.Locations(c.Request().Context())
	if err != nil {
		return err
	}
	return middleware.Render(c, http.StatusOK, LocationsPage(list, form, errs))
}

// missing flashes notFound for a 404 and the error's own message for a
// conflict, then returns to path. Other errors propagate.
func missing(c echo.Context, err error, path, notFound string) error {
	var appErr *apperror.AppError
	switch apperror.SafeCode(err) {
	case http.StatusNotFound:
		return back(c, path, notFound)
	case http.StatusConflict:
		if errors.As(err, &appErr) {
			return back(c, path, appErr.Message)
		}
	}
	return err
}

// back flashes msg and redirects to path.
func back(c echo.Context, path, msg string) error {
	session.AddFlash(c, session.FlashDanger, msg)
	return c.Redirect(http.StatusSeeOther, path)
}

// parseID reads the :id path parameter.
func parseID(c echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}
