package assets

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/glassyams/ams/internal/apperror"
	"github.com/glassyams/ams/internal/middleware"
	"github.com/glassyams/ams/internal/plugins/auth"
	"github.com/glassyams/ams/internal/session"
)

// assetsPath is the list every create, edit and delete returns to.
const assetsPath = "/assets"

// Handler handles asset HTTP requests.
type Handler struct {
	service AssetService
	now     func() time.Time
}

// NewHandler creates a new asset handler.
func NewHandler(service AssetService) *Handler {
	return &Handler{service: service, now: time.Now}
}

// List renders the filtered inventory (GET /assets).
func (h *Handler) List(c echo.Context) error {
	var filter ListFilter
	if err := c.Bind(&filter); err != nil {
		return apperror.NewBadRequest("invalid filter")
	}

	ctx := c.Request().Context()
	list, err := h.service.ListAssets(ctx, filter)
	if err != nil {
		return err
	}
	cats, locs, err := h.service.Options(ctx)
	if err != nil {
		return err
	}
	return middleware.Render(c, http.StatusOK, AssetsPage(list, filter, cats, locs))
}

// NewForm renders the create form with its defaults (GET /assets/new).
func (h *Handler) NewForm(c echo.Context) error {
	return h.renderNew(c, NewForm(h.now()), nil)
}

// Create processes the create form (POST /assets).
func (h *Handler) Create(c echo.Context) error {
	var form EditForm
	if err := c.Bind(&form); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	user := auth.GetUser(c)
	if user == nil {
		return apperror.NewMissingContext()
	}

	if _, err := h.service.CreateAsset(c.Request().Context(), user, form); err != nil {
		if msgs := apperror.ValidationMessages(err); msgs != nil {
			return h.renderNew(c, form, msgs)
		}
		return err
	}

	session.AddFlash(c, session.FlashSuccess, "Asset created successfully.")
	return c.Redirect(http.StatusSeeOther, assetsPath)
}

// Show renders one asset with its audit stamps (GET /assets/:id).
func (h *Handler) Show(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return h.back(c, "Invalid asset ID.")
	}
	a, err := h.service.GetAsset(c.Request().Context(), id)
	if err != nil {
		return h.missing(c, err)
	}
	return middleware.Render(c, http.StatusOK, AssetPage(a))
}

// Delete removes an asset (POST /assets/:id/delete).
func (h *Handler) Delete(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return h.back(c, "Invalid asset ID.")
	}
	user := auth.GetUser(c)
	if user == nil {
		return apperror.NewMissingContext()
	}

	if err := h.service.DeleteAsset(c.Request().Context(), user, id); err != nil {
		switch apperror.SafeCode(err) {
		case http.StatusNotFound:
			return h.back(c, "Asset not found.")
		case http.StatusConflict:
			return h.back(c, "Unable to delete asset. It may have associated records.")
		}
		return err
	}

	session.AddFlash(c, session.FlashSuccess, "Asset deleted successfully.")
	return c.Redirect(http.StatusSeeOther, assetsPath)
}

// EditForm renders the edit screen (GET /assets/:id/edit). Fields the user
// may not write are shown read-only.
func (h *Handler) EditForm(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return h.back(c, "Invalid asset ID.")
	}

	ctx := c.Request().Context()
	a, err := h.service.GetAsset(ctx, id)
	if err != nil {
		return h.missing(c, err)
	}
	scope, err := h.service.EditScope(ctx, auth.GetUser(c))
	if err != nil {
		return err
	}
	return h.renderEdit(c, a, FormFromAsset(a), scope, nil)
}

// Update processes the edit form (POST /assets/:id/edit).
func (h *Handler) Update(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return h.back(c, "Invalid asset ID.")
	}

	var form EditForm
	if err := c.Bind(&form); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	ctx := c.Request().Context()
	user := auth.GetUser(c)
	if user == nil {
		return apperror.NewMissingContext()
	}
	scope, err := h.service.EditScope(ctx, user)
	if err != nil {
		return err
	}

	if _, err := h.service.UpdateAsset(ctx, user, id, form, scope); err != nil {
		if msgs := apperror.ValidationMessages(err); msgs != nil {
			a, gerr := h.service.GetAsset(ctx, id)
			if gerr != nil {
				return h.missing(c, gerr)
			}
			return h.renderEdit(c, a, form, scope, msgs)
		}
		return h.missing(c, err)
	}

	session.AddFlash(c, session.FlashSuccess, "Asset updated successfully.")
	return c.Redirect(http.StatusSeeOther, assetsPath)
}

// renderEdit loads the select options and renders the edit screen.
func (h *Handler) renderEdit(c echo.Context, a *Asset, form EditForm, scope EditScope, errs []string) error {
	cats, locs, err := h.service.Options(c.Request().Context())
	if err != nil {
		return err
	}
	return middleware.Render(c, http.StatusOK, EditAssetPage(a, form, scope, cats, locs, errs))
}

// renderNew loads the select options and renders the create form.
func (h *Handler) renderNew(c echo.Context, form EditForm, errs []string) error {
	cats, locs, err := h.service.Options(c.Request().Context())
	if err != nil {
		return err
	}
	return middleware.Render(c, http.StatusOK, NewAssetPage(form, cats, locs, errs))
}

// missing turns a 404 into a flash on the list page. Other errors propagate.
func (h *Handler) missing(c echo.Context, err error) error {
	if apperror.SafeCode(err) == http.StatusNotFound {
		return h.back(c, "Asset not found.")
	}
	return err
}

// back flashes msg and returns to the list.
func (h *Handler) back(c echo.Context, msg string) error {
	session.AddFlash(c, session.FlashDanger, msg)
	return c.Redirect(http.StatusSeeOther, assetsPath)
}

// parseID reads the :id path parameter.
func parseID(c echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}
