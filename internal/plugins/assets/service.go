package assets

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/glassyams/ams/internal/apperror"
	"github.com/glassyams/ams/internal/plugins/auth"
	"github.com/glassyams/ams/internal/sanitize"
)

// PermissionChecker answers permission questions. *auth.Authorizer
// satisfies it.
type PermissionChecker interface {
	HasPermission(ctx context.Context, u *auth.User, perm string) (bool, error)
}

// AssetService handles the asset lifecycle.
type AssetService interface {
	ListAssets(ctx context.Context, filter ListFilter) ([]Asset, error)
	GetAsset(ctx context.Context, id int64) (*Asset, error)
	Options(ctx context.Context) (categories, locations []Option, err error)
	Counts(ctx context.Context) (total int, byStatus map[string]StatusTotal, err error)
	RecentAssets(ctx context.Context, limit int) ([]Asset, error)

	// CreateAsset validates form and inserts a new asset owned by actor.
	CreateAsset(ctx context.Context, actor *auth.User, form EditForm) (*Asset, error)
	DeleteAsset(ctx context.Context, actor *auth.User, id int64) error

	// EditScope resolves which fields u may write.
	EditScope(ctx context.Context, u *auth.User) (EditScope, error)

	// UpdateAsset applies form to asset id within scope. Fields outside
	// scope keep their stored values whatever was submitted.
	UpdateAsset(ctx context.Context, actor *auth.User, id int64, form EditForm, scope EditScope) (*Asset, error)
}

// assetService implements AssetService.
type assetService struct {
	repo  AssetRepository
	perms PermissionChecker
}

// NewAssetService creates a new asset service.
func NewAssetService(repo AssetRepository, perms PermissionChecker) AssetService {
	return &assetService{repo: repo, perms: perms}
}

// ListAssets returns the filtered inventory. An unknown status filter is
// dropped rather than matching nothing.
func (s *assetService) ListAssets(ctx context.Context, filter ListFilter) ([]Asset, error) {
	if filter.Status != "" && !ValidStatus(filter.Status) {
		filter.Status = ""
	}
	list, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	return list, nil
}

// GetAsset returns one asset or a 404.
func (s *assetService) GetAsset(ctx context.Context, id int64) (*Asset, error) {
	a, err := s.repo.FindByID(ctx, id)
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperror.NewInternal(err)
	}
	return a, nil
}

// Options returns the categories and locations offered by the edit form.
func (s *assetService) Options(ctx context.Context) ([]Option, []Option, error) {
	cats, err := s.repo.Categories(ctx)
	if err != nil {
		return nil, nil, apperror.NewInternal(err)
	}
	locs, err := s.repo.Locations(ctx)
	if err != nil {
		return nil, nil, apperror.NewInternal(err)
	}
	return cats, locs, nil
}

// Counts returns the record count and the records and quantity per status.
func (s *assetService) Counts(ctx context.Context) (int, map[string]StatusTotal, error) {
	total, err := s.repo.Count(ctx)
	if err != nil {
		return 0, nil, apperror.NewInternal(err)
	}
	byStatus, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return 0, nil, apperror.NewInternal(err)
	}
	return total, byStatus, nil
}

// RecentAssets returns the most recently changed assets.
func (s *assetService) RecentAssets(ctx context.Context, limit int) ([]Asset, error) {
	list, err := s.repo.Recent(ctx, limit)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	return list, nil
}

// EditScope checks each edit permission for u.
func (s *assetService) EditScope(ctx context.Context, u *auth.User) (EditScope, error) {
	var scope EditScope
	for _, p := range []struct {
		perm string
		dst  *bool
	}{
		{auth.PermEditAssets, &scope.All},
		{auth.PermEditAssetLocation, &scope.Location},
		{auth.PermEditAssetStatus, &scope.Status},
	} {
		ok, err := s.perms.HasPermission(ctx, u, p.perm)
		if err != nil {
			return EditScope{}, apperror.NewInternal(err)
		}
		*p.dst = ok
	}
	return scope, nil
}

// UpdateAsset merges the writable fields of form onto the stored asset,
// validates only those, and saves.
func (s *assetService) UpdateAsset(ctx context.Context, actor *auth.User, id int64, form EditForm, scope EditScope) (*Asset, error) {
	if !scope.CanEdit() {
		return nil, apperror.NewForbidden("You do not have permission to edit assets.")
	}

	a, err := s.GetAsset(ctx, id)
	if err != nil {
		return nil, err
	}
	cats, locs, err := s.Options(ctx)
	if err != nil {
		return nil, err
	}

	if err := applyForm(a, form, scope, cats, locs); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, a, scope, actor.ID); err != nil {
		return nil, storeError(err)
	}

	slog.Info("asset updated",
		slog.Int64("asset_id", a.ID),
		slog.Int64("updated_by", actor.ID),
		slog.Bool("full_edit", scope.All),
	)
	return a, nil
}

// CreateAsset validates every field of form and inserts the asset.
func (s *assetService) CreateAsset(ctx context.Context, actor *auth.User, form EditForm) (*Asset, error) {
	cats, locs, err := s.Options(ctx)
	if err != nil {
		return nil, err
	}

	a := &Asset{}
	if err := applyForm(a, form, fullScope, cats, locs); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, a, actor.ID); err != nil {
		return nil, storeError(err)
	}

	slog.Info("asset created",
		slog.Int64("asset_id", a.ID),
		slog.String("serial_number", a.SerialNumber),
		slog.Int64("created_by", actor.ID),
	)
	return a, nil
}

// DeleteAsset removes asset id.
func (s *assetService) DeleteAsset(ctx context.Context, actor *auth.User, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return appErr
		}
		return apperror.NewInternal(err)
	}
	slog.Info("asset deleted", slog.Int64("asset_id", id), slog.Int64("deleted_by", actor.ID))
	return nil
}

// applyForm copies the fields scope allows from form onto a and validates
// only those. Messages come out in form order.
func applyForm(a *Asset, form EditForm, scope EditScope, cats, locs []Option) error {
	v := apperror.NewValidationErrors()

	if scope.All {
		a.Name = sanitize.Truncate(sanitize.Text(form.Name), maxNameLength)
		a.SerialNumber = sanitize.Truncate(strings.TrimSpace(form.SerialNumber), maxSerialLength)
		a.CategoryID = form.CategoryID
		a.Quantity = form.Quantity

		if a.Name == "" {
			v.Add("Asset name is required.")
		}
		if a.SerialNumber == "" {
			v.Add("Serial number is required.")
		}
		if !hasOption(cats, a.CategoryID) {
			v.Add("Please select a category.")
		}
		if a.Quantity < 1 {
			v.Add("Quantity must be at least 1.")
		}
	}

	if scope.CanEditLocation() {
		a.LocationID = form.LocationID
		if !hasOption(locs, a.LocationID) {
			v.Add("Please select a location.")
		}
	}
	if scope.CanEditStatus() {
		a.Status = strings.TrimSpace(form.Status)
		if !ValidStatus(a.Status) {
			v.Add("Invalid status selected.")
		}
	}

	if scope.All {
		date := strings.TrimSpace(form.PurchaseDate)
		if date == "" {
			v.Add("Purchase date is required.")
		} else if d, err := time.Parse(dateLayout, date); err != nil {
			v.Add("Please enter a valid purchase date.")
		} else {
			a.PurchaseDate = d
		}
	}

	return v.OrNil()
}

// storeError shows a duplicate serial as a form message and keeps other
// client errors as they are.
func storeError(err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		if appErr.Code == http.StatusConflict {
			return apperror.NewValidationErrors(appErr.Message)
		}
		return appErr
	}
	return apperror.NewInternal(err)
}

// hasOption reports whether id is among opts.
func hasOption(opts []Option, id int64) bool {
	for _, o := range opts {
		if o.ID == id {
			return true
		}
	}
	return false
}
