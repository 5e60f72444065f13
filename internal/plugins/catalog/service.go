package catalog

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/glassyams/ams/internal/apperror"
	"github.com/glassyams/ams/internal/plugins/auth"
	"github.com/glassyams/ams/internal/sanitize"
)

// Service manages categories and locations.
type Service interface {
	Categories(ctx context.Context) ([]Category, error)
	Category(ctx context.Context, id int64) (*Category, error)
	CreateCategory(ctx context.Context, actor *auth.User, form CategoryForm) (*Category, error)
	UpdateCategory(ctx context.Context, actor *auth.User, id int64, form CategoryForm) (*Category, error)
	DeleteCategory(ctx context.Context, actor *auth.User, id int64) error

	Locations(ctx context.Context) ([]Location, error)
	Location(ctx context.Context, id int64) (*Location, error)
	CreateLocation(ctx context.Context, actor *auth.User, form LocationForm) (*Location, error)
	UpdateLocation(ctx context.Context, actor *auth.User, id int64, form LocationForm) (*Location, error)
	DeleteLocation(ctx context.Context, actor *auth.User, id int64) error
}

// service implements Service.
type service struct {
	repo Repository
}

// NewService creates a new catalog service.
func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) Categories(ctx context.Context) ([]Category, error) {
	list, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	return list, nil
}

func (s *service) Category(ctx context.Context, id int64) (*Category, error) {
	c, err := s.repo.FindCategory(ctx, id)
	if err != nil {
		return nil, wrap(err)
	}
	return c, nil
}

// CreateCategory validates form and inserts the category.
func (s *service) CreateCategory(ctx context.Context, actor *auth.User, form CategoryForm) (*Category, error) {
	c := &Category{}
	if err := applyCategory(c, form); err != nil {
		return nil, err
	}
	if err := s.repo.CreateCategory(ctx, c); err != nil {
		return nil, storeError(err)
	}
	slog.Info("category created",
		slog.Int64("category_id", c.ID),
		slog.String("name", c.Name),
		slog.Int64("created_by", actor.ID),
	)
	return c, nil
}

// UpdateCategory renames category id and changes its threshold.
func (s *service) UpdateCategory(ctx context.Context, actor *auth.User, id int64, form CategoryForm) (*Category, error) {
	c, err := s.Category(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := applyCategory(c, form); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateCategory(ctx, c); err != nil {
		return nil, storeError(err)
	}
	slog.Info("category updated",
		slog.Int64("category_id", c.ID),
		slog.Int("low_stock_threshold", c.LowStockThreshold),
		slog.Int64("updated_by", actor.ID),
	)
	return c, nil
}

// DeleteCategory removes an empty category.
func (s *service) DeleteCategory(ctx context.Context, actor *auth.User, id int64) error {
	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		return wrap(err)
	}
	slog.Info("category deleted", slog.Int64("category_id", id), slog.Int64("deleted_by", actor.ID))
	return nil
}

func (s *service) Locations(ctx context.Context) ([]Location, error) {
	list, err := s.repo.ListLocations(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	return list, nil
}

func (s *service) Location(ctx context.Context, id int64) (*Location, error) {
	l, err := s.repo.FindLocation(ctx, id)
	if err != nil {
		return nil, wrap(err)
	}
	return l, nil
}

// CreateLocation validates form and inserts the location.
func (s *service) CreateLocation(ctx context.Context, actor *auth.User, form LocationForm) (*Location, error) {
	l := &Location{}
	if err := applyLocation(l, form); err != nil {
		return nil, err
	}
	if err := s.repo.CreateLocation(ctx, l); err != nil {
		return nil, storeError(err)
	}
	slog.Info("location created",
		slog.Int64("location_id", l.ID),
		slog.String("name", l.Name),
		slog.Int64("created_by", actor.ID),
	)
	return l, nil
}

// UpdateLocation renames location id.
func (s *service) UpdateLocation(ctx context.Context, actor *auth.User, id int64, form LocationForm) (*Location, error) {
	l, err := s.Location(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := applyLocation(l, form); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateLocation(ctx, l); err != nil {
		return nil, storeError(err)
	}
	slog.Info("location updated", slog.Int64("location_id", l.ID), slog.Int64("updated_by", actor.ID))
	return l, nil
}

// DeleteLocation removes a location no asset is kept at.
func (s *service) DeleteLocation(ctx context.Context, actor *auth.User, id int64) error {
	if err := s.repo.DeleteLocation(ctx, id); err != nil {
		return wrap(err)
	}
	slog.Info("location deleted", slog.Int64("location_id", id), slog.Int64("deleted_by", actor.ID))
	return nil
}

func applyCategory(c *Category, form CategoryForm) error {
	v := apperror.NewValidationErrors()
	c.Name = sanitize.Truncate(sanitize.Text(form.Name), maxNameLength)
	c.LowStockThreshold = form.LowStockThreshold
	if c.Name == "" {
		v.Add("Category name is required.")
	}
	if c.LowStockThreshold < 1 {
		v.Add("Low stock threshold must be at least 1.")
	}
	return v.OrNil()
}

func applyLocation(l *Location, form LocationForm) error {
	l.Name = sanitize.Truncate(sanitize.Text(form.Name), maxNameLength)
	if l.Name == "" {
		return apperror.NewValidationErrors("Location name is required.")
	}
	return nil
}

// wrap keeps client errors from the repository and hides the rest.
func wrap(err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperror.NewInternal(err)
}

// storeError shows a duplicate name as a form message.
func storeError(err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) && appErr.Code == http.StatusConflict {
		return apperror.NewValidationErrors(appErr.Message)
	}
	return wrap(err)
}
