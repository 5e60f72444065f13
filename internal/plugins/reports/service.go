package reports

import (
	"context"

	"github.com/glassyams/ams/internal/apperror"
)

// Service assembles the reports.
type Service interface {
	Locations(ctx context.Context) ([]Option, error)

	// AssetsByLocation reports the assets at locationID. An unknown
	// location is a 404.
	AssetsByLocation(ctx context.Context, locationID int64) (*LocationReport, error)
	LowStock(ctx context.Context) ([]LowStockCategory, error)
}

type service struct {
	repo Repository
}

// NewService creates a report service.
func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) Locations(ctx context.Context) ([]Option, error) {
	locs, err := s.repo.Locations(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	return locs, nil
}

func (s *service) AssetsByLocation(ctx context.Context, locationID int64) (*LocationReport, error) {
	locs, err := s.Locations(ctx)
	if err != nil {
		return nil, err
	}
	report := &LocationReport{}
	for _, l := range locs {
		if l.ID == locationID {
			report.Location = l
		}
	}
	if report.Location.ID == 0 {
		return nil, apperror.NewNotFound("Location not found.")
	}

	report.Assets, err = s.repo.AssetsAtLocation(ctx, locationID)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	return report, nil
}

func (s *service) LowStock(ctx context.Context) ([]LowStockCategory, error) {
	list, err := s.repo.LowStock(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	return list, nil
}
