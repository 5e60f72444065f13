package reports

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/glassyams/ams/internal/plugins/assets"
)

// Repository runs the report queries.
type Repository interface {
	Locations(ctx context.Context) ([]Option, error)
	AssetsAtLocation(ctx context.Context, locationID int64) ([]LocationAsset, error)
	LowStock(ctx context.Context) ([]LowStockCategory, error)
}

type repository struct {
	db *sql.DB
}

// NewRepository creates a report repository backed by the given DB pool.
func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Locations(ctx context.Context) ([]Option, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM locations ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing locations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var opts []Option
	for rows.Next() {
		var o Option
		if err := rows.Scan(&o.ID, &o.Name); err != nil {
			return nil, fmt.Errorf("scanning location: %w", err)
		}
		opts = append(opts, o)
	}
	return opts, rows.Err()
}

// AssetsAtLocation lists the assets kept at locationID ordered by name.
func (r *repository) AssetsAtLocation(ctx context.Context, locationID int64) ([]LocationAsset, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT a.id, a.name, a.serial_number, c.name, a.status, a.quantity
		 FROM assets a
		 JOIN categories c ON c.id = a.category_id
		 WHERE a.location_id = ?
		 ORDER BY a.name`, locationID)
	if err != nil {
		return nil, fmt.Errorf("listing assets at location: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var list []LocationAsset
	for rows.Next() {
		var a LocationAsset
		if err := rows.Scan(&a.ID, &a.Name, &a.SerialNumber, &a.CategoryName, &a.Status, &a.Quantity); err != nil {
			return nil, fmt.Errorf("scanning asset: %w", err)
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

// LowStock returns the categories whose In Stock and Available quantity is
// below their threshold, ordered by name. A category without usable assets
// has quantity zero and is reported whenever its threshold is positive.
func (r *repository) LowStock(ctx context.Context) ([]LowStockCategory, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.id, c.name, c.low_stock_threshold,
		        COALESCE(SUM(a.quantity), 0) AS total_quantity, COUNT(a.id)
		 FROM categories c
		 LEFT JOIN assets a ON a.category_id = c.id AND a.status IN (?, ?)
		 GROUP BY c.id, c.name, c.low_stock_threshold
		 HAVING total_quantity < c.low_stock_threshold
		 ORDER BY c.name`, assets.StatusInStock, assets.StatusAvailable)
	if err != nil {
		return nil, fmt.Errorf("querying low stock: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var list []LowStockCategory
	for rows.Next() {
		var c LowStockCategory
		if err := rows.Scan(&c.ID, &c.Name, &c.Threshold, &c.TotalQuantity, &c.AssetCount); err != nil {
			return nil, fmt.Errorf("scanning low stock row: %w", err)
		}
		list = append(list, c)
	}
	return list, rows.Err()
}
