package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/glassyams/ams/internal/apperror"
)

// MariaDB error numbers mapped to user-facing errors.
const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrRowIsReferenced = 1451
)

// Repository defines the data access contract for categories and locations.
type Repository interface {
	ListCategories(ctx context.Context) ([]Category, error)
	FindCategory(ctx context.Context, id int64) (*Category, error)
	CreateCategory(ctx context.Context, c *Category) error
	UpdateCategory(ctx context.Context, c *Category) error
	DeleteCategory(ctx context.Context, id int64) error

	ListLocations(ctx context.Context) ([]Location, error)
	FindLocation(ctx context.Context, id int64) (*Location, error)
	CreateLocation(ctx context.Context, l *Location) error
	UpdateLocation(ctx context.Context, l *Location) error
	DeleteLocation(ctx context.Context, id int64) error
}

// repository implements Repository with hand-written MariaDB queries.
type repository struct {
	db *sql.DB
}

// NewRepository creates a new catalog repository backed by the given DB pool.
func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

// --- Categories ---

// ListCategories returns every category ordered by name with the number of
// assets filed under it and their total quantity.
func (r *repository) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.id, c.name, c.low_stock_threshold, c.created_at,
		        COUNT(a.id), COALESCE(SUM(a.quantity), 0)
		 FROM categories c
		 LEFT JOIN assets a ON a.category_id = c.id
		 GROUP BY c.id, c.name, c.low_stock_threshold, c.created_at
		 ORDER BY c.name`)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var list []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.LowStockThreshold, &c.CreatedAt, &c.AssetCount, &c.TotalQuantity); err != nil {
			return nil, fmt.Errorf("scanning category: %w", err)
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

// FindCategory retrieves a category by its primary key.
func (r *repository) FindCategory(ctx context.Context, id int64) (*Category, error) {
	c := &Category{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, low_stock_threshold, created_at FROM categories WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.LowStockThreshold, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("Category not found.")
	}
	if err != nil {
		return nil, fmt.Errorf("querying category by id: %w", err)
	}
	return c, nil
}

// CreateCategory inserts c and fills in c.ID.
func (r *repository) CreateCategory(ctx context.Context, c *Category) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (name, low_stock_threshold) VALUES (?, ?)`,
		c.Name, c.LowStockThreshold)
	if err != nil {
		if isDuplicateEntry(err) {
			return apperror.NewConflict("Category already exists.")
		}
		return fmt.Errorf("inserting category: %w", err)
	}
	c.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting category id: %w", err)
	}
	return nil
}

// UpdateCategory renames c and stores its threshold.
func (r *repository) UpdateCategory(ctx context.Context, c *Category) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE categories SET name = ?, low_stock_threshold = ? WHERE id = ?`,
		c.Name, c.LowStockThreshold, c.ID)
	if err != nil {
		if isDuplicateEntry(err) {
			return apperror.NewConflict("Category already exists.")
		}
		return fmt.Errorf("updating category: %w", err)
	}
	return nil
}

// DeleteCategory removes a category. The assets foreign key refuses the
// delete while any asset is filed under it.
func (r *repository) DeleteCategory(ctx context.Context, id int64) error {
	return r.delete(ctx, `DELETE FROM categories WHERE id = ?`, id,
		"Category not found.", "Cannot delete category with associated assets.")
}

// --- Locations ---

// ListLocations returns every location ordered by name with the number of
// assets kept there and their total quantity.
func (r *repository) ListLocations(ctx context.Context) ([]Location, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT l.id, l.name, l.created_at, COUNT(a.id), COALESCE(SUM(a.quantity), 0)
		 FROM locations l
		 LEFT JOIN assets a ON a.location_id = l.id
		 GROUP BY l.id, l.name, l.created_at
		 ORDER BY l.name`)
	if err != nil {
		return nil, fmt.Errorf("listing locations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var list []Location
	for rows.Next() {
		var l Location
		if err := rows.Scan(&l.ID, &l.Name, &l.CreatedAt, &l.AssetCount, &l.TotalQuantity); err != nil {
			return nil, fmt.Errorf("scanning location: %w", err)
		}
		list = append(list, l)
	}
	return list, rows.Err()
}

// FindLocation retrieves a location by its primary key.
func (r *repository) FindLocation(ctx context.Context, id int64) (*Location, error) {
	l := &Location{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM locations WHERE id = ?`, id,
	).Scan(&l.ID, &l.Name, &l.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("Location not found.")
	}
	if err != nil {
		return nil, fmt.Errorf("querying location by id: %w", err)
	}
	return l, nil
}

// CreateLocation inserts l and fills in l.ID.
func (r *repository) CreateLocation(ctx context.Context, l *Location) error {
	result, err := r.db.ExecContext(ctx, `INSERT INTO locations (name) VALUES (?)`, l.Name)
	if err != nil {
		if isDuplicateEntry(err) {
			return apperror.NewConflict("Location already exists.")
		}
		return fmt.Errorf("inserting location: %w", err)
	}
	l.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting location id: %w", err)
	}
	return nil
}

// UpdateLocation renames l.
func (r *repository) UpdateLocation(ctx context.Context, l *Location) error {
	_, err := r.db.ExecContext(ctx, `UPDATE locations SET name = ? WHERE id = ?`, l.Name, l.ID)
	if err != nil {
		if isDuplicateEntry(err) {
			return apperror.NewConflict("Location already exists.")
		}
		return fmt.Errorf("updating location: %w", err)
	}
	return nil
}

// DeleteLocation removes a location unless assets are still kept there.
func (r *repository) DeleteLocation(ctx context.Context, id int64) error {
	return r.delete(ctx, `DELETE FROM locations WHERE id = ?`, id,
		"Location not found.", "Cannot delete location with associated assets.")
}

// delete runs a single-row delete and maps a missing row and a foreign key
// refusal to the given messages.
func (r *repository) delete(ctx context.Context, query string, id int64, missing, referenced string) error {
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		if isRowReferenced(err) {
			return apperror.NewConflict(referenced)
		}
		return fmt.Errorf("deleting: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperror.NewNotFound(missing)
	}
	return nil
}

// isDuplicateEntry reports whether err is a MariaDB unique key violation.
func isDuplicateEntry(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlErrDuplicateEntry
}

// isRowReferenced reports whether err is a foreign key refusing a delete.
func isRowReferenced(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlErrRowIsReferenced
}
