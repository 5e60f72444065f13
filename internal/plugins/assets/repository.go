package assets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/glassyams/ams/internal/apperror"
)

// MariaDB error numbers the repository maps to user-facing errors.
const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrRowIsReferenced = 1451
)

// AssetRepository defines the data access contract for assets and the
// reference data their forms offer.
type AssetRepository interface {
	FindByID(ctx context.Context, id int64) (*Asset, error)
	List(ctx context.Context, filter ListFilter) ([]Asset, error)
	Categories(ctx context.Context) ([]Option, error)
	Locations(ctx context.Context) ([]Option, error)

	// Create inserts a and fills in a.ID. createdBy is stamped as both
	// creator and last editor.
	Create(ctx context.Context, a *Asset, createdBy int64) error

	// Update writes the fields scope allows and stamps updated_by.
	Update(ctx context.Context, a *Asset, scope EditScope, updatedBy int64) error

	Delete(ctx context.Context, id int64) error

	// Dashboard figures.
	Count(ctx context.Context) (int, error)
	CountByStatus(ctx context.Context) (map[string]StatusTotal, error)
	Recent(ctx context.Context, limit int) ([]Asset, error)
}

// assetRepository implements AssetRepository with hand-written MariaDB queries.
type assetRepository struct {
	db *sql.DB
}

// NewAssetRepository creates a new asset repository backed by the given DB pool.
func NewAssetRepository(db *sql.DB) AssetRepository {
	return &assetRepository{db: db}
}

// assetSelect joins category, location and user names in scanAsset order.
const assetSelect = `SELECT a.id, a.name, a.serial_number, a.category_id, c.name,
	a.location_id, l.name, a.purchase_date, a.status, a.quantity,
	a.created_by, COALESCE(cu.full_name, ''), a.created_at,
	a.updated_by, COALESCE(uu.full_name, ''), a.updated_at
	FROM assets a
	JOIN categories c ON c.id = a.category_id
	JOIN locations l ON l.id = a.location_id
	LEFT JOIN users cu ON cu.id = a.created_by
	LEFT JOIN users uu ON uu.id = a.updated_by`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanAsset reads one asset in assetSelect order.
func scanAsset(row rowScanner) (*Asset, error) {
	a := &Asset{}
	err := row.Scan(
		&a.ID, &a.Name, &a.SerialNumber, &a.CategoryID, &a.CategoryName,
		&a.LocationID, &a.LocationName, &a.PurchaseDate, &a.Status, &a.Quantity,
		&a.CreatedBy, &a.CreatedByName, &a.CreatedAt,
		&a.UpdatedBy, &a.UpdatedByName, &a.UpdatedAt,
	)
	return a, err
}

// FindByID retrieves an asset by its primary key.
func (r *assetRepository) FindByID(ctx context.Context, id int64) (*Asset, error) {
	a, err := scanAsset(r.db.QueryRowContext(ctx, assetSelect+` WHERE a.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("Asset not found.")
	}
	if err != nil {
		return nil, fmt.Errorf("querying asset by id: %w", err)
	}
	return a, nil
}

// List returns assets matching filter ordered by name. Search matches the
// asset name, serial number or category name.
func (r *assetRepository) List(ctx context.Context, filter ListFilter) ([]Asset, error) {
	var where []string
	var args []any

	if s := strings.TrimSpace(filter.Search); s != "" {
		like := "%" + escapeLike(s) + "%"
		where = append(where, `(a.name LIKE ? OR a.serial_number LIKE ? OR c.name LIKE ?)`)
		args = append(args, like, like, like)
	}
	if filter.CategoryID > 0 {
		where = append(where, `a.category_id = ?`)
		args = append(args, filter.CategoryID)
	}
	if filter.LocationID > 0 {
		where = append(where, `a.location_id = ?`)
		args = append(args, filter.LocationID)
	}
	if filter.Status != "" {
		where = append(where, `a.status = ?`)
		args = append(args, filter.Status)
	}

	query := assetSelect
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY a.name ASC, a.id ASC`

	return r.query(ctx, query, args...)
}

// Recent returns the limit most recently changed assets.
func (r *assetRepository) Recent(ctx context.Context, limit int) ([]Asset, error) {
	return r.query(ctx, assetSelect+` ORDER BY a.updated_at DESC, a.id DESC LIMIT ?`, limit)
}

func (r *assetRepository) query(ctx context.Context, query string, args ...any) ([]Asset, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing assets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var list []Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning asset: %w", err)
		}
		list = append(list, *a)
	}
	return list, rows.Err()
}

// Categories returns every category ordered by name.
func (r *assetRepository) Categories(ctx context.Context) ([]Option, error) {
	return r.options(ctx, `SELECT id, name FROM categories ORDER BY name`)
}

// Locations returns every location ordered by name.
func (r *assetRepository) Locations(ctx context.Context) ([]Option, error) {
	return r.options(ctx, `SELECT id, name FROM locations ORDER BY name`)
}

func (r *assetRepository) options(ctx context.Context, query string) ([]Option, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing options: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var opts []Option
	for rows.Next() {
		var o Option
		if err := rows.Scan(&o.ID, &o.Name); err != nil {
			return nil, fmt.Errorf("scanning option: %w", err)
		}
		opts = append(opts, o)
	}
	return opts, rows.Err()
}

// Create inserts a new asset.
func (r *assetRepository) Create(ctx context.Context, a *Asset, createdBy int64) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO assets (name, serial_number, category_id, location_id, purchase_date, status, quantity, created_by, updated_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Name, a.SerialNumber, a.CategoryID, a.LocationID, a.PurchaseDate, a.Status, a.Quantity, createdBy, createdBy,
	)
	if err != nil {
		if isDuplicateEntry(err) {
			return apperror.NewConflict("Serial number already exists.")
		}
		return fmt.Errorf("inserting asset: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting asset id: %w", err)
	}
	a.ID = id
	a.CreatedBy = &createdBy
	a.UpdatedBy = &createdBy
	return nil
}

// Delete removes an asset.
func (r *assetRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM assets WHERE id = ?`, id)
	if err != nil {
		if isRowReferenced(err) {
			return apperror.NewConflict("Unable to delete asset. It may have associated records.")
		}
		return fmt.Errorf("deleting asset: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperror.NewNotFound("Asset not found.")
	}
	return nil
}

// Update writes only the columns scope allows. A full editor writes every
// field; a partial editor writes location and/or status.
func (r *assetRepository) Update(ctx context.Context, a *Asset, scope EditScope, updatedBy int64) error {
	var sets []string
	var args []any

	if scope.All {
		sets = append(sets, `name = ?`, `serial_number = ?`, `category_id = ?`, `purchase_date = ?`, `quantity = ?`)
		args = append(args, a.Name, a.SerialNumber, a.CategoryID, a.PurchaseDate, a.Quantity)
	}
	if scope.CanEditLocation() {
		sets = append(sets, `location_id = ?`)
		args = append(args, a.LocationID)
	}
	if scope.CanEditStatus() {
		sets = append(sets, `status = ?`)
		args = append(args, a.Status)
	}
	if len(sets) == 0 {
		return apperror.NewForbidden("You do not have permission to edit assets.")
	}
	sets = append(sets, `updated_by = ?`)
	args = append(args, updatedBy, a.ID)

	result, err := r.db.ExecContext(ctx,
		`UPDATE assets SET `+strings.Join(sets, `, `)+` WHERE id = ?`, args...)
	if err != nil {
		if isDuplicateEntry(err) {
			return apperror.NewConflict("Serial number already exists.")
		}
		return fmt.Errorf("updating asset: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		// Unchanged rows also report zero; tell them apart from missing ones.
		var exists bool
		if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM assets WHERE id = ?)`, a.ID).Scan(&exists); err != nil {
			return fmt.Errorf("checking asset exists: %w", err)
		}
		if !exists {
			return apperror.NewNotFound("Asset not found.")
		}
	}
	return nil
}

// Count returns the number of asset records.
func (r *assetRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM assets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting assets: %w", err)
	}
	return n, nil
}

// CountByStatus returns the record count and total quantity in each status.
// Every status is present, zero when no asset holds it.
func (r *assetRepository) CountByStatus(ctx context.Context) (map[string]StatusTotal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*), COALESCE(SUM(quantity), 0) FROM assets GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting assets by status: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]StatusTotal, len(Statuses))
	for _, s := range Statuses {
		counts[s] = StatusTotal{}
	}
	for rows.Next() {
		var status string
		var t StatusTotal
		if err := rows.Scan(&status, &t.Count, &t.Quantity); err != nil {
			return nil, fmt.Errorf("scanning status count: %w", err)
		}
		counts[status] = t
	}
	return counts, rows.Err()
}

// escapeLike escapes LIKE wildcards so search input matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
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
