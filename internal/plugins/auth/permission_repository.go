package auth

import (
	"context"
	"database/sql"
	"fmt"
)

// PermissionRepository reads the permission catalog and the role mapping.
type PermissionRepository interface {
	// ListForRole returns the permission names mapped to role.
	ListForRole(ctx context.Context, role string) ([]string, error)

	// ListAll returns every permission name in the catalog.
	ListAll(ctx context.Context) ([]string, error)
}

// permissionRepository implements PermissionRepository with MariaDB queries.
type permissionRepository struct {
	db *sql.DB
}

// NewPermissionRepository creates a new permission repository.
func NewPermissionRepository(db *sql.DB) PermissionRepository {
	return &permissionRepository{db: db}
}

// ListForRole returns the permission names mapped to role.
func (r *permissionRepository) ListForRole(ctx context.Context, role string) ([]string, error) {
	query := `SELECT p.name
	          FROM permissions p
	          JOIN role_permissions rp ON rp.permission_id = p.id
	          WHERE rp.role = ?
	          ORDER BY p.name`
	return r.names(ctx, query, role)
}

// ListAll returns every permission name in the catalog.
func (r *permissionRepository) ListAll(ctx context.Context) ([]string, error) {
	return r.names(ctx, `SELECT name FROM permissions ORDER BY name`)
}

// names runs a single-column name query.
func (r *permissionRepository) names(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying permissions: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scanning permission: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}
