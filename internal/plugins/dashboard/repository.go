package dashboard

import (
	"context"
	"database/sql"
	"fmt"
)

// Totals counts the reference data and the accounts able to sign in.
type Totals struct {
	Categories  int
	Locations   int
	ActiveUsers int
}

// Repository reads the dashboard counters.
type Repository interface {
	Totals(ctx context.Context) (Totals, error)
}

type repository struct {
	db *sql.DB
}

// NewRepository creates a dashboard repository backed by the given DB pool.
func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

// Totals reads every counter in one round trip.
func (r *repository) Totals(ctx context.Context) (Totals, error) {
	var t Totals
	err := r.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM categories),
		        (SELECT COUNT(*) FROM locations),
		        (SELECT COUNT(*) FROM users WHERE is_active = 1)`,
	).Scan(&t.Categories, &t.Locations, &t.ActiveUsers)
	if err != nil {
		return Totals{}, fmt.Errorf("counting dashboard totals: %w", err)
	}
	return t, nil
}
