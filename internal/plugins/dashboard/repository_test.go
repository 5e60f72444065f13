package dashboard

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestTotals_OneRoundTrip(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("creating sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(`SELECT \(SELECT COUNT\(\*\) FROM categories\),\s+\(SELECT COUNT\(\*\) FROM locations\),\s+\(SELECT COUNT\(\*\) FROM users WHERE is_active = 1\)`).
		WillReturnRows(sqlmock.NewRows([]string{"categories", "locations", "users"}).AddRow(4, 2, 6))

	got, err := NewRepository(db).Totals(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != (Totals{Categories: 4, Locations: 2, ActiveUsers: 6}) {
		t.Errorf("unexpected totals %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
