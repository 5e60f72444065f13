package reports

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockRepo(t *testing.T) (Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("creating sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewRepository(db), mock
}

func TestLowStock_CountsUsableStatusesOnly(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`a.status IN \(\?, \?\)[\s\S]*HAVING total_quantity < c.low_stock_threshold[\s\S]*ORDER BY c.name`).
		WithArgs("In Stock", "Available").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "low_stock_threshold", "total_quantity", "count"}).
			AddRow(2, "Cables", 10, 4, 2).
			AddRow(5, "Docks", 5, 0, 0))

	list, err := repo.LowStock(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 || list[0].TotalQuantity != 4 || list[0].Threshold != 10 || list[1].AssetCount != 0 {
		t.Errorf("unexpected list: %+v", list)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestAssetsAtLocation(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`WHERE a.location_id = \?\s+ORDER BY a.name`).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "serial_number", "category", "status", "quantity"}).
			AddRow(7, "Dell XPS", "DX-1", "Laptops", "In Use", 1))

	list, err := repo.AssetsAtLocation(context.Background(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 1 || list[0].CategoryName != "Laptops" || list[0].Status != "In Use" {
		t.Errorf("unexpected list: %+v", list)
	}
}
