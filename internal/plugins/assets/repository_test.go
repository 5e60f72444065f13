package assets

import (
	"context"
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
)

func newMockRepo(t *testing.T) (AssetRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("creating sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewAssetRepository(db), mock
}

func TestUpdate_PartialScopeWritesOnlyAllowedColumns(t *testing.T) {
	repo, mock := newMockRepo(t)
	a := storedAsset()
	a.LocationID = 2

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE assets SET location_id = ?, updated_by = ? WHERE id = ?`)).
		WithArgs(int64(2), int64(9), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Update(context.Background(), a, EditScope{Location: true}, 9); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUpdate_FullScope(t *testing.T) {
	repo, mock := newMockRepo(t)
	a := storedAsset()

	mock.ExpectExec(regexp.QuoteMeta(
		`UPDATE assets SET name = ?, serial_number = ?, category_id = ?, purchase_date = ?, quantity = ?, location_id = ?, status = ?, updated_by = ? WHERE id = ?`)).
		WithArgs(a.Name, a.SerialNumber, a.CategoryID, a.PurchaseDate, a.Quantity, a.LocationID, a.Status, int64(9), a.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Update(context.Background(), a, EditScope{All: true}, 9); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUpdate_DuplicateSerial(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE assets SET`).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	err := repo.Update(context.Background(), storedAsset(), EditScope{All: true}, 9)
	assertAppError(t, err, http.StatusConflict)
}

func TestUpdate_MissingAsset(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE assets SET`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM assets WHERE id = ?)`)).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := repo.Update(context.Background(), storedAsset(), EditScope{Status: true}, 9)
	assertAppError(t, err, http.StatusNotFound)
}

func TestUpdate_UnchangedRowIsNotMissing(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`UPDATE assets SET`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	if err := repo.Update(context.Background(), storedAsset(), EditScope{Status: true}, 9); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// assetCols mirrors assetSelect.
var assetCols = []string{"id", "name", "serial_number", "category_id", "c.name", "location_id", "l.name",
	"purchase_date", "status", "quantity", "created_by", "creator", "created_at", "updated_by", "updater", "updated_at"}

func TestList_BuildsFilters(t *testing.T) {
	repo, mock := newMockRepo(t)

	now := time.Now()
	mock.ExpectQuery(`WHERE \(a.name LIKE \? OR a.serial_number LIKE \? OR c.name LIKE \?\) AND a.status = \? ORDER BY`).
		WithArgs(`%50\%%`, `%50\%%`, `%50\%%`, StatusInUse).
		WillReturnRows(sqlmock.NewRows(assetCols).
			AddRow(1, "Monitor", "M-1", 2, "Monitors", 1, "HQ", purchased, StatusInUse, 1, nil, "", now, nil, "", now))

	list, err := repo.List(context.Background(), ListFilter{Search: " 50% ", Status: StatusInUse})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 1 || list[0].LocationName != "HQ" {
		t.Errorf("unexpected list: %+v", list)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCountByStatus_FillsMissingStatuses(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT status, COUNT\(\*\), COALESCE\(SUM\(quantity\), 0\) FROM assets GROUP BY status`).
		WillReturnRows(sqlmock.NewRows([]string{"status", "records", "quantity"}).AddRow(StatusInUse, 2, 4))

	counts, err := repo.CountByStatus(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts[StatusInUse] != (StatusTotal{Count: 2, Quantity: 4}) || counts[StatusAvailable] != (StatusTotal{}) || len(counts) != len(Statuses) {
		t.Errorf("unexpected counts: %v", counts)
	}
}

func TestFindByID_JoinsUserNames(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectQuery(`LEFT JOIN users cu ON cu.id = a.created_by\s+LEFT JOIN users uu ON uu.id = a.updated_by WHERE a.id = \?`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(assetCols).
			AddRow(3, "ThinkPad", "TP-001", 1, "Laptops", 1, "HQ", purchased, StatusInStock, 2, 7, "Ann Admin", now, nil, "", now))

	a, err := repo.FindByID(context.Background(), 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.CreatedBy == nil || *a.CreatedBy != 7 || a.CreatedByName != "Ann Admin" {
		t.Errorf("unexpected creator: %v %q", a.CreatedBy, a.CreatedByName)
	}
	if a.UpdatedBy != nil || a.UpdatedByName != "" {
		t.Errorf("expected no editor, got %v %q", a.UpdatedBy, a.UpdatedByName)
	}
}

func TestFindByID_Missing(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`FROM assets a`).WithArgs(int64(9)).WillReturnRows(sqlmock.NewRows(assetCols))

	_, err := repo.FindByID(context.Background(), 9)
	assertAppError(t, err, http.StatusNotFound)
}

func TestCreate_StampsCreatorAndEditor(t *testing.T) {
	repo, mock := newMockRepo(t)
	a := storedAsset()
	a.ID = 0

	mock.ExpectExec(`INSERT INTO assets \(name, serial_number, category_id, location_id, purchase_date, status, quantity, created_by, updated_by\)`).
		WithArgs(a.Name, a.SerialNumber, a.CategoryID, a.LocationID, a.PurchaseDate, a.Status, a.Quantity, int64(9), int64(9)).
		WillReturnResult(sqlmock.NewResult(12, 1))

	if err := repo.Create(context.Background(), a, 9); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.ID != 12 || a.CreatedBy == nil || *a.CreatedBy != 9 {
		t.Errorf("unexpected asset after insert: id=%d created_by=%v", a.ID, a.CreatedBy)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCreate_DuplicateSerial(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`INSERT INTO assets`).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	err := repo.Create(context.Background(), storedAsset(), 9)
	assertAppError(t, err, http.StatusConflict)
}

func TestDelete(t *testing.T) {
	tests := []struct {
		name string
		set  func(e *sqlmock.ExpectedExec)
		code int
	}{
		{"deleted", func(e *sqlmock.ExpectedExec) { e.WillReturnResult(sqlmock.NewResult(0, 1)) }, 0},
		{"missing", func(e *sqlmock.ExpectedExec) { e.WillReturnResult(sqlmock.NewResult(0, 0)) }, http.StatusNotFound},
		{"referenced", func(e *sqlmock.ExpectedExec) {
			e.WillReturnError(&mysql.MySQLError{Number: 1451, Message: "foreign key constraint fails"})
		}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMockRepo(t)
			tt.set(mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM assets WHERE id = ?`)).WithArgs(int64(3)))

			err := repo.Delete(context.Background(), 3)
			if tt.code == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			assertAppError(t, err, tt.code)
		})
	}
}

func TestRecent_OrdersByLastChange(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectQuery(`ORDER BY a.updated_at DESC, a.id DESC LIMIT \?`).
		WithArgs(8).
		WillReturnRows(sqlmock.NewRows(assetCols).
			AddRow(5, "Dock", "D-1", 1, "Laptops", 2, "Warehouse", purchased, StatusAvailable, 3, nil, "", now, nil, "", now))

	list, err := repo.Recent(context.Background(), 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 1 || list[0].LocationName != "Warehouse" {
		t.Errorf("unexpected list: %+v", list)
	}
}
