package audit

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/glassyams/ams/internal/database"
)

// mockRepo implements Repository for testing.
type mockRepo struct {
	insertFn func(ctx context.Context, q database.Querier, req *PasswordChangeRequest) error
}

func (m *mockRepo) Insert(ctx context.Context, q database.Querier, req *PasswordChangeRequest) error {
	if m.insertFn != nil {
		return m.insertFn(ctx, q, req)
	}
	req.ID = 1
	return nil
}

func TestRecord_Valid(t *testing.T) {
	var got *PasswordChangeRequest
	svc := NewService(&mockRepo{insertFn: func(_ context.Context, _ database.Querier, req *PasswordChangeRequest) error {
		got = req
		return nil
	}})

	err := svc.Record(context.Background(), nil, &PasswordChangeRequest{
		UserID:      2,
		ChangedBy:   1,
		RequestType: TypeAdminReset,
		IPAddress:   "192.0.2.10",
		Notes:       "  Password <b>reset</b> by administrator ",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("expected default status completed, got %q", got.Status)
	}
	if got.Notes != "Password reset by administrator" {
		t.Errorf("note not sanitized: %q", got.Notes)
	}
}

func TestRecord_RejectsIncompleteRequests(t *testing.T) {
	tests := []struct {
		name string
		req  PasswordChangeRequest
	}{
		{"missing user", PasswordChangeRequest{ChangedBy: 1, RequestType: TypeAdminReset}},
		{"missing actor", PasswordChangeRequest{UserID: 2, RequestType: TypeAdminReset}},
		{"unknown type", PasswordChangeRequest{UserID: 2, ChangedBy: 1, RequestType: "email_link"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			svc := NewService(&mockRepo{insertFn: func(context.Context, database.Querier, *PasswordChangeRequest) error {
				called = true
				return nil
			}})
			req := tt.req
			if err := svc.Record(context.Background(), nil, &req); err == nil {
				t.Fatal("expected error")
			}
			if called {
				t.Error("invalid request must not be inserted")
			}
		})
	}
}

func TestRecord_TruncatesLongNotes(t *testing.T) {
	var got string
	svc := NewService(&mockRepo{insertFn: func(_ context.Context, _ database.Querier, req *PasswordChangeRequest) error {
		got = req.Notes
		return nil
	}})
	_ = svc.Record(context.Background(), nil, &PasswordChangeRequest{
		UserID: 2, ChangedBy: 1, RequestType: TypeSelfService,
		Notes: strings.Repeat("x", 400),
	})
	if len(got) != maxNoteLength {
		t.Errorf("expected %d chars, got %d", maxNoteLength, len(got))
	}
}

func TestRecord_PropagatesInsertError(t *testing.T) {
	boom := errors.New("insert failed")
	svc := NewService(&mockRepo{insertFn: func(context.Context, database.Querier, *PasswordChangeRequest) error {
		return boom
	}})
	err := svc.Record(context.Background(), nil, &PasswordChangeRequest{
		UserID: 2, ChangedBy: 1, RequestType: TypeAdminReset,
	})
	if !errors.Is(err, boom) {
		t.Errorf("expected insert error, got %v", err)
	}
}

func TestRepositoryInsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO password_change_requests").
		WithArgs(int64(2), int64(1), TypeAdminReset, StatusCompleted, "192.0.2.10", NoteAdminReset, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(17, 1))

	req := &PasswordChangeRequest{
		UserID: 2, ChangedBy: 1, RequestType: TypeAdminReset, Status: StatusCompleted,
		IPAddress: "192.0.2.10", Notes: NoteAdminReset,
	}
	if err := NewRepository().Insert(context.Background(), db, req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.ID != 17 {
		t.Errorf("expected id 17, got %d", req.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
