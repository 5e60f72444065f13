package admin

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"reflect"
	"testing"
	"time"

	"github.com/glassyams/ams/internal/apperror"
	"github.com/glassyams/ams/internal/database"
	"github.com/glassyams/ams/internal/plugins/audit"
	"github.com/glassyams/ams/internal/plugins/auth"
)

// --- Mocks ---

// mockUserRepo implements auth.UserRepository for testing.
type mockUserRepo struct {
	findByIDFn func(ctx context.Context, id int64) (*auth.User, error)
	updateFn   func(ctx context.Context, user *auth.User) error
	deleteFn   func(ctx context.Context, id int64) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id int64) (*auth.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, apperror.NewNotFound("user not found")
}

func (m *mockUserRepo) FindByEmail(_ context.Context, _ string) (*auth.User, error) {
	return nil, apperror.NewNotFound("user not found")
}

func (m *mockUserRepo) UpdateCredentials(_ context.Context, _ int64, _ string, _ int, _ ...auth.TxHook) error {
	return nil
}

func (m *mockUserRepo) PasswordHistory(_ context.Context, _ int64) ([]string, error) {
	return nil, nil
}

func (m *mockUserRepo) RecordFailedAttempt(_ context.Context, _ int64, _ int, _ time.Time) (int, error) {
	return 1, nil
}

func (m *mockUserRepo) ResetFailedAttempts(_ context.Context, _ int64) error { return nil }

func (m *mockUserRepo) Create(_ context.Context, _ *auth.User, _ int) error { return nil }

func (m *mockUserRepo) List(_ context.Context) ([]auth.User, error) { return nil, nil }

func (m *mockUserRepo) Update(ctx context.Context, user *auth.User) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) Delete(ctx context.Context, id int64) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockUserRepo) CountUsers(_ context.Context) (int, error) { return 0, nil }

// mockAuthService implements auth.AuthService for testing. Only the methods
// the admin service calls have function fields.
type mockAuthService struct {
	checkFn      func(ctx context.Context, userID int64, pw, confirm string) error
	setFn        func(ctx context.Context, userID int64, pw string, hooks ...auth.TxHook) error
	createFn     func(ctx context.Context, input auth.NewUserInput) (*auth.User, error)
	unlockFn     func(ctx context.Context, id int64) error
	violationsFn func(pw string) []string
}

func (m *mockAuthService) Login(_ context.Context, _ auth.LoginInput) (*auth.User, error) {
	return nil, errors.New("not implemented")
}

func (m *mockAuthService) ChangeOwnPassword(_ context.Context, _ *auth.User, _ auth.ChangePasswordInput) error {
	return errors.New("not implemented")
}

func (m *mockAuthService) CheckNewPassword(ctx context.Context, userID int64, pw, confirm string) error {
	if m.checkFn != nil {
		return m.checkFn(ctx, userID, pw, confirm)
	}
	return nil
}

func (m *mockAuthService) SetPassword(ctx context.Context, userID int64, pw string, hooks ...auth.TxHook) error {
	if m.setFn != nil {
		return m.setFn(ctx, userID, pw, hooks...)
	}
	return nil
}

func (m *mockAuthService) CreateUser(ctx context.Context, input auth.NewUserInput) (*auth.User, error) {
	if m.createFn != nil {
		return m.createFn(ctx, input)
	}
	return &auth.User{ID: 10, FullName: input.FullName, Email: input.Email, Role: input.Role, IsActive: input.IsActive}, nil
}

func (m *mockAuthService) PasswordViolations(pw string) []string {
	if m.violationsFn != nil {
		return m.violationsFn(pw)
	}
	return nil
}

func (m *mockAuthService) UnlockUser(ctx context.Context, id int64) error {
	if m.unlockFn != nil {
		return m.unlockFn(ctx, id)
	}
	return nil
}

func (m *mockAuthService) PasswordExpired(_ *auth.User) bool { return false }

// mockAudit captures recorded password change requests.
type mockAudit struct {
	recorded []*audit.PasswordChangeRequest
	err      error
}

func (m *mockAudit) Record(_ context.Context, _ database.Querier, req *audit.PasswordChangeRequest) error {
	if m.err != nil {
		return m.err
	}
	m.recorded = append(m.recorded, req)
	return nil
}

// --- Helpers ---

func newTestService(repo *mockUserRepo, authSvc *mockAuthService, auditSvc *mockAudit) UserService {
	return NewUserService(repo, authSvc, auditSvc)
}

func usersByID(users ...*auth.User) func(ctx context.Context, id int64) (*auth.User, error) {
	return func(_ context.Context, id int64) (*auth.User, error) {
		for _, u := range users {
			if u.ID == id {
				cp := *u
				return &cp, nil
			}
		}
		return nil, apperror.NewNotFound("user not found")
	}
}

func assertAppError(t *testing.T, err error, expectedCode int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %d, got nil", expectedCode)
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperror.AppError, got %T: %v", err, err)
	}
	if appErr.Code != expectedCode {
		t.Errorf("expected status %d, got %d (message: %s)", expectedCode, appErr.Code, appErr.Message)
	}
}

func assertValidation(t *testing.T, err error, want ...string) {
	t.Helper()
	got := apperror.ValidationMessages(err)
	if got == nil {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("validation messages = %q, want %q", got, want)
	}
}

var (
	adminUser  = &auth.User{ID: 1, FullName: "Ada Admin", Email: "ada@example.com", Role: auth.RoleAdmin, IsActive: true}
	viewerUser = &auth.User{ID: 2, FullName: "Vic Viewer", Email: "vic@example.com", Role: auth.RoleViewer, IsActive: true}
)

// --- CreateUser ---

func TestCreateUser_Success(t *testing.T) {
	var got auth.NewUserInput
	authSvc := &mockAuthService{createFn: func(_ context.Context, in auth.NewUserInput) (*auth.User, error) {
		got = in
		return &auth.User{ID: 7, FullName: in.FullName}, nil
	}}
	svc := newTestService(&mockUserRepo{}, authSvc, &mockAudit{})

	u, err := svc.CreateUser(context.Background(), UserForm{
		FullName: "  Mia <b>Manager</b> ",
		Email:    " Mia@Example.COM ",
		Role:     auth.RoleManager,
		IsActive: true,
		Password: "Str0ng!Pass",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.ID != 7 {
		t.Errorf("expected id 7, got %d", u.ID)
	}
	if got.Email != "mia@example.com" {
		t.Errorf("expected normalized email, got %q", got.Email)
	}
	if got.FullName != "Mia Manager" {
		t.Errorf("expected sanitized name, got %q", got.FullName)
	}
}

func TestCreateUser_ReportsEveryProblem(t *testing.T) {
	authSvc := &mockAuthService{
		violationsFn: func(string) []string { return []string{"Password must be at least 8 characters."} },
		createFn: func(context.Context, auth.NewUserInput) (*auth.User, error) {
			t.Fatal("CreateUser should not be called")
			return nil, nil
		},
	}
	svc := newTestService(&mockUserRepo{}, authSvc, &mockAudit{})

	_, err := svc.CreateUser(context.Background(), UserForm{Email: "not-an-email", Role: "owner", Password: "x"})
	assertValidation(t, err,
		"Full name is required.",
		"Please enter a valid email address.",
		"Please select a valid role.",
		"Password must be at least 8 characters.",
	)
}

func TestCreateUser_MissingFields(t *testing.T) {
	svc := newTestService(&mockUserRepo{}, &mockAuthService{}, &mockAudit{})

	_, err := svc.CreateUser(context.Background(), UserForm{FullName: "Name", Role: auth.RoleViewer})
	assertValidation(t, err, "Email is required.", "Password is required.")
}

func TestCreateUser_DuplicateEmailPassesThrough(t *testing.T) {
	authSvc := &mockAuthService{createFn: func(context.Context, auth.NewUserInput) (*auth.User, error) {
		return nil, apperror.NewValidationErrors("Email already exists.")
	}}
	svc := newTestService(&mockUserRepo{}, authSvc, &mockAudit{})

	_, err := svc.CreateUser(context.Background(), UserForm{
		FullName: "Dup", Email: "ada@example.com", Role: auth.RoleViewer, Password: "Str0ng!Pass",
	})
	assertValidation(t, err, "Email already exists.")
}

// --- UpdateUser ---

func TestUpdateUser_LastAdmin(t *testing.T) {
	repo := &mockUserRepo{updateFn: func(context.Context, *auth.User) error { return auth.ErrLastAdmin }}
	svc := newTestService(repo, &mockAuthService{}, &mockAudit{})

	_, err := svc.UpdateUser(context.Background(), 1, UserForm{
		FullName: "Ada", Email: "ada@example.com", Role: auth.RoleAdmin, IsActive: false,
	})
	assertValidation(t, err, msgDeactivateLastAdmin)
}

func TestUpdateUser_DuplicateEmail(t *testing.T) {
	repo := &mockUserRepo{updateFn: func(context.Context, *auth.User) error {
		return apperror.NewConflict("Email already exists.")
	}}
	svc := newTestService(repo, &mockAuthService{}, &mockAudit{})

	_, err := svc.UpdateUser(context.Background(), 2, UserForm{
		FullName: "Vic", Email: "ada@example.com", Role: auth.RoleViewer, IsActive: true,
	})
	assertValidation(t, err, "Email already exists.")
}

func TestUpdateUser_Missing(t *testing.T) {
	repo := &mockUserRepo{updateFn: func(context.Context, *auth.User) error {
		return apperror.NewNotFound("user not found")
	}}
	svc := newTestService(repo, &mockAuthService{}, &mockAudit{})

	_, err := svc.UpdateUser(context.Background(), 99, UserForm{
		FullName: "Ghost", Email: "ghost@example.com", Role: auth.RoleViewer,
	})
	assertAppError(t, err, http.StatusNotFound)
}

func TestUpdateUser_StoreError(t *testing.T) {
	repo := &mockUserRepo{updateFn: func(context.Context, *auth.User) error { return sql.ErrConnDone }}
	svc := newTestService(repo, &mockAuthService{}, &mockAudit{})

	_, err := svc.UpdateUser(context.Background(), 2, UserForm{
		FullName: "Vic", Email: "vic@example.com", Role: auth.RoleViewer,
	})
	assertAppError(t, err, http.StatusInternalServerError)
}

// --- DeleteUser ---

func TestDeleteUser_Self(t *testing.T) {
	repo := &mockUserRepo{deleteFn: func(context.Context, int64) error {
		t.Fatal("Delete should not be called")
		return nil
	}}
	svc := newTestService(repo, &mockAuthService{}, &mockAudit{})

	err := svc.DeleteUser(context.Background(), adminUser, adminUser.ID)
	assertValidation(t, err, msgDeleteSelf)
}

func TestDeleteUser_LastAdmin(t *testing.T) {
	repo := &mockUserRepo{deleteFn: func(context.Context, int64) error { return auth.ErrLastAdmin }}
	svc := newTestService(repo, &mockAuthService{}, &mockAudit{})

	err := svc.DeleteUser(context.Background(), &auth.User{ID: 5, Role: auth.RoleAdmin}, 1)
	assertValidation(t, err, msgDeleteLastAdmin)
}

func TestDeleteUser_Success(t *testing.T) {
	var deleted int64
	repo := &mockUserRepo{deleteFn: func(_ context.Context, id int64) error {
		deleted = id
		return nil
	}}
	svc := newTestService(repo, &mockAuthService{}, &mockAudit{})

	if err := svc.DeleteUser(context.Background(), adminUser, viewerUser.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != viewerUser.ID {
		t.Errorf("expected user %d deleted, got %d", viewerUser.ID, deleted)
	}
}

// --- UnlockUser ---

func TestUnlockUser(t *testing.T) {
	var unlocked int64
	repo := &mockUserRepo{findByIDFn: usersByID(viewerUser)}
	authSvc := &mockAuthService{unlockFn: func(_ context.Context, id int64) error {
		unlocked = id
		return nil
	}}
	svc := newTestService(repo, authSvc, &mockAudit{})

	if err := svc.UnlockUser(context.Background(), viewerUser.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if unlocked != viewerUser.ID {
		t.Errorf("expected user %d unlocked, got %d", viewerUser.ID, unlocked)
	}

	assertAppError(t, svc.UnlockUser(context.Background(), 99), http.StatusNotFound)
}

// --- ResetPassword ---

func TestResetPassword_RecordsAdminReset(t *testing.T) {
	repo := &mockUserRepo{findByIDFn: usersByID(adminUser, viewerUser)}
	auditSvc := &mockAudit{}
	var setFor int64
	authSvc := &mockAuthService{setFn: func(ctx context.Context, userID int64, _ string, hooks ...auth.TxHook) error {
		setFor = userID
		for _, hook := range hooks {
			if err := hook(ctx, nil); err != nil {
				return err
			}
		}
		return nil
	}}
	svc := newTestService(repo, authSvc, auditSvc)

	target, err := svc.ResetPassword(context.Background(), ResetInput{
		Actor:           adminUser,
		TargetID:        viewerUser.ID,
		NewPassword:     "N3w!Passw0rd",
		ConfirmPassword: "N3w!Passw0rd",
		IPAddress:       "203.0.113.9",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target.ID != viewerUser.ID || setFor != viewerUser.ID {
		t.Fatalf("expected password set for %d, got target %d set %d", viewerUser.ID, target.ID, setFor)
	}

	if len(auditSvc.recorded) != 1 {
		t.Fatalf("expected 1 audit row, got %d", len(auditSvc.recorded))
	}
	req := auditSvc.recorded[0]
	if req.UserID != viewerUser.ID || req.ChangedBy != adminUser.ID {
		t.Errorf("expected user %d changed by %d, got %d by %d", viewerUser.ID, adminUser.ID, req.UserID, req.ChangedBy)
	}
	if req.RequestType != audit.TypeAdminReset {
		t.Errorf("expected type %q, got %q", audit.TypeAdminReset, req.RequestType)
	}
	if req.Notes != audit.NoteAdminReset {
		t.Errorf("expected note %q, got %q", audit.NoteAdminReset, req.Notes)
	}
	if req.IPAddress != "203.0.113.9" {
		t.Errorf("expected IP recorded, got %q", req.IPAddress)
	}
}

func TestResetPassword_Self(t *testing.T) {
	repo := &mockUserRepo{findByIDFn: usersByID(adminUser)}
	authSvc := &mockAuthService{setFn: func(context.Context, int64, string, ...auth.TxHook) error {
		t.Fatal("SetPassword should not be called")
		return nil
	}}
	svc := newTestService(repo, authSvc, &mockAudit{})

	_, err := svc.ResetPassword(context.Background(), ResetInput{
		Actor: adminUser, TargetID: adminUser.ID, NewPassword: "N3w!Passw0rd", ConfirmPassword: "N3w!Passw0rd",
	})
	assertValidation(t, err, msgResetSelf)
}

func TestResetPassword_PolicyFailure(t *testing.T) {
	repo := &mockUserRepo{findByIDFn: usersByID(adminUser, viewerUser)}
	auditSvc := &mockAudit{}
	authSvc := &mockAuthService{
		checkFn: func(context.Context, int64, string, string) error {
			return apperror.NewValidationErrors("New password and confirmation do not match.")
		},
		setFn: func(context.Context, int64, string, ...auth.TxHook) error {
			t.Fatal("SetPassword should not be called")
			return nil
		},
	}
	svc := newTestService(repo, authSvc, auditSvc)

	_, err := svc.ResetPassword(context.Background(), ResetInput{
		Actor: adminUser, TargetID: viewerUser.ID, NewPassword: "N3w!Passw0rd", ConfirmPassword: "other",
	})
	assertValidation(t, err, "New password and confirmation do not match.")
	if len(auditSvc.recorded) != 0 {
		t.Errorf("expected no audit rows, got %d", len(auditSvc.recorded))
	}
}

func TestResetPassword_AuditFailureAborts(t *testing.T) {
	repo := &mockUserRepo{findByIDFn: usersByID(adminUser, viewerUser)}
	auditSvc := &mockAudit{err: errors.New("insert failed")}
	authSvc := &mockAuthService{setFn: func(ctx context.Context, _ int64, _ string, hooks ...auth.TxHook) error {
		for _, hook := range hooks {
			if err := hook(ctx, nil); err != nil {
				return apperror.NewInternal(err)
			}
		}
		return nil
	}}
	svc := newTestService(repo, authSvc, auditSvc)

	_, err := svc.ResetPassword(context.Background(), ResetInput{
		Actor: adminUser, TargetID: viewerUser.ID, NewPassword: "N3w!Passw0rd", ConfirmPassword: "N3w!Passw0rd",
	})
	assertAppError(t, err, http.StatusInternalServerError)
}

func TestResetPassword_UnknownTarget(t *testing.T) {
	repo := &mockUserRepo{findByIDFn: usersByID(adminUser)}
	svc := newTestService(repo, &mockAuthService{}, &mockAudit{})

	_, err := svc.ResetPassword(context.Background(), ResetInput{Actor: adminUser, TargetID: 42})
	assertAppError(t, err, http.StatusNotFound)
}
