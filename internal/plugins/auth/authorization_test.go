package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

// mockPermissionRepo implements PermissionRepository for testing.
type mockPermissionRepo struct {
	byRole    map[string][]string
	all       []string
	roleCalls map[string]int
	err       error
}

func newMockPermissionRepo() *mockPermissionRepo {
	return &mockPermissionRepo{
		byRole: map[string][]string{
			RoleManager: {PermViewAssets, PermCreateAssets, PermEditAssetLocation, PermEditAssetStatus, PermViewReports},
			RoleViewer:  {PermViewAssets, PermViewReports},
		},
		all: []string{
			PermViewAssets, PermCreateAssets, PermEditAssets, PermEditAssetLocation, PermEditAssetStatus,
			PermDeleteAssets, PermManageUsers, PermResetUserPassword, PermViewReports,
		},
		roleCalls: map[string]int{},
	}
}

func (m *mockPermissionRepo) ListForRole(ctx context.Context, role string) ([]string, error) {
	m.roleCalls[role]++
	if m.err != nil {
		return nil, m.err
	}
	return m.byRole[role], nil
}

func (m *mockPermissionRepo) ListAll(ctx context.Context) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.all, nil
}

func TestHasRole(t *testing.T) {
	authz := NewAuthorizer(newMockPermissionRepo(), NewPermissionCache(0))

	if authz.HasRole(nil, RoleAdmin) {
		t.Error("nil user must hold no role")
	}
	if !authz.HasRole(&User{Role: RoleManager}, RoleAdmin, RoleManager) {
		t.Error("manager should match role set")
	}
	if authz.HasRole(&User{Role: RoleViewer}, RoleAdmin, RoleManager) {
		t.Error("viewer should not match role set")
	}
}

func TestHasPermission_AdminBypassesMapping(t *testing.T) {
	repo := newMockPermissionRepo()
	authz := NewAuthorizer(repo, NewPermissionCache(0))

	ok, err := authz.HasPermission(context.Background(), &User{Role: RoleAdmin}, "permission_added_tomorrow")
	if err != nil || !ok {
		t.Errorf("expected admin to be authorized, got (%v, %v)", ok, err)
	}
	if repo.roleCalls[RoleAdmin] != 0 {
		t.Error("admin check must not consult the role mapping")
	}
}

func TestHasPermission_RoleMapping(t *testing.T) {
	authz := NewAuthorizer(newMockPermissionRepo(), NewPermissionCache(0))
	ctx := context.Background()
	manager := &User{Role: RoleManager}
	viewer := &User{Role: RoleViewer}

	tests := []struct {
		user *User
		perm string
		want bool
	}{
		{manager, PermEditAssetLocation, true},
		{manager, PermEditAssets, false},
		{manager, PermResetUserPassword, false},
		{viewer, PermViewAssets, true},
		{viewer, PermEditAssetStatus, false},
		{nil, PermViewAssets, false},
	}
	for _, tt := range tests {
		got, err := authz.HasPermission(ctx, tt.user, tt.perm)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != tt.want {
			t.Errorf("HasPermission(%v, %s) = %v, want %v", tt.user, tt.perm, got, tt.want)
		}
	}
}

func TestHasAnyPermission(t *testing.T) {
	authz := NewAuthorizer(newMockPermissionRepo(), NewPermissionCache(0))
	ctx := context.Background()

	ok, _ := authz.HasAnyPermission(ctx, &User{Role: RoleManager}, PermEditAssets, PermEditAssetLocation, PermEditAssetStatus)
	if !ok {
		t.Error("manager holds a partial edit permission")
	}
	ok, _ = authz.HasAnyPermission(ctx, &User{Role: RoleViewer}, PermEditAssets, PermEditAssetLocation, PermEditAssetStatus)
	if ok {
		t.Error("viewer holds no edit permission")
	}
}

func TestHasPermission_CachedPerRole(t *testing.T) {
	repo := newMockPermissionRepo()
	authz := NewAuthorizer(repo, NewPermissionCache(0))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = authz.HasPermission(ctx, &User{Role: RoleManager}, PermViewAssets)
		_, _ = authz.HasPermission(ctx, &User{Role: RoleViewer}, PermViewAssets)
	}
	if repo.roleCalls[RoleManager] != 1 || repo.roleCalls[RoleViewer] != 1 {
		t.Errorf("expected one load per role, got %v", repo.roleCalls)
	}
}

func TestPermissionCache_TTL(t *testing.T) {
	cache := NewPermissionCache(time.Minute).(*memoryPermissionCache)
	now := testNow
	cache.now = func() time.Time { return now }

	cache.Set(RoleViewer, map[string]bool{PermViewAssets: true})
	if _, ok := cache.Get(RoleViewer); !ok {
		t.Fatal("expected fresh entry")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := cache.Get(RoleViewer); ok {
		t.Error("expected entry to expire after the TTL")
	}
}

func TestHasPermission_StoreError(t *testing.T) {
	repo := newMockPermissionRepo()
	repo.err = errors.New("db down")
	authz := NewAuthorizer(repo, NewPermissionCache(0))

	if _, err := authz.HasPermission(context.Background(), &User{Role: RoleViewer}, PermViewAssets); err == nil {
		t.Error("expected error")
	}

	// Failures are not cached.
	repo.err = nil
	ok, err := authz.HasPermission(context.Background(), &User{Role: RoleViewer}, PermViewAssets)
	if err != nil || !ok {
		t.Errorf("expected recovery after store error, got (%v, %v)", ok, err)
	}
}

func TestPermissions(t *testing.T) {
	authz := NewAuthorizer(newMockPermissionRepo(), NewPermissionCache(0))
	ctx := context.Background()

	admin, err := authz.Permissions(ctx, &User{Role: RoleAdmin})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(admin) != 9 || !admin[PermManageUsers] {
		t.Errorf("expected full catalog for admin, got %v", admin)
	}

	viewer, _ := authz.Permissions(ctx, &User{Role: RoleViewer})
	if len(viewer) != 2 || viewer[PermEditAssets] {
		t.Errorf("unexpected viewer permissions %v", viewer)
	}

	anon, _ := authz.Permissions(ctx, nil)
	if len(anon) != 0 {
		t.Errorf("expected empty set for anonymous, got %v", anon)
	}
}
