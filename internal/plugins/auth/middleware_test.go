package auth

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/glassyams/ams/internal/apperror"
	"github.com/glassyams/ams/internal/session"
)

func okHandler(c echo.Context) error { return c.NoContent(http.StatusOK) }

// flashesIn reads the pending flashes stored for the harness cookie.
func flashesIn(h *authHarness) []session.Flash {
	h.t.Helper()
	var flashes []session.Flash
	h.do(http.MethodGet, "/peek", nil, func(c echo.Context) error {
		flashes = session.FromContext(c).Flashes()
		return c.NoContent(http.StatusOK)
	})
	return flashes
}

func TestRequireLogin_Anonymous(t *testing.T) {
	h := newAuthHarness(t)

	rec := h.do(http.MethodGet, "/dashboard", nil, okHandler, RequireLogin())
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Fatalf("expected redirect to /login, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
	flashes := flashesIn(h)
	if len(flashes) != 1 || flashes[0].Message != "Please sign in to continue." || flashes[0].Type != session.FlashWarning {
		t.Errorf("unexpected flashes %+v", flashes)
	}
}

func TestRequireLogin_APIGets401(t *testing.T) {
	h := newAuthHarness(t)

	rec := h.do(http.MethodGet, "/api/assets", nil, okHandler, RequireLogin())
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	h := newAuthHarness(t, testUser(t, 1, RoleViewer), testUser(t, 2, RoleAdmin))

	h.login("viewer@example.com", "Correct1!")
	flashesIn(h)
	rec := h.do(http.MethodGet, "/admin/users", nil, okHandler, RequireRole(h.authz, RoleAdmin))
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/dashboard" {
		t.Fatalf("expected redirect to dashboard, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
	flashes := flashesIn(h)
	if len(flashes) != 1 || flashes[0].Message != "You do not have permission to access that page." {
		t.Errorf("unexpected flashes %+v", flashes)
	}

	h.cookie = nil
	h.login("admin@example.com", "Correct1!")
	if rec := h.do(http.MethodGet, "/admin/users", nil, okHandler, RequireRole(h.authz, RoleAdmin)); rec.Code != http.StatusOK {
		t.Errorf("expected admin through, got %d", rec.Code)
	}
}

func TestRequireAnyPermission_FieldSplit(t *testing.T) {
	h := newAuthHarness(t, testUser(t, 1, RoleViewer), testUser(t, 2, RoleManager))
	gate := RequireAnyPermission(h.authz, PermEditAssets, PermEditAssetLocation, PermEditAssetStatus)

	h.login("manager@example.com", "Correct1!")
	if rec := h.do(http.MethodGet, "/assets/1/edit", nil, okHandler, gate); rec.Code != http.StatusOK {
		t.Errorf("manager holds a partial permission, got %d", rec.Code)
	}

	h.cookie = nil
	h.login("viewer@example.com", "Correct1!")
	flashesIn(h)
	rec := h.do(http.MethodGet, "/assets/1/edit", nil, okHandler, gate)
	if rec.Header().Get("Location") != "/dashboard" {
		t.Fatalf("expected viewer redirected, got %d", rec.Code)
	}
	flashes := flashesIn(h)
	if len(flashes) != 1 || flashes[0].Message != "You do not have permission to perform that action." {
		t.Errorf("unexpected flashes %+v", flashes)
	}
}

func TestRequirePermission_ManagerCannotReset(t *testing.T) {
	h := newAuthHarness(t, testUser(t, 2, RoleManager))
	h.login("manager@example.com", "Correct1!")

	rec := h.do(http.MethodGet, "/admin/users/1/password", nil, okHandler, RequirePermission(h.authz, PermResetUserPassword))
	if rec.Code != http.StatusSeeOther {
		t.Errorf("expected redirect, got %d", rec.Code)
	}
}

func TestRequirePasswordFresh(t *testing.T) {
	u := testUser(t, 1, RoleViewer)
	old := time.Now().Add(-365 * 24 * time.Hour)
	u.LastPasswordChange = &old
	h := newAuthHarness(t, u)
	h.svc.opts.MaxPasswordAge = 90 * 24 * time.Hour
	h.login("viewer@example.com", "Correct1!")

	rec := h.do(http.MethodGet, "/dashboard", nil, okHandler, RequireLogin(), RequirePasswordFresh(h.svc))
	if rec.Header().Get("Location") != "/account/password" {
		t.Errorf("expected redirect to change form, got %d %q", rec.Code, rec.Header().Get("Location"))
	}

	rec = h.do(http.MethodGet, "/account/password", nil, okHandler, RequireLogin(), RequirePasswordFresh(h.svc))
	if rec.Code != http.StatusOK {
		t.Errorf("change form must stay reachable, got %d", rec.Code)
	}
}

func TestIdentity_MemoizedPerRequest(t *testing.T) {
	h := newAuthHarness(t, testUser(t, 1, RoleViewer))
	h.login("viewer@example.com", "Correct1!")

	h.lookups = 0
	h.do(http.MethodGet, "/dashboard", nil, func(c echo.Context) error {
		for i := 0; i < 3; i++ {
			if u, _ := CurrentUser(c); u == nil {
				t.Error("expected signed-in user")
			}
		}
		return c.NoContent(http.StatusOK)
	}, RequireLogin())
	if h.lookups != 1 {
		t.Errorf("expected one lookup in the request, got %d", h.lookups)
	}

	// A new request looks the user up again.
	h.do(http.MethodGet, "/dashboard", nil, okHandler, RequireLogin())
	if h.lookups != 2 {
		t.Errorf("expected a fresh lookup per request, got %d", h.lookups)
	}
}

func TestIdentity_StaleSessionSignedOut(t *testing.T) {
	lockedUntil := testNow.Add(time.Hour)

	tests := []struct {
		name     string
		findByID func(u *User) func(ctx context.Context, id int64) (*User, error)
	}{
		{
			name: "deactivated after sign-in",
			findByID: func(u *User) func(ctx context.Context, id int64) (*User, error) {
				return func(ctx context.Context, id int64) (*User, error) {
					cp := *u
					cp.IsActive = false
					return &cp, nil
				}
			},
		},
		{
			name: "locked after sign-in",
			findByID: func(u *User) func(ctx context.Context, id int64) (*User, error) {
				return func(ctx context.Context, id int64) (*User, error) {
					cp := *u
					cp.FailedLoginAttempts = 5
					cp.LockedUntil = &lockedUntil
					return &cp, nil
				}
			},
		},
		{
			name: "deleted after sign-in",
			findByID: func(u *User) func(ctx context.Context, id int64) (*User, error) {
				return func(ctx context.Context, id int64) (*User, error) {
					return nil, apperror.NewNotFound("user not found")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := testUser(t, 1, RoleViewer)
			h := newAuthHarness(t, u)
			h.login("viewer@example.com", "Correct1!")
			h.repo.findByIDFn = tt.findByID(u)

			var (
				resolved *User
				sessUser int64 = -1
			)
			rec := h.do(http.MethodGet, "/dashboard", nil, okHandler, func(next echo.HandlerFunc) echo.HandlerFunc {
				return func(c echo.Context) error {
					resolved, _ = CurrentUser(c)
					err := RequireLogin()(next)(c)
					sessUser = session.FromContext(c).UserID()
					return err
				}
			})
			if resolved != nil {
				t.Errorf("expected no session user, got id %d", resolved.ID)
			}
			if rec.Header().Get("Location") != "/login" {
				t.Errorf("expected redirect to /login, got %d %q", rec.Code, rec.Header().Get("Location"))
			}
			if sessUser != 0 {
				t.Errorf("expected stale user id cleared from the session, got %d", sessUser)
			}

			// The cleared pointer persists: the next request is anonymous
			// without another user lookup.
			h.lookups = 0
			h.repo.findByIDFn = func(ctx context.Context, id int64) (*User, error) {
				h.lookups++
				cp := *u
				return &cp, nil
			}
			rec = h.do(http.MethodGet, "/dashboard", nil, okHandler, RequireLogin())
			if rec.Header().Get("Location") != "/login" || h.lookups != 0 {
				t.Errorf("expected anonymous follow-up with no lookup, got %d %q lookups=%d", rec.Code, rec.Header().Get("Location"), h.lookups)
			}
		})
	}
}
