package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/glassyams/ams/internal/apperror"
	"github.com/glassyams/ams/internal/session"
)

const testCookieName = "ams_session"

// authHarness runs handlers behind the real session middleware (backed by
// miniredis) and the identity resolver, carrying the cookie between calls
// like a browser would.
type authHarness struct {
	t       *testing.T
	e       *echo.Echo
	mr      *miniredis.Miniredis
	mgr     *session.Manager
	repo    *mockUserRepo
	svc     *authService
	h       *Handler
	authz   *Authorizer
	perms   *mockPermissionRepo
	cookie  *http.Cookie
	lookups int
}

func newAuthHarness(t *testing.T, users ...*User) *authHarness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	h := &authHarness{
		t:     t,
		e:     echo.New(),
		mr:    mr,
		mgr:   session.NewManager(session.NewRedisStore(client), testCookieName, time.Hour),
		perms: newMockPermissionRepo(),
	}

	byID := map[int64]*User{}
	byEmail := map[string]*User{}
	for _, u := range users {
		byID[u.ID] = u
		byEmail[u.Email] = u
	}
	h.repo = &mockUserRepo{
		findByIDFn: func(ctx context.Context, id int64) (*User, error) {
			h.lookups++
			if u, ok := byID[id]; ok {
				cp := *u
				return &cp, nil
			}
			return nil, apperror.NewNotFound("user not found")
		},
		findByEmailFn: func(ctx context.Context, email string) (*User, error) {
			if u, ok := byEmail[email]; ok {
				cp := *u
				return &cp, nil
			}
			return nil, apperror.NewNotFound("user not found")
		},
		updateCredentialsFn: func(ctx context.Context, userID int64, hash string, historyLimit int, hooks ...TxHook) error {
			byID[userID].PasswordHash = hash
			return nil
		},
	}
	h.svc = newTestAuthService(h.repo, nil, ServiceOptions{})
	h.h = NewHandler(h.svc, h.mgr, DefaultPasswordPolicy(), "Glassy AMS")
	h.authz = NewAuthorizer(h.perms, NewPermissionCache(0))
	return h
}

// do runs handler behind the session and identity middleware plus mws.
func (h *authHarness) do(method, target string, form url.Values, handler echo.HandlerFunc, mws ...echo.MiddlewareFunc) *httptest.ResponseRecorder {
	h.t.Helper()
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	}
	if h.cookie != nil {
		req.AddCookie(h.cookie)
	}
	rec := httptest.NewRecorder()
	c := h.e.NewContext(req, rec)

	for i := len(mws) - 1; i >= 0; i-- {
		handler = mws[i](handler)
	}
	resolver := NewIdentityResolver(h.repo, h.svc.lockout)
	if err := h.mgr.Middleware()(resolver.Middleware()(handler))(c); err != nil {
		_ = c.NoContent(apperror.SafeCode(err))
	}

	for _, ck := range rec.Result().Cookies() {
		if ck.Name != testCookieName {
			continue
		}
		if ck.MaxAge < 0 {
			h.cookie = nil
		} else {
			h.cookie = ck
		}
	}
	return rec
}

// login signs u in through the real handler.
func (h *authHarness) login(email, password string) *httptest.ResponseRecorder {
	h.t.Helper()
	return h.do(http.MethodPost, "/login", url.Values{"email": {email}, "password": {password}}, h.h.Login)
}

func testUser(t *testing.T, id int64, role string) *User {
	return &User{
		ID:           id,
		FullName:     "User " + role,
		Email:        role + "@example.com",
		PasswordHash: mustHash(t, "Correct1!"),
		Role:         role,
		IsActive:     true,
	}
}

func TestLoginHandler_RotatesSessionID(t *testing.T) {
	h := newAuthHarness(t, testUser(t, 1, RoleViewer))

	// Rendering the form issues a CSRF token, which persists the anonymous
	// session.
	h.do(http.MethodGet, "/login", nil, h.h.LoginForm)
	if h.cookie == nil {
		t.Fatal("expected anonymous session cookie after rendering the form")
	}
	before := h.cookie.Value

	rec := h.login("viewer@example.com", "Correct1!")
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/dashboard" {
		t.Fatalf("expected redirect to dashboard, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
	if h.cookie == nil || h.cookie.Value == before {
		t.Fatal("expected a new session identifier after login")
	}
	if h.mr.Exists("session:" + before) {
		t.Error("pre-login session must be removed from the store")
	}
	if !h.mr.Exists("session:" + h.cookie.Value) {
		t.Error("authenticated session missing from the store")
	}
}

func TestLoginHandler_FailuresLookIdentical(t *testing.T) {
	inactive := testUser(t, 2, RoleManager)
	inactive.IsActive = false
	until := time.Now().Add(time.Hour)
	locked := testUser(t, 3, RoleAdmin)
	locked.LockedUntil = &until
	h := newAuthHarness(t, testUser(t, 1, RoleViewer), inactive, locked)

	attempts := []struct{ email, password string }{
		{"ghost@example.com", "Correct1!"},
		{"viewer@example.com", "Wrong1!x"},
		{"manager@example.com", "Correct1!"},
		{"admin@example.com", "Correct1!"},
	}
	for _, a := range attempts {
		rec := h.login(a.email, a.password)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected form re-render, got %d", a.email, rec.Code)
		}
		body := rec.Body.String()
		if !strings.Contains(body, InvalidCredentialsMessage) {
			t.Errorf("%s: expected generic message", a.email)
		}
		if strings.Contains(body, "locked") || strings.Contains(body, "inactive") {
			t.Errorf("%s: response reveals the failure reason", a.email)
		}
		if strings.Contains(body, a.password) {
			t.Errorf("%s: password echoed back", a.email)
		}
	}
}

func TestLoginForm_RedirectsSignedInUser(t *testing.T) {
	h := newAuthHarness(t, testUser(t, 1, RoleViewer))
	h.login("viewer@example.com", "Correct1!")

	rec := h.do(http.MethodGet, "/login", nil, h.h.LoginForm)
	if rec.Code != http.StatusSeeOther {
		t.Errorf("expected redirect for signed-in user, got %d", rec.Code)
	}
}

func TestLogoutHandler_InvalidatesSession(t *testing.T) {
	h := newAuthHarness(t, testUser(t, 1, RoleViewer))
	h.login("viewer@example.com", "Correct1!")
	authed := h.cookie.Value

	rec := h.do(http.MethodPost, "/logout", url.Values{}, h.h.Logout)
	if rec.Header().Get("Location") != "/login" {
		t.Errorf("expected redirect to /login, got %q", rec.Header().Get("Location"))
	}
	if h.mr.Exists("session:" + authed) {
		t.Error("session must be deleted on logout")
	}

	// Replaying the old cookie no longer authenticates.
	h.cookie = &http.Cookie{Name: testCookieName, Value: authed}
	rec = h.do(http.MethodGet, "/dashboard", nil, okHandler, RequireLogin())
	if rec.Header().Get("Location") != "/login" {
		t.Errorf("expected old session to be anonymous, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestChangePasswordHandler_ForcesReLogin(t *testing.T) {
	h := newAuthHarness(t, testUser(t, 1, RoleViewer))
	h.login("viewer@example.com", "Correct1!")
	authed := h.cookie.Value

	rec := h.do(http.MethodPost, "/account/password", url.Values{
		"current_password": {"Correct1!"},
		"new_password":     {"Brand-new1!"},
		"confirm_password": {"Brand-new1!"},
	}, h.h.ChangePassword, RequireLogin())

	if rec.Header().Get("Location") != "/login?changed=1" {
		t.Fatalf("expected redirect to /login?changed=1, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
	if h.mr.Exists("session:" + authed) {
		t.Error("acting session must be destroyed after a self-service change")
	}

	// The new password works; the old one does not.
	if rec := h.login("viewer@example.com", "Correct1!"); rec.Code != http.StatusOK {
		t.Errorf("old password should fail, got %d", rec.Code)
	}
	if rec := h.login("viewer@example.com", "Brand-new1!"); rec.Code != http.StatusSeeOther {
		t.Errorf("new password should succeed, got %d", rec.Code)
	}
}

func TestChangePasswordHandler_ValidationKeepsSession(t *testing.T) {
	h := newAuthHarness(t, testUser(t, 1, RoleViewer))
	h.login("viewer@example.com", "Correct1!")
	authed := h.cookie.Value

	rec := h.do(http.MethodPost, "/account/password", url.Values{
		"current_password": {"Correct1!"},
		"new_password":     {"weak"},
		"confirm_password": {"weak"},
	}, h.h.ChangePassword, RequireLogin())

	if rec.Code != http.StatusOK {
		t.Fatalf("expected form re-render, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Password must be at least 8 characters.") {
		t.Error("expected strength violation in the page")
	}
	if !h.mr.Exists("session:" + authed) {
		t.Error("session must survive a rejected change")
	}
}
