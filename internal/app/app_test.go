package app

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/glassyams/ams/internal/apperror"
	"github.com/glassyams/ams/internal/config"
)

func newTestApp() *App {
	return &App{Config: &config.Config{AppName: "Glassy AMS"}, Echo: echo.New()}
}

func handle(t *testing.T, a *App, path string, err error) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	c := a.Echo.NewContext(httptest.NewRequest(http.MethodPost, path, nil), rec)
	a.errorHandler(err, c)
	return rec
}

func TestErrorHandler_AppErrorPage(t *testing.T) {
	rec := handle(t, newTestApp(), "/assets/9/edit", apperror.NewNotFound("Asset not found."))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Asset not found.") {
		t.Errorf("expected message in page, got:\n%s", rec.Body.String())
	}
}

func TestErrorHandler_CSRF(t *testing.T) {
	rec := handle(t, newTestApp(), "/logout", apperror.NewCSRF())

	if rec.Code != apperror.StatusCSRFFailure {
		t.Fatalf("expected %d, got %d", apperror.StatusCSRFFailure, rec.Code)
	}
}

func TestErrorHandler_InternalHidesCause(t *testing.T) {
	rec := handle(t, newTestApp(), "/admin/users", apperror.NewInternal(errors.New("dial tcp 10.0.0.5:3306")))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "10.0.0.5") {
		t.Error("internal cause leaked into the response")
	}
}

func TestErrorHandler_UnauthorizedRedirects(t *testing.T) {
	rec := handle(t, newTestApp(), "/dashboard", apperror.NewUnauthorized("authentication required"))

	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Fatalf("expected redirect to /login, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestErrorHandler_APIGetsJSON(t *testing.T) {
	rec := handle(t, newTestApp(), "/api/v1/assets", apperror.NewForbidden("You do not have permission to perform that action."))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("expected JSON, got %q", ct)
	}
}

func TestErrorHandler_EscapedValidation(t *testing.T) {
	rec := handle(t, newTestApp(), "/assets/1/edit", apperror.NewValidationErrors("Invalid status selected."))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Invalid status selected.") {
		t.Errorf("expected message in page, got:\n%s", rec.Body.String())
	}
}

func TestActiveSection(t *testing.T) {
	tests := map[string]string{
		"/dashboard":          "/dashboard",
		"/assets":             "/assets",
		"/assets/4/edit":      "/assets",
		"/reports":            "/reports",
		"/admin/categories":   "/admin/categories",
		"/admin/locations/3":  "/admin/locations",
		"/admin/users/2/edit": "/admin/users",
		"/account/password":   "/account",
		"/login":              "/login",
	}
	for path, want := range tests {
		if got := activeSection(path); got != want {
			t.Errorf("activeSection(%q) = %q, want %q", path, got, want)
		}
	}
}
