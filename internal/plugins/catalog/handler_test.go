package catalog

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/glassyams/ams/internal/plugins/auth"
)

// serve runs handler for one request with actor signed in.
func serve(t *testing.T, h echo.HandlerFunc, method, target, id string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	body := strings.NewReader("")
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	}
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	if id != "" {
		c.SetParamNames("id")
		c.SetParamValues(id)
	}
	auth.SetUser(c, actor)

	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return rec
}

func assertRedirect(t *testing.T, rec *httptest.ResponseRecorder, want string) {
	t.Helper()
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != want {
		t.Fatalf("expected redirect to %s, got %d %q", want, rec.Code, rec.Header().Get("Location"))
	}
}

func TestCategoriesHandler_ListsWithDefaultThreshold(t *testing.T) {
	h := NewHandler(NewService(newMemRepo()))

	rec := serve(t, h.Categories, http.MethodGet, "/admin/categories", "", nil)
	body := rec.Body.String()
	for _, want := range []string{"Laptops", "Cables", `name="low_stock_threshold" value="5"`, `action="/admin/categories/2/delete"`} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %s in page:\n%s", want, body)
		}
	}
	// Laptops holds assets, so it offers no delete button.
	if strings.Contains(body, `action="/admin/categories/1/delete"`) {
		t.Error("category with assets must not offer delete")
	}
}

func TestCreateCategoryHandler(t *testing.T) {
	repo := newMemRepo()
	h := NewHandler(NewService(repo))

	rec := serve(t, h.CreateCategory, http.MethodPost, "/admin/categories", "",
		url.Values{"name": {"Docks"}, "low_stock_threshold": {"2"}})
	assertRedirect(t, rec, "/admin/categories")
	if len(repo.categories) != 3 {
		t.Errorf("expected category stored, have %d", len(repo.categories))
	}

	rec = serve(t, h.CreateCategory, http.MethodPost, "/admin/categories", "",
		url.Values{"name": {"Laptops"}, "low_stock_threshold": {"2"}})
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Category already exists.") {
		t.Errorf("expected duplicate shown on the form, got %d", rec.Code)
	}
}

func TestUpdateCategoryHandler_ValidationKeepsInput(t *testing.T) {
	h := NewHandler(NewService(newMemRepo()))

	rec := serve(t, h.UpdateCategory, http.MethodPost, "/admin/categories/2", "2",
		url.Values{"name": {"Cabling"}, "low_stock_threshold": {"0"}})
	body := rec.Body.String()
	if rec.Code != http.StatusOK || !strings.Contains(body, "Low stock threshold must be at least 1.") {
		t.Fatalf("expected form re-rendered, got %d", rec.Code)
	}
	if !strings.Contains(body, `value="Cabling"`) {
		t.Error("expected submitted name kept")
	}
}

func TestCatalogHandlers_RedirectBack(t *testing.T) {
	h := NewHandler(NewService(newMemRepo()))

	tests := []struct {
		name    string
		handler echo.HandlerFunc
		target  string
		id      string
		want    string
	}{
		{"delete empty category", h.DeleteCategory, "/admin/categories/2/delete", "2", "/admin/categories"},
		{"delete category in use", h.DeleteCategory, "/admin/categories/1/delete", "1", "/admin/categories"},
		{"edit missing category", h.EditCategory, "/admin/categories/99/edit", "99", "/admin/categories"},
		{"bad category id", h.EditCategory, "/admin/categories/x/edit", "x", "/admin/categories"},
		{"delete location in use", h.DeleteLocation, "/admin/locations/1/delete", "1", "/admin/locations"},
		{"delete missing location", h.DeleteLocation, "/admin/locations/99/delete", "99", "/admin/locations"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := http.MethodPost
			if strings.HasSuffix(tt.target, "/edit") {
				method = http.MethodGet
			}
			assertRedirect(t, serve(t, tt.handler, method, tt.target, tt.id, nil), tt.want)
		})
	}
}

func TestLocationHandlers(t *testing.T) {
	repo := newMemRepo()
	h := NewHandler(NewService(repo))

	rec := serve(t, h.EditLocation, http.MethodGet, "/admin/locations/2/edit", "2", nil)
	if !strings.Contains(rec.Body.String(), `value="Office"`) {
		t.Errorf("expected stored name in the form:\n%s", rec.Body.String())
	}

	rec = serve(t, h.UpdateLocation, http.MethodPost, "/admin/locations/2", "2", url.Values{"name": {"Lab"}})
	assertRedirect(t, rec, "/admin/locations")
	if repo.locations[2].Name != "Lab" {
		t.Errorf("expected rename stored, got %q", repo.locations[2].Name)
	}

	rec = serve(t, h.CreateLocation, http.MethodPost, "/admin/locations", "", url.Values{"name": {""}})
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Location name is required.") {
		t.Errorf("expected validation message, got %d", rec.Code)
	}
}
