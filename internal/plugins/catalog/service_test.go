package catalog

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/glassyams/ams/internal/apperror"
	"github.com/glassyams/ams/internal/plugins/auth"
)

// --- Mocks ---

// memRepo implements Repository in memory. Names are unique per table and
// rows with assets refuse deletion, as the schema does.
type memRepo struct {
	categories map[int64]*Category
	locations  map[int64]*Location
	nextID     int64
	err        error
}

func newMemRepo() *memRepo {
	return &memRepo{
		categories: map[int64]*Category{
			1: {ID: 1, Name: "Laptops", LowStockThreshold: 5, AssetCount: 2},
			2: {ID: 2, Name: "Cables", LowStockThreshold: 10},
		},
		locations: map[int64]*Location{
			1: {ID: 1, Name: "Warehouse", AssetCount: 4},
			2: {ID: 2, Name: "Office"},
		},
		nextID: 100,
	}
}

func (m *memRepo) ListCategories(_ context.Context) ([]Category, error) {
	if m.err != nil {
		return nil, m.err
	}
	var list []Category
	for _, c := range m.categories {
		list = append(list, *c)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

func (m *memRepo) FindCategory(_ context.Context, id int64) (*Category, error) {
	c, ok := m.categories[id]
	if !ok {
		return nil, apperror.NewNotFound("Category not found.")
	}
	cp := *c
	return &cp, nil
}

func (m *memRepo) CreateCategory(_ context.Context, c *Category) error {
	if m.categoryNamed(c.Name, 0) {
		return apperror.NewConflict("Category already exists.")
	}
	m.nextID++
	c.ID = m.nextID
	cp := *c
	m.categories[c.ID] = &cp
	return nil
}

func (m *memRepo) UpdateCategory(_ context.Context, c *Category) error {
	if m.categoryNamed(c.Name, c.ID) {
		return apperror.NewConflict("Category already exists.")
	}
	cp := *c
	m.categories[c.ID] = &cp
	return nil
}

func (m *memRepo) DeleteCategory(_ context.Context, id int64) error {
	c, ok := m.categories[id]
	if !ok {
		return apperror.NewNotFound("Category not found.")
	}
	if c.AssetCount > 0 {
		return apperror.NewConflict("Cannot delete category with associated assets.")
	}
	delete(m.categories, id)
	return nil
}

func (m *memRepo) categoryNamed(name string, except int64) bool {
	for id, c := range m.categories {
		if id != except && strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

func (m *memRepo) ListLocations(_ context.Context) ([]Location, error) {
	if m.err != nil {
		return nil, m.err
	}
	var list []Location
	for _, l := range m.locations {
		list = append(list, *l)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

func (m *memRepo) FindLocation(_ context.Context, id int64) (*Location, error) {
	l, ok := m.locations[id]
	if !ok {
		return nil, apperror.NewNotFound("Location not found.")
	}
	cp := *l
	return &cp, nil
}

func (m *memRepo) CreateLocation(_ context.Context, l *Location) error {
	if m.locationNamed(l.Name, 0) {
		return apperror.NewConflict("Location already exists.")
	}
	m.nextID++
	l.ID = m.nextID
	cp := *l
	m.locations[l.ID] = &cp
	return nil
}

func (m *memRepo) UpdateLocation(_ context.Context, l *Location) error {
	if m.locationNamed(l.Name, l.ID) {
		return apperror.NewConflict("Location already exists.")
	}
	cp := *l
	m.locations[l.ID] = &cp
	return nil
}

func (m *memRepo) DeleteLocation(_ context.Context, id int64) error {
	l, ok := m.locations[id]
	if !ok {
		return apperror.NewNotFound("Location not found.")
	}
	if l.AssetCount > 0 {
		return apperror.NewConflict("Cannot delete location with associated assets.")
	}
	delete(m.locations, id)
	return nil
}

func (m *memRepo) locationNamed(name string, except int64) bool {
	for id, l := range m.locations {
		if id != except && strings.EqualFold(l.Name, name) {
			return true
		}
	}
	return false
}

var actor = &auth.User{ID: 1, Role: auth.RoleAdmin, IsActive: true}

// --- Categories ---

func TestCreateCategory_Success(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)

	c, err := svc.CreateCategory(context.Background(), actor, CategoryForm{Name: "  <b>Monitors</b> ", LowStockThreshold: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Name != "Monitors" || c.LowStockThreshold != 3 {
		t.Errorf("unexpected category: %+v", c)
	}
	if _, ok := repo.categories[c.ID]; !ok {
		t.Error("expected category stored")
	}
}

func TestCreateCategory_Validation(t *testing.T) {
	tests := []struct {
		name string
		form CategoryForm
		want []string
	}{
		{"blank", CategoryForm{Name: "  "}, []string{"Category name is required.", "Low stock threshold must be at least 1."}},
		{"zero threshold", CategoryForm{Name: "Mice"}, []string{"Low stock threshold must be at least 1."}},
		{"duplicate", CategoryForm{Name: "Laptops", LowStockThreshold: 5}, []string{"Category already exists."}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewService(newMemRepo()).CreateCategory(context.Background(), actor, tt.form)
			if got := apperror.ValidationMessages(err); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestUpdateCategory(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)

	if _, err := svc.UpdateCategory(context.Background(), actor, 2, CategoryForm{Name: "Cabling", LowStockThreshold: 20}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c := repo.categories[2]; c.Name != "Cabling" || c.LowStockThreshold != 20 {
		t.Errorf("unexpected stored category: %+v", c)
	}

	// Keeping its own name is not a duplicate.
	if _, err := svc.UpdateCategory(context.Background(), actor, 1, CategoryForm{Name: "Laptops", LowStockThreshold: 8}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := svc.UpdateCategory(context.Background(), actor, 99, CategoryForm{Name: "X", LowStockThreshold: 1})
	if apperror.SafeCode(err) != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestDeleteCategory_InUse(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)

	err := svc.DeleteCategory(context.Background(), actor, 1)
	if apperror.SafeCode(err) != http.StatusConflict {
		t.Fatalf("expected 409, got %v", err)
	}
	if _, ok := repo.categories[1]; !ok {
		t.Error("category with assets must survive")
	}
	if err := svc.DeleteCategory(context.Background(), actor, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCategories_StoreErrorIsInternal(t *testing.T) {
	repo := newMemRepo()
	repo.err = errors.New("connection refused")

	_, err := NewService(repo).Categories(context.Background())
	if apperror.SafeCode(err) != http.StatusInternalServerError {
		t.Errorf("expected 500, got %v", err)
	}
}

// --- Locations ---

func TestCreateLocation(t *testing.T) {
	tests := []struct {
		name string
		form LocationForm
		want []string
	}{
		{"blank", LocationForm{Name: " "}, []string{"Location name is required."}},
		{"duplicate", LocationForm{Name: "office"}, []string{"Location already exists."}},
		{"ok", LocationForm{Name: "Lab"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewService(newMemRepo()).CreateLocation(context.Background(), actor, tt.form)
			if got := apperror.ValidationMessages(err); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestUpdateLocation_Renames(t *testing.T) {
	repo := newMemRepo()
	if _, err := NewService(repo).UpdateLocation(context.Background(), actor, 2, LocationForm{Name: "Head Office"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.locations[2].Name != "Head Office" {
		t.Errorf("unexpected name %q", repo.locations[2].Name)
	}
}

func TestDeleteLocation_InUse(t *testing.T) {
	err := NewService(newMemRepo()).DeleteLocation(context.Background(), actor, 1)
	if apperror.SafeCode(err) != http.StatusConflict {
		t.Errorf("expected 409, got %v", err)
	}
}
