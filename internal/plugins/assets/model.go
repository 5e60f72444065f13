// Package assets lists, creates, shows, edits and deletes inventory records.
// The edit screen is where the field-level permission split lives:
// edit_assets unlocks every field, edit_asset_location and edit_asset_status
// unlock one field each.
package assets

import "time"

// Asset statuses, matching the assets.status ENUM.
const (
	StatusInUse     = "In Use"
	StatusInRepair  = "In Repair"
	StatusInStock   = "In Stock"
	StatusAvailable = "Available"
)

// Statuses lists every valid status in display order.
var Statuses = []string{StatusInUse, StatusInRepair, StatusInStock, StatusAvailable}

// ValidStatus reports whether s is one of Statuses.
func ValidStatus(s string) bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

// dateLayout is the wire format of purchase dates in forms.
const dateLayout = "2006-01-02"

// maxNameLength matches the assets.name column.
const maxNameLength = 150

// maxSerialLength matches the assets.serial_number column.
const maxSerialLength = 100

// Asset is one inventory record with its category and location names joined
// in for display.
type Asset struct {
	ID           int64
	Name         string
	SerialNumber string
	CategoryID   int64
	CategoryName string
	LocationID   int64
	LocationName string
	PurchaseDate time.Time
	Status       string
	Quantity     int
	CreatedBy    *int64
	CreatedAt    time.Time
	UpdatedBy    *int64
	UpdatedAt    time.Time

	// Names of the users behind CreatedBy and UpdatedBy, empty when the
	// user is unknown or has been deleted.
	CreatedByName string
	UpdatedByName string
}

// StatusTotal is the number of records and the quantity held in a status.
type StatusTotal struct {
	Count    int
	Quantity int
}

// Option is a category or location offered in a select box.
type Option struct {
	ID   int64
	Name string
}

// ListFilter narrows the asset list. Zero values match everything.
type ListFilter struct {
	Search     string `query:"search"`
	CategoryID int64  `query:"category_id"`
	LocationID int64  `query:"location_id"`
	Status     string `query:"status"`
}

// EditForm holds the data submitted by the create and edit forms. On edit,
// fields the editor may not change are ignored even when present.
type EditForm struct {
	Name         string `form:"name"`
	SerialNumber string `form:"serial_number"`
	CategoryID   int64  `form:"category_id"`
	LocationID   int64  `form:"location_id"`
	PurchaseDate string `form:"purchase_date"`
	Status       string `form:"status"`
	Quantity     int    `form:"quantity"`
}

// FormFromAsset fills an edit form with a's current values.
func FormFromAsset(a *Asset) EditForm {
	return EditForm{
		Name:         a.Name,
		SerialNumber: a.SerialNumber,
		CategoryID:   a.CategoryID,
		LocationID:   a.LocationID,
		PurchaseDate: a.PurchaseDate.Format(dateLayout),
		Status:       a.Status,
		Quantity:     a.Quantity,
	}
}

// NewForm returns the create form defaults: purchased today, in stock, one
// unit.
func NewForm(now time.Time) EditForm {
	return EditForm{
		PurchaseDate: now.Format(dateLayout),
		Status:       StatusInStock,
		Quantity:     1,
	}
}

// EditScope records which asset fields the current user may write.
type EditScope struct {
	All      bool
	Location bool
	Status   bool
}

// CanEdit reports whether any field is writable.
func (s EditScope) CanEdit() bool {
	return s.All || s.Location || s.Status
}

// CanEditLocation reports whether the location field is writable.
func (s EditScope) CanEditLocation() bool {
	return s.All || s.Location
}

// CanEditStatus reports whether the status field is writable.
func (s EditScope) CanEditStatus() bool {
	return s.All || s.Status
}

// fullScope is the scope of a create: every field is written.
var fullScope = EditScope{All: true}
