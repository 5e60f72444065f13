// Package catalog manages the reference data assets point at: categories,
// each with a low-stock threshold, and locations.
package catalog

import "time"

// DefaultLowStockThreshold is offered when a category is created.
const DefaultLowStockThreshold = 5

// maxNameLength matches the name columns of both tables.
const maxNameLength = 100

// Category groups assets and sets the quantity below which the category is
// reported as low on stock.
type Category struct {
	ID                int64
	Name              string
	LowStockThreshold int
	CreatedAt         time.Time

	// Filled by listings: the assets in the category and their quantity.
	AssetCount    int
	TotalQuantity int
}

// Location is where assets are kept.
type Location struct {
	ID        int64
	Name      string
	CreatedAt time.Time

	AssetCount    int
	TotalQuantity int
}

// CategoryForm is submitted by the category create and edit forms.
type CategoryForm struct {
	Name              string `form:"name"`
	LowStockThreshold int    `form:"low_stock_threshold"`
}

// LocationForm is submitted by the location create and edit forms.
type LocationForm struct {
	Name string `form:"name"`
}
