// Package reports produces the read-only inventory reports: the assets kept
// at one location and the categories whose stock fell below their
// threshold. Both render as pages and export as CSV.
package reports

// Option is a location offered by the report filter.
type Option struct {
	ID   int64
	Name string
}

// LocationAsset is one line of the assets-by-location report.
type LocationAsset struct {
	ID           int64
	Name         string
	SerialNumber string
	CategoryName string
	Status       string
	Quantity     int
}

// LowStockCategory is a category whose usable quantity is under its
// threshold. Only In Stock and Available assets count as usable.
type LowStockCategory struct {
	ID            int64
	Name          string
	Threshold     int
	TotalQuantity int
	AssetCount    int
}

// LocationReport is the assets-by-location report for one location.
type LocationReport struct {
	Location Option
	Assets   []LocationAsset
}
