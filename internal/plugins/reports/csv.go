package reports

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
)

// Export file names offered to the browser.
const (
	locationCSVName = "assets_by_location.csv"
	lowStockCSVName = "low_stock_report.csv"
)

// WriteLocationCSV writes the assets-by-location report as CSV.
func WriteLocationCSV(w io.Writer, r *LocationReport) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"Asset Name", "Serial Number", "Category", "Status", "Quantity"}); err != nil {
		return err
	}
	for _, a := range r.Assets {
		record := []string{cell(a.Name), cell(a.SerialNumber), cell(a.CategoryName), a.Status, strconv.Itoa(a.Quantity)}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteLowStockCSV writes the low stock report as CSV.
func WriteLowStockCSV(w io.Writer, list []LowStockCategory) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"Category", "Current Quantity", "Threshold", "Assets Count"}); err != nil {
		return err
	}
	for _, c := range list {
		record := []string{cell(c.Name), strconv.Itoa(c.TotalQuantity), strconv.Itoa(c.Threshold), strconv.Itoa(c.AssetCount)}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// cell quotes user-entered text that a spreadsheet would run as a formula.
func cell(s string) string {
	if s != "" && strings.ContainsRune("=+-@\t\r", rune(s[0])) {
		return "'" + s
	}
	return s
}
