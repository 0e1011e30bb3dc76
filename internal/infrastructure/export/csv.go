package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/arungoks/tankerapp/internal/application/billing"
)

// CSV columns before the per-date columns
var csvHeader = []string{"apartment", "default_occupancy", "billable_tankers", "total_tankers", "share_percent"}

// CSVRenderer renders a report as CSV: one row per apartment, then one
// column per delivery date holding the tankers billed on that date
type CSVRenderer struct{}

// ContentType implements billing.ReportRenderer
func (CSVRenderer) ContentType() string { return "text/csv; charset=utf-8" }

// Extension implements billing.ReportRenderer
func (CSVRenderer) Extension() string { return ".csv" }

// Render implements billing.ReportRenderer
func (CSVRenderer) Render(w io.Writer, report billing.Report) error {
	dates := EventDates(report)
	cw := csv.NewWriter(w)

	header := append([]string(nil), csvHeader...)
	for _, d := range dates {
		header = append(header, d.String())
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	total := strconv.Itoa(report.TotalTankers)
	for i, row := range Rows(report) {
		record := []string{
			row.Apartment,
			strconv.Itoa(row.DefaultOccupancy),
			strconv.Itoa(row.BillableTankers),
			total,
			row.Share.StringFixed(2),
		}
		daily := report.Bills[i].DailyBreakdown
		for _, d := range dates {
			record = append(record, strconv.Itoa(daily[d]))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
