package export

import (
	"io"

	"github.com/arungoks/tankerapp/internal/application/billing"
	"github.com/xuri/excelize/v2"
)

const (
	billsSheet = "Bills"
	dailySheet = "Daily occupancy"
)

// XLSXRenderer renders a report as a workbook with a bills sheet and a
// per-date occupancy sheet
type XLSXRenderer struct{}

// ContentType implements billing.ReportRenderer
func (XLSXRenderer) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Extension implements billing.ReportRenderer
func (XLSXRenderer) Extension() string { return ".xlsx" }

// Render implements billing.ReportRenderer
func (XLSXRenderer) Render(w io.Writer, report billing.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", billsSheet); err != nil {
		return err
	}
	if err := writeBills(f, report); err != nil {
		return err
	}
	if _, err := f.NewSheet(dailySheet); err != nil {
		return err
	}
	if err := writeDaily(f, report); err != nil {
		return err
	}
	return f.Write(w)
}

func writeBills(f *excelize.File, report billing.Report) error {
	if err := f.SetSheetRow(billsSheet, "A1", &[]any{"Period", DescribeRange(report.Range)}); err != nil {
		return err
	}
	if err := f.SetSheetRow(billsSheet, "A2", &[]any{"Total tankers", report.TotalTankers}); err != nil {
		return err
	}
	header := []any{"Apartment", "Default occupancy", "Billable tankers", "Share %"}
	if err := f.SetSheetRow(billsSheet, "A4", &header); err != nil {
		return err
	}

	for i, row := range Rows(report) {
		cell, err := excelize.CoordinatesToCellName(1, i+5)
		if err != nil {
			return err
		}
		values := []any{row.Apartment, row.DefaultOccupancy, row.BillableTankers, row.Share.InexactFloat64()}
		if err := f.SetSheetRow(billsSheet, cell, &values); err != nil {
			return err
		}
	}
	return nil
}

// writeDaily lays out apartments down and delivery dates across; each cell
// is the apartment's resolved occupancy on that date
func writeDaily(f *excelize.File, report billing.Report) error {
	dates := EventDates(report)
	header := make([]any, 0, len(dates)+1)
	header = append(header, "Apartment")
	for _, d := range dates {
		header = append(header, d.String())
	}
	if err := f.SetSheetRow(dailySheet, "A1", &header); err != nil {
		return err
	}

	for i, bill := range report.Bills {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := make([]any, 0, len(dates)+1)
		values = append(values, bill.Apartment.Number)
		for _, d := range dates {
			values = append(values, bill.DailyOccupancyBreakdown[d])
		}
		if err := f.SetSheetRow(dailySheet, cell, &values); err != nil {
			return err
		}
	}
	return nil
}
