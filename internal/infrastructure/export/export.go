// Package export renders billing reports as plain text, CSV or XLSX.
package export

import (
	"fmt"
	"slices"
	"strings"

	"github.com/arungoks/tankerapp/internal/application/billing"
	"github.com/arungoks/tankerapp/internal/domain/shared"
	"github.com/arungoks/tankerapp/internal/domain/tanker"
	"github.com/shopspring/decimal"
)

// Supported formats
const (
	FormatText = "text"
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

var hundred = decimal.NewFromInt(100)

// ForFormat returns the renderer for format; an empty format is text
func ForFormat(format string) (billing.ReportRenderer, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatText, "txt":
		return TextRenderer{}, nil
	case FormatCSV:
		return CSVRenderer{}, nil
	case FormatXLSX, "excel":
		return XLSXRenderer{}, nil
	default:
		return nil, shared.NewValidationError("unsupported report format %q (want text, csv or xlsx)", format)
	}
}

// Row is one apartment line of a rendered report
type Row struct {
	Apartment        string
	DefaultOccupancy int
	BillableTankers  int
	Share            decimal.Decimal // percent of all billable tankers, 2 places
}

// Rows flattens report into rows in bill order.
//
// Share is the apartment's billable tankers over the sum of billable tankers
// of every apartment, so shares add up to 100 (up to rounding) whenever any
// tanker was billed. It is zero when nothing was billed.
func Rows(report billing.Report) []Row {
	sum := 0
	for _, b := range report.Bills {
		sum += b.BillableTankers
	}

	rows := make([]Row, 0, len(report.Bills))
	for _, b := range report.Bills {
		share := decimal.Zero
		if sum > 0 {
			share = decimal.NewFromInt(int64(b.BillableTankers)).
				Mul(hundred).
				Div(decimal.NewFromInt(int64(sum))).
				Round(2)
		}
		rows = append(rows, Row{
			Apartment:        b.Apartment.Number,
			DefaultOccupancy: b.Apartment.DefaultOccupancy,
			BillableTankers:  b.BillableTankers,
			Share:            share,
		})
	}
	return rows
}

// EventDates returns every date that appears in a bill breakdown, in order
func EventDates(report billing.Report) []tanker.Date {
	seen := make(map[tanker.Date]struct{})
	var dates []tanker.Date
	for _, b := range report.Bills {
		for d := range b.DailyOccupancyBreakdown {
			if _, ok := seen[d]; !ok {
				seen[d] = struct{}{}
				dates = append(dates, d)
			}
		}
	}
	slices.SortFunc(dates, tanker.Date.Compare)
	return dates
}

// DescribeRange renders a (From, To] range for report headers
func DescribeRange(r tanker.DateRange) string {
	switch {
	case r.From == nil && r.To == nil:
		return "all dates"
	case r.From == nil:
		return fmt.Sprintf("up to %s", r.To)
	case r.To == nil:
		return fmt.Sprintf("after %s", r.From)
	default:
		return fmt.Sprintf("after %s up to %s", r.From, r.To)
	}
}
