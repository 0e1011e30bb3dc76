package export

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/arungoks/tankerapp/internal/application/billing"
)

// TextRenderer renders a report as an aligned plain-text table
type TextRenderer struct{}

// ContentType implements billing.ReportRenderer
func (TextRenderer) ContentType() string { return "text/plain; charset=utf-8" }

// Extension implements billing.ReportRenderer
func (TextRenderer) Extension() string { return ".txt" }

// Render implements billing.ReportRenderer
func (TextRenderer) Render(w io.Writer, report billing.Report) error {
	if _, err := fmt.Fprintf(w, "Tanker billing report\nPeriod: %s\nTotal tankers: %d\nGenerated: %s\n\n",
		DescribeRange(report.Range), report.TotalTankers, report.GeneratedAt.Format(time.RFC3339)); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Apartment\tOccupants\tBillable\tShare %\t")
	for _, row := range Rows(report) {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t\n", row.Apartment, row.DefaultOccupancy, row.BillableTankers, row.Share.StringFixed(2))
	}
	return tw.Flush()
}
