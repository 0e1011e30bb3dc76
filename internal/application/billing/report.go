package billing

import (
	"context"
	"io"
	"time"

	"github.com/arungoks/tankerapp/internal/domain/tanker"
)

// Report is a rendered-ready bill list for one date range
type Report struct {
	Range        tanker.DateRange
	TotalTankers int
	Bills        []tanker.ApartmentBill
	GeneratedAt  time.Time
}

// NewReport computes the bills of snapshot for r
func NewReport(snapshot tanker.AggregateSnapshot, r tanker.DateRange, now time.Time) Report {
	return Report{
		Range:        r,
		TotalTankers: tanker.TotalTankers(snapshot.Events, r),
		Bills:        tanker.ComputeBills(snapshot, r),
		GeneratedAt:  now,
	}
}

// ReportRenderer writes a Report in one output format
type ReportRenderer interface {
	Render(w io.Writer, report Report) error
	ContentType() string
	Extension() string
}

// ArchiveStore keeps rendered reports of closed cycles
type ArchiveStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}
