package tanker

import (
	"slices"

	"github.com/arungoks/tankerapp/internal/domain/shared"
)

// TankerEvent records the tankers delivered on one date. There is at most one
// event per date and a zero count is never stored.
type TankerEvent struct {
	Date  Date
	Count int
}

// NewTankerEvent creates a validated tanker event
func NewTankerEvent(date Date, count int) (*TankerEvent, error) {
	if date.IsZero() {
		return nil, shared.NewValidationError("tanker event date is required")
	}
	if count < 0 {
		return nil, shared.NewValidationError("tanker count cannot be negative")
	}
	return &TankerEvent{Date: date, Count: count}, nil
}

// SortTankerEvents sorts events by date
func SortTankerEvents(events []TankerEvent) {
	slices.SortFunc(events, func(a, b TankerEvent) int { return a.Date.Compare(b.Date) })
}

// CountOn returns the count recorded for date, or 0 when no event exists
func CountOn(events []TankerEvent, date Date) int {
	for _, e := range events {
		if e.Date == date {
			return e.Count
		}
	}
	return 0
}

// TotalTankers sums counts of the positive events inside r
func TotalTankers(events []TankerEvent, r DateRange) int {
	total := 0
	for _, e := range events {
		if e.Count > 0 && r.Contains(e.Date) {
			total += e.Count
		}
	}
	return total
}
