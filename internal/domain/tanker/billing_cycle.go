package tanker

import (
	"slices"
	"time"

	"github.com/arungoks/tankerapp/internal/domain/shared"
)

// BillingCycle is an archived, immutable billing period (StartDate, EndDate].
// Cycles are contiguous: each cycle starts on the previous cycle's end date.
type BillingCycle struct {
	shared.BaseEntity
	StartDate            Date // exclusive
	EndDate              Date // inclusive
	TotalTankersSnapshot int
}

// NewBillingCycle creates a cycle record for (start, end]
func NewBillingCycle(start, end Date, totalTankers int) (*BillingCycle, error) {
	if start.IsZero() || end.IsZero() {
		return nil, shared.NewValidationError("billing cycle needs both start and end dates")
	}
	if !end.After(start) {
		return nil, shared.NewDomainError(shared.CodeInvalidState,
			"billing cycle end "+end.String()+" must be after start "+start.String())
	}
	if totalTankers < 0 {
		return nil, shared.NewValidationError("total tankers cannot be negative")
	}
	return &BillingCycle{
		BaseEntity:           shared.NewBaseEntity(),
		StartDate:            start,
		EndDate:              end,
		TotalTankersSnapshot: totalTankers,
	}, nil
}

// Range returns the cycle's (StartDate, EndDate] range
func (c BillingCycle) Range() DateRange {
	return Between(c.StartDate, c.EndDate)
}

// ClosedAt returns when the cycle was archived
func (c BillingCycle) ClosedAt() time.Time {
	return c.CreatedAt
}

// SortCycles orders cycles oldest first
func SortCycles(cycles []BillingCycle) {
	slices.SortFunc(cycles, func(a, b BillingCycle) int { return a.EndDate.Compare(b.EndDate) })
}

// CycleBoundary is the start (exclusive) of the open billing cycle, the
// "last report date". It only moves forward, and only when a cycle closes.
type CycleBoundary struct {
	StartDate Date
}

// DefaultCycleBoundary is used when no cycle has ever been closed: the last
// day of the month before today, so the first cycle covers today's whole month.
func DefaultCycleBoundary(today Date) CycleBoundary {
	return CycleBoundary{StartDate: today.FirstOfMonth().AddDays(-1)}
}

// OpenRange returns the open cycle's range (StartDate, ∞)
func (b CycleBoundary) OpenRange() DateRange {
	return Since(b.StartDate)
}

// RangeUntil returns (StartDate, today]
func (b CycleBoundary) RangeUntil(today Date) DateRange {
	return Between(b.StartDate, today)
}
