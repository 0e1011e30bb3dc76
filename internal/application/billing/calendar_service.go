package billing

import (
	"context"
	"time"

	"github.com/arungoks/tankerapp/internal/domain/shared"
	"github.com/arungoks/tankerapp/internal/domain/tanker"
)

// BoundaryProvider returns the open cycle boundary
type BoundaryProvider interface {
	Boundary(ctx context.Context) (tanker.CycleBoundary, error)
}

// CalendarService answers the per-date and per-month questions of the
// calendar screens from the store's current state
type CalendarService struct {
	store      tanker.Store
	boundaries BoundaryProvider
}

// NewCalendarService creates a CalendarService
func NewCalendarService(store tanker.Store, boundaries BoundaryProvider) *CalendarService {
	return &CalendarService{store: store, boundaries: boundaries}
}

// Apartments returns the roster in numeric order
func (s *CalendarService) Apartments(ctx context.Context) ([]tanker.Apartment, error) {
	apartments, err := s.store.Apartments().All(ctx)
	if err != nil {
		return nil, err
	}
	tanker.SortApartments(apartments)
	return apartments, nil
}

// ApartmentStatuses resolves every apartment on date
func (s *CalendarService) ApartmentStatuses(ctx context.Context, date tanker.Date) ([]tanker.ApartmentStatus, error) {
	if date.IsZero() {
		return nil, shared.NewValidationError("date is required")
	}
	snap, err := tanker.LoadSnapshot(ctx, s.store)
	if err != nil {
		return nil, err
	}
	return tanker.ApartmentStatuses(snap, date), nil
}

// VacantDatesInMonth lists the dates of the month on which apt is vacant
func (s *CalendarService) VacantDatesInMonth(ctx context.Context, apt string, year int, month time.Month) ([]tanker.Date, error) {
	if err := checkMonth(year, month); err != nil {
		return nil, err
	}
	snap, err := tanker.LoadSnapshot(ctx, s.store)
	if err != nil {
		return nil, err
	}
	apartment, ok := snap.FindApartment(apt)
	if !ok {
		return nil, shared.NewDomainError(shared.CodeNotFound, "apartment "+apt+" not found")
	}
	return tanker.VacantDatesInMonth(snap, apartment, year, month), nil
}

// TankerDatesInMonth returns the month's delivery dates with their counts
func (s *CalendarService) TankerDatesInMonth(ctx context.Context, year int, month time.Month) ([]tanker.TankerEvent, error) {
	if err := checkMonth(year, month); err != nil {
		return nil, err
	}
	events, err := s.store.TankerEvents().All(ctx)
	if err != nil {
		return nil, err
	}
	return tanker.TankerDatesInMonth(events, year, month), nil
}

// CurrentCycleTankerCount returns the tankers delivered since the last report date
func (s *CalendarService) CurrentCycleTankerCount(ctx context.Context) (int, tanker.CycleBoundary, error) {
	b, err := s.boundaries.Boundary(ctx)
	if err != nil {
		return 0, tanker.CycleBoundary{}, err
	}
	events, err := s.store.TankerEvents().All(ctx)
	if err != nil {
		return 0, tanker.CycleBoundary{}, err
	}
	return tanker.TotalTankers(events, b.OpenRange()), b, nil
}

func checkMonth(year int, month time.Month) error {
	if year < 1 || year > 9999 {
		return shared.NewValidationError("year %d is out of range", year)
	}
	if month < time.January || month > time.December {
		return shared.NewValidationError("month %d is out of range", month)
	}
	return nil
}
