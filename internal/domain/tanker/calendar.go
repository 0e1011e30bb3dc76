package tanker

import "time"

// ApartmentStatus is an apartment's resolved state on one date
type ApartmentStatus struct {
	Apartment Apartment
	Date      Date
	Occupancy int
	Vacant    bool
	// Overridden is true when an override, not the default, set the occupancy
	Overridden bool
}

// ApartmentStatuses resolves every roster apartment on date, in numeric order
func ApartmentStatuses(snapshot AggregateSnapshot, date Date) []ApartmentStatus {
	resolver := NewResolver(snapshot)
	apartments := append([]Apartment(nil), snapshot.Apartments...)
	SortApartments(apartments)

	statuses := make([]ApartmentStatus, 0, len(apartments))
	for _, apt := range apartments {
		res := resolver.Resolve(apt, date)
		_, overridden := resolver.overrides[OverrideKey{ApartmentNumber: apt.Number, Date: date}]
		statuses = append(statuses, ApartmentStatus{
			Apartment:  apt,
			Date:       date,
			Occupancy:  res.Occupancy,
			Vacant:     res.Vacant,
			Overridden: overridden && !resolver.IsVacant(apt.Number, date),
		})
	}
	return statuses
}

// VacantDatesInMonth lists the dates of the month on which apt resolves to vacant.
// Open-ended and multi-month vacancy records are clamped to the month.
func VacantDatesInMonth(snapshot AggregateSnapshot, apt Apartment, year int, month time.Month) []Date {
	resolver := NewResolver(snapshot)
	first := NewDate(year, month, 1)
	last := first.LastOfMonth()

	var dates []Date
	for d := first; !d.After(last); d = d.AddDays(1) {
		if resolver.Resolve(apt, d).Vacant {
			dates = append(dates, d)
		}
	}
	return dates
}

// TankerDatesInMonth returns the events with a positive count in the month, by date
func TankerDatesInMonth(events []TankerEvent, year int, month time.Month) []TankerEvent {
	first := NewDate(year, month, 1)
	return filterEvents(events, Between(first.AddDays(-1), first.LastOfMonth()))
}
