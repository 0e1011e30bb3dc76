package tanker

// ApartmentBill is one apartment's share of the tankers delivered in a range
type ApartmentBill struct {
	Apartment               Apartment
	BillableTankers         int
	TotalTankersInCycle     int // shared by every bill of one computation
	DailyBreakdown          map[Date]int
	DailyOccupancyBreakdown map[Date]int
}

// ComputeBills computes one bill per roster apartment for events in r.
//
// Only events with a positive count inside (From, To] are considered. An
// apartment is billed an event's full count on every date it is occupied;
// the resolved occupancy (0 when vacant) is recorded for every event date.
// Vacancy and override rows for apartments outside the roster are ignored.
// Bills are ordered by numeric apartment number.
func ComputeBills(snapshot AggregateSnapshot, r DateRange) []ApartmentBill {
	events := filterEvents(snapshot.Events, r)
	total := 0
	for _, e := range events {
		total += e.Count
	}

	resolver := NewResolver(snapshot)
	apartments := append([]Apartment(nil), snapshot.Apartments...)
	SortApartments(apartments)

	bills := make([]ApartmentBill, 0, len(apartments))
	for _, apt := range apartments {
		bill := ApartmentBill{
			Apartment:               apt,
			TotalTankersInCycle:     total,
			DailyBreakdown:          make(map[Date]int),
			DailyOccupancyBreakdown: make(map[Date]int, len(events)),
		}
		for _, e := range events {
			res := resolver.Resolve(apt, e.Date)
			bill.DailyOccupancyBreakdown[e.Date] = res.Occupancy
			if res.Vacant {
				continue
			}
			bill.BillableTankers += e.Count
			bill.DailyBreakdown[e.Date] += e.Count
		}
		bills = append(bills, bill)
	}
	return bills
}

func filterEvents(events []TankerEvent, r DateRange) []TankerEvent {
	out := make([]TankerEvent, 0, len(events))
	for _, e := range events {
		if e.Count > 0 && r.Contains(e.Date) {
			out = append(out, e)
		}
	}
	SortTankerEvents(out)
	return out
}
